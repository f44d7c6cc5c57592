package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/slack-go/slack"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/helpdesk-labs/ticket-lifecycle/internal/api/http"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/api/http/handlers"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/auth"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/clock"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/config"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/events"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/lifecycle"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/monitor"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/notify"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/observability"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/persistence"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/repository"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/repository/memory"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/service"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/sla"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/worker"
)

const shutdownTimeout = 30 * time.Second

type stores struct {
	tickets       repository.TicketRepository
	history       repository.TicketHistoryRepository
	messages      repository.TicketMessageRepository
	notifications repository.NotificationRepository
	slaConfigs    repository.SLAConfigRepository
	users         repository.UserRepository
}

func main() {
	envFile := flag.String("env-file", "", "dotenv file to load before reading the environment")
	migrateOnly := flag.Bool("migrate-only", false, "apply database migrations and exit")
	usersFile := flag.String("users-file", "", "YAML accounts to load into the in-memory store")
	tokenFor := flag.String("token-for", "", "print a signed access token for this user id and exit")
	tokenRole := flag.String("token-role", "", "role claim for --token-for")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if *tokenFor != "" {
		tm := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
		token, expiresAt, err := tm.GenerateToken(*tokenFor, parseRole(*tokenRole))
		if err != nil {
			log.Fatalf("failed to sign token: %v", err)
		}
		fmt.Printf("%s\n# expires %s\n", token, expiresAt.Format(time.RFC3339))
		return
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.DSN != "" && (cfg.Postgres.RunMigrations || *migrateOnly) {
		if err := persistence.RunMigrations(cfg.Postgres.DSN, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}
	if *migrateOnly {
		if cfg.Postgres.DSN == "" {
			logger.Fatal("--migrate-only requires POSTGRES_DSN")
		}
		logger.Info("migrations applied")
		return
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	redisClient := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redisClient.Close()

	realClock := clock.Real()
	repos, err := buildStores(pg, realClock, *usersFile, logger)
	if err != nil {
		logger.Fatal("failed to set up storage", zap.Error(err))
	}

	defaults := sla.DefaultPolicies()
	if cfg.SLA.PolicyFile != "" {
		policies, err := sla.LoadPolicyFile(cfg.SLA.PolicyFile)
		if err != nil {
			logger.Fatal("failed to load sla policy file", zap.Error(err))
		}
		defaults = policies.MergeDefaults(defaults)
		seeded, err := policies.Seed(ctx, repos.slaConfigs)
		if err != nil {
			logger.Fatal("failed to seed sla policies", zap.Error(err))
		}
		logger.Info("sla policies loaded", zap.String("file", cfg.SLA.PolicyFile), zap.Int("rules", seeded))
	}

	metrics := observability.NewMetrics(cfg.App.Name)
	hub := events.NewBroadcaster(cfg.Realtime.SessionBuffer, logger, metrics)

	var relay notify.Relay
	if cfg.Notification.SlackEnabled() {
		relay = notify.NewSlackRelay(slack.New(cfg.Notification.SlackBotToken), cfg.Notification.SlackChannel)
		logger.Info("slack relay enabled", zap.String("channel", cfg.Notification.SlackChannel))
	}
	dispatcher := notify.NewDispatcher(notify.DispatcherDependencies{
		Notifications: repos.notifications,
		Publisher:     hub,
		Relay:         relay,
		Clock:         realClock,
		Logger:        logger,
		Metrics:       metrics,
		RelayTimeout:  cfg.Notification.RelayTimeout,
	})

	resolver := sla.NewResolver(repos.slaConfigs, defaults, logger)
	calculator := sla.NewCalculator(resolver)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   repos.tickets,
		HistoryRepo:  repos.history,
		MessageRepo:  repos.messages,
		UserRepo:     repos.users,
		StateMachine: lifecycle.NewStateMachine(calculator, realClock),
		Deadlines:    calculator,
		Notifier:     dispatcher,
		Publisher:    hub,
		Clock:        realClock,
		Logger:       logger,
	})
	notificationService := service.NewNotificationService(repos.notifications)

	var lease monitor.Lease
	if cfg.SLA.LockEnabled {
		if redisClient.Enabled() {
			lease = monitor.NewRedisLease(redisClient.Client, cfg.App.Name+":sla-sweep:")
		} else {
			logger.Warn("SLA_LOCK_ENABLED without REDIS_ADDR; sweeps are guarded per instance only")
		}
	}
	slaMonitor := monitor.New(monitor.Dependencies{
		Tickets:       repos.tickets,
		Users:         repos.users,
		Notifier:      dispatcher,
		Clock:         realClock,
		Logger:        logger,
		Metrics:       metrics,
		WarningWindow: cfg.SLA.WarningWindow,
		Concurrency:   cfg.SLA.SweepConcurrency,
		Lease:         lease,
		LeaseTTL:      cfg.SLA.LockTTL,
	})

	var scheduler worker.Scheduler
	if cfg.SLA.Scheduler == "ticker" {
		scheduler = worker.NewTickerScheduler(realClock, logger)
	} else {
		scheduler = worker.NewCronScheduler(logger)
	}
	if err := worker.RegisterSLASweeps(scheduler, slaMonitor, cfg.SLA.WarningInterval, cfg.SLA.BreachInterval, logger); err != nil {
		logger.Fatal("failed to schedule sla sweeps", zap.Error(err))
	}
	scheduler.Start()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redisClient),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		SLA:            handlers.NewSLAHandler(slaMonitor, resolver),
		Realtime:       handlers.NewRealtimeHandler(hub, ticketService, logger),
		Metrics:        metrics,
		AuthMiddleware: auth.NewAuthMiddleware(auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes), repos.users),
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-listenErr:
		logger.Error("fiber listen", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler did not stop cleanly", zap.Error(err))
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("http shutdown", zap.Error(err))
	}
	dispatcher.Wait()
}

func buildStores(pg *persistence.Postgres, c clock.Clock, usersFile string, logger *zap.Logger) (*stores, error) {
	if pg.Enabled() {
		if usersFile != "" {
			logger.Warn("--users-file ignored with postgres; accounts live in the users table")
		}
		pool := pg.PoolHandle()
		return &stores{
			tickets:       repository.NewTicketRepository(pool),
			history:       repository.NewTicketHistoryRepository(pool),
			messages:      repository.NewTicketMessageRepository(pool),
			notifications: repository.NewNotificationRepository(pool),
			slaConfigs:    repository.NewSLAConfigRepository(pool),
			users:         repository.NewUserRepository(pool),
		}, nil
	}

	store := memory.NewStore(c)
	if usersFile != "" {
		users, err := memory.LoadUsers(usersFile)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			store.PutUser(u)
		}
		logger.Info("in-memory accounts loaded", zap.Int("users", len(users)))
	}
	return &stores{
		tickets:       store.Tickets(),
		history:       store.History(),
		messages:      store.Messages(),
		notifications: store.Notifications(),
		slaConfigs:    store.SLAConfigs(),
		users:         store.Users(),
	}, nil
}

func parseRole(s string) domain.Role {
	return domain.Role(strings.ToUpper(s))
}
