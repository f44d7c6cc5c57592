package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	SLA          SLAConfig
	Notification NotificationConfig
	Realtime     RealtimeConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token verification parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// SLAConfig drives the SLA monitor sweeps.
type SLAConfig struct {
	WarningInterval  time.Duration
	BreachInterval   time.Duration
	WarningWindow    time.Duration
	SweepConcurrency int
	// Scheduler is "cron" (robfig/cron) or "ticker" (clock-driven loop).
	Scheduler   string
	PolicyFile  string
	LockEnabled bool
	LockTTL     time.Duration
}

// NotificationConfig holds outbound relay settings. The Slack relay is
// enabled when both token and channel are set.
type NotificationConfig struct {
	SlackBotToken string
	SlackChannel  string
	RelayTimeout  time.Duration
}

// SlackEnabled reports whether SLA alerts should be relayed to Slack.
func (n NotificationConfig) SlackEnabled() bool {
	return n.SlackBotToken != "" && n.SlackChannel != ""
}

// RealtimeConfig sizes live push sessions.
type RealtimeConfig struct {
	SessionBuffer int
}

// Load reads configuration from environment variables, applying defaults where possible.
// When envFile is non-empty it must exist; otherwise a local .env is loaded if present.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	warningInterval, err := getEnvAsDuration("SLA_WARNING_INTERVAL", 30*time.Minute)
	if err != nil {
		return nil, err
	}
	breachInterval, err := getEnvAsDuration("SLA_BREACH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	warningWindow, err := getEnvAsDuration("SLA_WARNING_WINDOW", 60*time.Minute)
	if err != nil {
		return nil, err
	}
	lockTTL, err := getEnvAsDuration("SLA_LOCK_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	relayTimeout, err := getEnvAsDuration("NOTIFY_RELAY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-lifecycle"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		SLA: SLAConfig{
			WarningInterval:  warningInterval,
			BreachInterval:   breachInterval,
			WarningWindow:    warningWindow,
			SweepConcurrency: getEnvAsInt("SLA_SWEEP_CONCURRENCY", 4),
			Scheduler:        strings.ToLower(getEnv("SLA_SCHEDULER", "cron")),
			PolicyFile:       os.Getenv("SLA_POLICY_FILE"),
			LockEnabled:      getEnvAsBool("SLA_LOCK_ENABLED", false),
			LockTTL:          lockTTL,
		},
		Notification: NotificationConfig{
			SlackBotToken: os.Getenv("NOTIFY_SLACK_BOT_TOKEN"),
			SlackChannel:  os.Getenv("NOTIFY_SLACK_CHANNEL"),
			RelayTimeout:  relayTimeout,
		},
		Realtime: RealtimeConfig{
			SessionBuffer: getEnvAsInt("REALTIME_SESSION_BUFFER", 32),
		},
	}

	if err := cfg.SLA.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s SLAConfig) validate() error {
	if s.WarningInterval <= 0 || s.BreachInterval <= 0 {
		return fmt.Errorf("sla sweep intervals must be positive")
	}
	if s.WarningWindow <= 0 {
		return fmt.Errorf("SLA_WARNING_WINDOW must be positive")
	}
	switch s.Scheduler {
	case "cron", "ticker":
	default:
		return fmt.Errorf("invalid SLA_SCHEDULER %q (want cron or ticker)", s.Scheduler)
	}
	if s.LockEnabled && s.LockTTL <= 0 {
		return fmt.Errorf("SLA_LOCK_TTL must be positive when SLA_LOCK_ENABLED")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
