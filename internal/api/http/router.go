package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/helpdesk-labs/ticket-lifecycle/internal/api/http/handlers"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/auth"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/domain"
	"github.com/helpdesk-labs/ticket-lifecycle/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Notifications  *handlers.NotificationsHandler
	SLA            *handlers.SLAHandler
	Realtime       *handlers.RealtimeHandler
	Metrics        *observability.Metrics
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	if cfg.Realtime != nil {
		app.Get("/ws", cfg.AuthMiddleware.Handle, cfg.Realtime.Upgrade, cfg.Realtime.Serve())
	}

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Get("/:id/history", cfg.Tickets.ListHistory)
	tickets.Get("/:id/messages", cfg.Tickets.ListMessages)
	tickets.Post("/:id/messages", cfg.Tickets.AddMessage)

	notifications := app.Group("/notifications", cfg.AuthMiddleware.Handle)
	notifications.Get("/", cfg.Notifications.List)
	notifications.Post("/read-all", cfg.Notifications.MarkAllRead)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)

	slaGroup := app.Group("/sla", cfg.AuthMiddleware.Handle, auth.RequireStaff())
	slaGroup.Get("/stats", cfg.SLA.Stats)
	slaGroup.Get("/policies", cfg.SLA.Policies)
	slaGroup.Post("/sweeps/:kind", auth.RequireRole(domain.RoleAdmin), cfg.SLA.RunSweep)
}
