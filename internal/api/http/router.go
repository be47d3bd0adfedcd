package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/worker-portal/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health       *handlers.HealthHandler
	Metrics      *handlers.MetricsHandler
	Auth         *handlers.AuthHandler
	Dashboard    *handlers.DashboardHandler
	Complaints   *handlers.ComplaintsHandler
	Session      *SessionMiddleware
	LoginLimiter *RateLimiter
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/internal/metrics", cfg.Metrics.Snapshot)

	if cfg.LoginLimiter != nil {
		app.Post("/login", cfg.LoginLimiter.Handle, cfg.Auth.Login)
	} else {
		app.Post("/login", cfg.Auth.Login)
	}
	app.Post("/logout", cfg.Auth.Logout)
	app.Get("/session", cfg.Auth.Session)

	protected := cfg.Session.Handle
	app.Get("/dashboard", protected, cfg.Dashboard.Overview)
	app.Get("/complaints/detail/:id", protected, cfg.Complaints.Detail)
	app.Post("/complaints/detail/:id/complete", protected, cfg.Complaints.Complete)
	app.Get("/complaints/:bucket", protected, cfg.Complaints.List)
}
