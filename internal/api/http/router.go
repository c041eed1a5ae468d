package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/pixmart/internal/api/http/handlers"
	"github.com/spec-kit/pixmart/internal/auth"
	"github.com/spec-kit/pixmart/internal/domain"
	"github.com/spec-kit/pixmart/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health   *handlers.HealthHandler
	Auth     *handlers.AuthHandler
	Accounts *handlers.AccountHandler
	Gate     *auth.RouteGate
	Metrics  *observability.Metrics
}

// RegisterRoutes wires HTTP routes. Every route sits behind the route gate; public
// prefixes pass through it untouched.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Use(cfg.Gate.Handle)

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics.Handler())
	}

	app.Get("/login", cfg.Auth.LoginPage)
	app.Get("/register", cfg.Auth.RegisterPage)

	authGroup := app.Group("/api/auth")
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/logout", cfg.Auth.Logout)
	authGroup.Get("/session", cfg.Auth.Session)

	app.Get("/dashboard", auth.RequireSession(), cfg.Accounts.Dashboard)

	app.Get("/api/me", auth.RequireSession(), cfg.Accounts.Me)

	admin := app.Group("/api/admin", auth.RequireRole(domain.RoleAdmin))
	admin.Get("/users/:id", cfg.Accounts.GetUser)
}
