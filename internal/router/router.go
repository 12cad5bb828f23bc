package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-portal/internal/capability"
	"github.com/noah-isme/gema-portal/internal/config"
	"github.com/noah-isme/gema-portal/internal/handler"
	"github.com/noah-isme/gema-portal/internal/middleware"
	"github.com/noah-isme/gema-portal/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	Capabilities      *capability.Registry
	AssignmentHandler *handler.AssignmentHandler
	SubmissionHandler *handler.SubmissionHandler
	GradingHandler    *handler.GradingHandler
	PreviewHandler    *handler.PreviewHandler
	AnalyticsHandler  *handler.AnalyticsHandler
	SeedHandler       *handler.SeedHandler
	// JWTMiddleware identifies callers. Requests without a token pass through
	// as guests; route-level guards decide what guests may do.
	JWTMiddleware fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Capabilities))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	secured := api.Group("", jwtMiddleware)
	secured.Use("/submissions", middleware.RateLimit("submissions", cfg.SubmissionRateLimit, time.Minute))

	if deps.AssignmentHandler != nil {
		deps.AssignmentHandler.Register(secured.Group("/assignments"))
	}

	if deps.GradingHandler != nil {
		deps.GradingHandler.Register(secured)
	}
	if deps.PreviewHandler != nil {
		deps.PreviewHandler.Register(secured)
	}
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(secured)
	}

	if deps.SeedHandler != nil {
		deps.SeedHandler.Register(api.Group("/internal/seed"))
	}

	if deps.AnalyticsHandler != nil {
		analytics := secured.Group("/analytics", middleware.RequireRole("admin", "teacher"))
		deps.AnalyticsHandler.Register(analytics)
	}
}
