package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/qaim-khanx/essaygradingbot/internal/config"
	"github.com/qaim-khanx/essaygradingbot/internal/handler"
	"github.com/qaim-khanx/essaygradingbot/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	EssayGradingHandler *handler.EssayGradingHandler
	JWTMiddleware       fiber.Handler
	GradeLimiter        fiber.Handler
	GraderReady         bool
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.GraderReady))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.EssayGradingHandler != nil {
		essays := api.Group("/essays", jwtMiddleware)
		deps.EssayGradingHandler.Register(essays, deps.GradeLimiter)
	}
}
