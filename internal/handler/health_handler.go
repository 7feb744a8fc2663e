package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/qaim-khanx/essaygradingbot/internal/config"
	"github.com/qaim-khanx/essaygradingbot/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Model       string    `json:"model"`
	GraderReady bool      `json:"grader_ready"`
}

// HealthCheck returns a handler that reports application health information.
func HealthCheck(cfg config.Config, graderReady bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Model:       cfg.OpenAIModel,
			GraderReady: graderReady,
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
