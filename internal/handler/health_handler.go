package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-portal/internal/capability"
	"github.com/noah-isme/gema-portal/internal/config"
	"github.com/noah-isme/gema-portal/internal/dto"
	"github.com/noah-isme/gema-portal/internal/utils"
)

// HealthCheck returns a handler that reports application health and which
// optional capabilities were available at startup.
func HealthCheck(cfg config.Config, registry *capability.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snapshot := make(map[string]bool, len(capability.All))
		for name, ok := range registry.Snapshot() {
			snapshot[string(name)] = ok
		}

		payload := dto.HealthResponse{
			Status:       "ok",
			Service:      cfg.AppName,
			Environment:  cfg.AppEnv,
			Time:         time.Now().UTC().Format(time.RFC3339),
			Capabilities: snapshot,
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
