package middleware

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"nighthub/internal/settings"
)

// AdminAPIKeyAuth validates the admin API key on admin endpoints.
// Expects: Authorization: Bearer <api_key>
func AdminAPIKeyAuth(db *gorm.DB, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return unauthorized(c, "Missing Authorization header")
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "Invalid Authorization header format. Expected: Bearer <api_key>")
		}

		providedKey := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if providedKey == "" {
			return unauthorized(c, "API key is empty")
		}

		ok, err := settings.VerifyAdminAPIKey(db, providedKey)
		if errors.Is(err, settings.ErrAdminKeyNotConfigured) {
			logger.Warn("Admin API key not configured")
			return unauthorized(c, "Admin API key not configured. Run: nhctl generate-api-key")
		}
		if err != nil {
			logger.Error("Failed to verify admin API key", slog.Any("error", err))
			return unauthorized(c, "Invalid API key")
		}
		if !ok {
			logger.Debug("Rejected admin API key", slog.String("ip", c.IP()))
			return unauthorized(c, "Invalid API key")
		}

		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": msg})
}
