package http

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"nighthub/internal/push"
)

type deliveryReport struct {
	Endpoint string `json:"endpoint"`
	Status   int    `json:"status"`
}

// PushDeliveryReportAction receives the provider status of a push delivery
// attempt and drops subscriptions whose endpoint is gone (404/410).
func PushDeliveryReportAction(ctx *cartridge.Context) error {
	var report deliveryReport
	if err := ctx.BodyParser(&report); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	report.Endpoint = strings.TrimSpace(report.Endpoint)
	if report.Endpoint == "" || report.Status < 100 || report.Status > 599 {
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "endpoint and a valid status are required"})
	}

	pruned, err := push.PruneGone(ctx.UserContext(), ctx.DB(), ctx.Logger, report.Endpoint, report.Status)
	if err != nil {
		ctx.Logger.Error("Failed to prune push subscription", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to prune subscription"})
	}
	return ctx.JSON(fiber.Map{"pruned": pruned})
}
