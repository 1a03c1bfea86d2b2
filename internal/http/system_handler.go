package http

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/cache"

	"nighthub/internal/config"
	"nighthub/internal/settings"
)

// SystemPurgeCacheAction clears the generic cache table and the in-process
// settings cache.
func SystemPurgeCacheAction(ctx *cartridge.Context) error {
	rowsAffected, err := cache.PurgeAllCaches(ctx.DB())
	if err != nil {
		ctx.Logger.Error("Failed to clear generic_cache", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to clear caches",
		})
	}
	settings.ClearCache()

	ctx.Logger.Info("Caches purged successfully", slog.Int64("rows_deleted", rowsAffected))
	return ctx.JSON(fiber.Map{"success": true, "rows_deleted": rowsAffected})
}

// SystemExportDatabaseAction streams the SQLite database file.
func SystemExportDatabaseAction(ctx *cartridge.Context) error {
	cfg := ctx.Config.(*config.Config)
	dbPath := cfg.GetDatabasePath()

	file, err := os.Open(dbPath)
	if os.IsNotExist(err) {
		ctx.Logger.Error("Database file not found", slog.String("path", dbPath))
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Database file not found",
		})
	}
	if err != nil {
		ctx.Logger.Error("Failed to open database file", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to read database file",
		})
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		ctx.Logger.Error("Failed to get database file info", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to get database file info",
		})
	}

	ctx.Set("Content-Type", "application/octet-stream")
	ctx.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-backup.db", cfg.AppName))
	ctx.Set("Content-Length", strconv.FormatInt(info.Size(), 10))

	ctx.Logger.Info("Database exported", slog.String("path", dbPath), slog.Int64("size", info.Size()))

	if _, err := io.Copy(ctx.Response().BodyWriter(), file); err != nil {
		ctx.Logger.Error("Failed to stream database file", slog.Any("error", err))
		return err
	}
	return nil
}

type excludedIPsPayload struct {
	IPs []string `json:"ips"`
}

// ExcludedIPsAction returns the IPs whose tracking writes are dropped.
func ExcludedIPsAction(ctx *cartridge.Context) error {
	value, err := settings.GetSetting(ctx.DB(), settings.KeyExcludedIPs)
	if err != nil {
		ctx.Logger.Error("Failed to read excluded IPs", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to read settings"})
	}
	return ctx.JSON(excludedIPsPayload{IPs: splitList(value)})
}

// UpdateExcludedIPsAction replaces the excluded IP list.
func UpdateExcludedIPsAction(ctx *cartridge.Context) error {
	var payload excludedIPsPayload
	if err := ctx.BodyParser(&payload); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := settings.SetExcludedIPs(ctx.DB(), payload.IPs); err != nil {
		ctx.Logger.Error("Failed to save excluded IPs", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save settings"})
	}

	ctx.Logger.Info("Excluded IPs updated", slog.Int("count", len(payload.IPs)))
	return ExcludedIPsAction(ctx)
}

func splitList(value string) []string {
	out := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
