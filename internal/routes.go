package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "nighthub/api/v1"
	"nighthub/internal/config"
	"nighthub/internal/http"
	"nighthub/internal/http/middleware"
)

// publicCORSConfig is shared by every endpoint the app calls cross-origin.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,DELETE,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent, X-Forwarded-User-Agent",
}

func noContent(ctx *cartridge.Context) error {
	return ctx.SendStatus(fiber.StatusNoContent)
}

// MountAppRoutes mounts all application routes.
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()

	// Rate limiting only applies in production; it would get in the way of tests.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Tracking runs a heartbeat per open tab plus one request per navigation.
	ingestRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(120),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	readRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(60),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	adminRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(30),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Ingest is called from the app's own origin and from embedded webviews,
	// so Sec-Fetch-Site is not enforced.
	ingestConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		CORSConfig:         publicCORSConfig,
		CustomMiddleware:   []fiber.Handler{ingestRateLimiter},
		EnableSecFetchSite: cartridge.Bool(false),
	}

	publicReadConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		CORSConfig:         publicCORSConfig,
		CustomMiddleware:   []fiber.Handler{readRateLimiter},
		EnableSecFetchSite: cartridge.Bool(false),
	}

	// /api/out is a top-level navigation from the app or a shared link.
	redirectConfig := &cartridge.RouteConfig{
		CustomMiddleware:   []fiber.Handler{readRateLimiter},
		EnableSecFetchSite: cartridge.Bool(false),
	}

	db := srv.GetDBManager().GetConnection()
	logger := srv.GetLogger()

	adminAPIConfig := &cartridge.RouteConfig{
		EnableSecFetchSite: cartridge.Bool(false),
		CustomMiddleware: []fiber.Handler{
			adminRateLimiter,
			middleware.AdminAPIKeyAuth(db, logger),
		},
	}

	// === HEALTH ===
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === TRACKING INGEST ===
	ingest := func(path string, handler func(*cartridge.Context) error) {
		srv.Post(path, handler, ingestConfig)
		srv.Options(path, noContent, ingestConfig)
	}
	ingest("/x/api/v1/devices", v1.UpsertDeviceHandler)
	ingest("/x/api/v1/sessions", v1.CreateSessionHandler)
	ingest("/x/api/v1/sessions/:id/touch", v1.TouchSessionHandler)
	ingest("/x/api/v1/views", v1.CreateViewHandler)
	ingest("/x/api/v1/views/:id/end", v1.EndViewHandler)
	ingest("/x/api/v1/beacon", v1.BeaconHandler)
	ingest("/x/api/v1/searches", v1.CreateSearchHandler)
	ingest("/x/api/v1/push/subscriptions", v1.UpsertPushSubscriptionHandler)
	srv.Delete("/x/api/v1/push/subscriptions", v1.DeletePushSubscriptionHandler, ingestConfig)

	// === APP API ===
	srv.Get("/api/out", v1.OutboundRedirectHandler, redirectConfig)
	srv.Get("/api/events", v1.ListEventsHandler, publicReadConfig)
	srv.Options("/api/events", noContent, publicReadConfig)

	// === ADMIN API ===
	srv.Get("/admin/api/stats", http.AdminStatsAction, adminAPIConfig)
	srv.Post("/admin/api/cache/purge", http.SystemPurgeCacheAction, adminAPIConfig)
	srv.Get("/admin/api/system/export-database", http.SystemExportDatabaseAction, adminAPIConfig)
	srv.Get("/admin/api/settings/excluded-ips", http.ExcludedIPsAction, adminAPIConfig)
	srv.Post("/admin/api/settings/excluded-ips", http.UpdateExcludedIPsAction, adminAPIConfig)
	srv.Post("/admin/api/push/delivery-reports", http.PushDeliveryReportAction, adminAPIConfig)
}
