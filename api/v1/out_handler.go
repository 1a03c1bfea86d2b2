package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"nighthub/internal/catalog"
	"nighthub/internal/clicks"
	"nighthub/internal/consent"
	"nighthub/internal/storage"
)

// OutboundRedirectHandler handles GET /api/out: it records a click on an
// event's partner link and redirects to it.
func OutboundRedirectHandler(ctx *cartridge.Context) error {
	eventID := ctx.Query("event")
	if eventID == "" {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "missing event"})
	}

	db := ctx.DB()
	referral, err := catalog.FindReferralURL(db, eventID)
	if err != nil {
		var notFound *catalog.EventNotFoundError
		if !errors.As(err, &notFound) {
			ctx.Logger.Error("Failed to load event for redirect", slog.String("event_id", eventID), slog.Any("error", err))
		}
		return ctx.Redirect("/", http.StatusFound)
	}
	// Events without a partner link still count the click, then go home.
	target := clicks.NormalizeURL(referral)
	if target == "" {
		target = "/"
	}

	click := clicks.Click{
		EventID:     eventID,
		UserID:      ctx.Query("u"),
		Source:      ctx.Query("source"),
		ReferralURL: target,
		Path:        refererPath(ctx.Ctx),
	}
	// Identity cookies are only read once the visitor opted in.
	if ctx.Cookies(storage.KeyConsent) == consent.Accepted {
		click.DeviceID = ctx.Cookies(storage.KeyDevice)
		click.SessionID = ctx.Cookies(storage.KeySession)
	}

	if !ipExcluded(ctx.Logger, getClientIP(ctx.Ctx)) {
		if err := clicks.Record(ctx.UserContext(), db, ctx.Logger, click); err != nil {
			ctx.Logger.Warn("Failed to record click", slog.String("event_id", eventID), slog.Any("error", err))
		}
	}

	return ctx.Redirect(target, http.StatusFound)
}

// refererPath is the in-app path the click came from, if the browser sent it.
func refererPath(c *fiber.Ctx) string {
	ref := c.Get(fiber.HeaderReferer)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return u.RequestURI()
}
