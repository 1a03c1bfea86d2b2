package v1

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"nighthub/internal/catalog"
	"nighthub/internal/push"
	"nighthub/internal/search"
	"nighthub/internal/timeframe"
)

type searchParams struct {
	Q      string `json:"q" validate:"required,max=200"`
	Zone   string `json:"zone" validate:"max=100"`
	Tab    string `json:"tab" validate:"max=32"`
	UserID string `json:"user_id" validate:"max=64"`
}

// CreateSearchHandler handles POST /x/api/v1/searches.
func CreateSearchHandler(ctx *cartridge.Context) error {
	var params searchParams
	if err := json.Unmarshal(ctx.Body(), &params); err != nil {
		return handleError(ctx.Ctx, fiber.NewError(http.StatusBadRequest, errInvalidRequest))
	}
	if err := validateStruct(&params); err != nil {
		return handleError(ctx.Ctx, err)
	}
	if ipExcluded(ctx.Logger, getClientIP(ctx.Ctx)) {
		return accepted(ctx.Ctx)
	}

	entry := search.Log{Q: params.Q, Zone: params.Zone, Tab: params.Tab, UserID: params.UserID}
	if err := search.Record(ctx.UserContext(), ctx.DB(), ctx.Logger, entry); err != nil {
		ctx.Logger.Warn("Failed to record search", slog.Any("error", err))
		return handleError(ctx.Ctx, err)
	}
	return accepted(ctx.Ctx)
}

// UpsertPushSubscriptionHandler handles POST /x/api/v1/push/subscriptions.
func UpsertPushSubscriptionHandler(ctx *cartridge.Context) error {
	var sub push.Subscription
	if err := json.Unmarshal(ctx.Body(), &sub); err != nil {
		return handleError(ctx.Ctx, fiber.NewError(http.StatusBadRequest, errInvalidRequest))
	}
	if err := validateStruct(&sub); err != nil {
		return handleError(ctx.Ctx, err)
	}
	if err := push.Upsert(ctx.UserContext(), ctx.DB(), ctx.Logger, sub); err != nil {
		ctx.Logger.Error("Failed to store push subscription", slog.Any("error", err))
		return handleError(ctx.Ctx, err)
	}
	return ctx.Status(http.StatusCreated).JSON(fiber.Map{"status": http.StatusCreated})
}

type unsubscribeParams struct {
	UserID   string `json:"user_id" validate:"required,max=64"`
	Endpoint string `json:"endpoint" validate:"required,max=2048"`
}

// DeletePushSubscriptionHandler handles DELETE /x/api/v1/push/subscriptions.
func DeletePushSubscriptionHandler(ctx *cartridge.Context) error {
	var params unsubscribeParams
	if err := json.Unmarshal(ctx.Body(), &params); err != nil {
		return handleError(ctx.Ctx, fiber.NewError(http.StatusBadRequest, errInvalidRequest))
	}
	if err := validateStruct(&params); err != nil {
		return handleError(ctx.Ctx, err)
	}
	if err := push.Delete(ctx.UserContext(), ctx.DB(), ctx.Logger, params.UserID, params.Endpoint); err != nil {
		ctx.Logger.Error("Failed to delete push subscription", slog.Any("error", err))
		return handleError(ctx.Ctx, err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

// ListEventsHandler handles GET /api/events.
func ListEventsHandler(ctx *cartridge.Context) error {
	filter := catalog.Filter{
		Zone:   ctx.Query("zone"),
		Status: ctx.Query("status", catalog.StatusPublished),
		Genre:  ctx.Query("genre"),
		Limit:  ctx.QueryInt("limit", 0),
	}
	if ctx.Query("status") == "any" {
		filter.Status = ""
	}

	var err error
	if filter.From, err = queryDate(ctx.Ctx, "from", false); err != nil {
		return handleError(ctx.Ctx, err)
	}
	if filter.To, err = queryDate(ctx.Ctx, "to", true); err != nil {
		return handleError(ctx.Ctx, err)
	}

	events, err := catalog.ListEvents(ctx.DB(), ctx.Logger, filter)
	if err != nil {
		ctx.Logger.Error("Failed to list events", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list events"})
	}
	return ctx.JSON(fiber.Map{"events": catalog.Present(events)})
}

// queryDate reads a YYYY-MM-DD query parameter as the start of that UTC day,
// or its last second when endOfDay is set.
func queryDate(c *fiber.Ctx, key string, endOfDay bool) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation(timeframe.DateLayout, raw, time.UTC)
	if err != nil {
		return nil, fiber.NewError(http.StatusBadRequest, "invalid '"+key+"' date")
	}
	if endOfDay {
		d = d.Add(24*time.Hour - time.Second)
	}
	return &d, nil
}
