package v1

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"nighthub/internal/pkg/geoip"
	"nighthub/internal/settings"
	"nighthub/internal/tracker"
	"nighthub/internal/tracking"
)

const (
	msgAccepted       = "Accepted"
	errInvalidRequest = "Invalid request"
	errValidation     = "Validation failed"
	errWriteFailed    = "Failed to record"

	maxBeaconOps = 50
)

// errDropped marks a well-formed write the server chose not to store.
var errDropped = errors.New("write dropped")

// requestMeta is what the server knows about a write besides its payload.
type requestMeta struct {
	ip        string
	userAgent string
}

func metaFrom(c *fiber.Ctx) requestMeta {
	ua := c.Get("User-Agent")
	if forwarded := c.Get("X-Forwarded-User-Agent"); forwarded != "" {
		ua = forwarded
	}
	return requestMeta{ip: getClientIP(c), userAgent: ua}
}

// ingestor decodes, validates and stores tracker writes.
type ingestor struct {
	repo   *tracking.Repository
	logger *slog.Logger
	meta   requestMeta
}

func newIngestor(ctx *cartridge.Context) *ingestor {
	return &ingestor{
		repo:   tracking.NewRepository(ctx.DB(), ctx.Logger),
		logger: ctx.Logger,
		meta:   metaFrom(ctx.Ctx),
	}
}

func (in *ingestor) excluded() bool {
	return ipExcluded(in.logger, in.meta.ip)
}

// ipExcluded reports whether writes from ip are dropped by the excluded IPs
// setting. Lookup failures let the write through.
func ipExcluded(logger *slog.Logger, ip string) bool {
	excluded, err := settings.IsIPExcluded(ip)
	if err != nil {
		logger.Warn("Failed to check excluded IPs", slog.Any("error", err))
		return false
	}
	return excluded
}

// classify completes device metadata from the request and reports bots.
func (in *ingestor) classify(meta *tracking.DeviceMeta) bool {
	if meta.UserAgent == "" {
		meta.UserAgent = in.meta.userAgent
	}
	return meta.Classify()
}

// apply stores one write of kind op. pathID, when set, overrides the id in
// the payload.
func (in *ingestor) apply(ctx context.Context, op, pathID string, body []byte) error {
	switch op {
	case tracker.OpDevice:
		var p tracking.DeviceUpsert
		if err := decode(body, &p); err != nil {
			return err
		}
		if in.classify(&p.DeviceMeta) {
			return errDropped
		}
		if err := validateStruct(&p); err != nil {
			return err
		}
		return in.repo.UpsertDevice(ctx, p)

	case tracker.OpSessionStart:
		var p tracking.SessionStart
		if err := decode(body, &p); err != nil {
			return err
		}
		if in.classify(&p.DeviceMeta) {
			return errDropped
		}
		if err := validateStruct(&p); err != nil {
			return err
		}
		p.Country = geoip.CountryCode(in.meta.ip)
		return in.repo.StartSession(ctx, p)

	case tracker.OpSessionTouch:
		var p tracking.SessionTouch
		if err := decode(body, &p); err != nil {
			return err
		}
		if pathID != "" {
			p.ID = pathID
		}
		if err := validateStruct(&p); err != nil {
			return err
		}
		return in.repo.TouchSession(ctx, p)

	case tracker.OpViewStart:
		var p tracking.ViewStart
		if err := decode(body, &p); err != nil {
			return err
		}
		if err := validateStruct(&p); err != nil {
			return err
		}
		return in.repo.StartView(ctx, p)

	case tracker.OpViewEnd:
		var p tracking.ViewEnd
		if err := decode(body, &p); err != nil {
			return err
		}
		if pathID != "" {
			p.ID = pathID
		}
		if err := validateStruct(&p); err != nil {
			return err
		}
		return in.repo.EndView(ctx, p)
	}
	return fiber.NewError(http.StatusBadRequest, "Unknown operation")
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fiber.NewError(http.StatusBadRequest, errInvalidRequest)
	}
	return nil
}

func ingest(ctx *cartridge.Context, op, pathID string) error {
	in := newIngestor(ctx)
	if in.excluded() {
		ctx.Logger.Debug("Dropped write from excluded IP", slog.String("op", op))
		return accepted(ctx.Ctx)
	}

	if err := in.apply(ctx.UserContext(), op, pathID, ctx.Body()); err != nil {
		if errors.Is(err, errDropped) {
			ctx.Logger.Debug("Dropped bot write", slog.String("op", op))
			return accepted(ctx.Ctx)
		}
		ctx.Logger.Debug("Tracking write rejected", slog.String("op", op), slog.Any("error", err))
		return handleError(ctx.Ctx, err)
	}
	return accepted(ctx.Ctx)
}

// UpsertDeviceHandler handles POST /x/api/v1/devices.
func UpsertDeviceHandler(ctx *cartridge.Context) error {
	return ingest(ctx, tracker.OpDevice, "")
}

// CreateSessionHandler handles POST /x/api/v1/sessions.
func CreateSessionHandler(ctx *cartridge.Context) error {
	return ingest(ctx, tracker.OpSessionStart, "")
}

// TouchSessionHandler handles POST /x/api/v1/sessions/:id/touch.
func TouchSessionHandler(ctx *cartridge.Context) error {
	return ingest(ctx, tracker.OpSessionTouch, ctx.Params("id"))
}

// CreateViewHandler handles POST /x/api/v1/views.
func CreateViewHandler(ctx *cartridge.Context) error {
	return ingest(ctx, tracker.OpViewStart, "")
}

// EndViewHandler handles POST /x/api/v1/views/:id/end.
func EndViewHandler(ctx *cartridge.Context) error {
	return ingest(ctx, tracker.OpViewEnd, ctx.Params("id"))
}

type beaconOp struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type beaconBody struct {
	Ops []beaconOp `json:"ops"`
}

// BeaconHandler applies a batch of writes sent from a closing tab. It always
// answers 202: the sender is gone and cannot act on a failure.
func BeaconHandler(ctx *cartridge.Context) error {
	var body beaconBody
	if err := json.Unmarshal(ctx.Body(), &body); err != nil {
		ctx.Logger.Debug("Failed to parse beacon request", slog.Any("error", err))
		return ctx.SendStatus(http.StatusAccepted)
	}

	in := newIngestor(ctx)
	if in.excluded() {
		return ctx.SendStatus(http.StatusAccepted)
	}

	ops := body.Ops
	if len(ops) > maxBeaconOps {
		ctx.Logger.Debug("Beacon truncated", slog.Int("ops", len(ops)))
		ops = ops[:maxBeaconOps]
	}
	applied := 0
	for _, op := range ops {
		if err := in.apply(ctx.UserContext(), op.Type, "", op.Payload); err != nil {
			ctx.Logger.Debug("Beacon op failed", slog.String("op", op.Type), slog.Any("error", err))
			continue
		}
		applied++
	}
	ctx.Logger.Debug("Beacon processed", slog.Int("ops", len(ops)), slog.Int("applied", applied))
	return ctx.SendStatus(http.StatusAccepted)
}

func accepted(c *fiber.Ctx) error {
	return c.Status(http.StatusAccepted).JSON(fiber.Map{
		"message": msgAccepted,
		"status":  http.StatusAccepted,
	})
}

func handleError(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error": fiberErr.Message,
		})
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  errValidation,
			"fields": validationErr.Fields,
		})
	}

	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy") {
		return c.Status(599).JSON(fiber.Map{}) // custom status code
	}
	return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
		"error": errWriteFailed,
	})
}
