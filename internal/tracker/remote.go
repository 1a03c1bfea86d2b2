package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"nighthub/internal/tracking"
)

const ingestPrefix = "/x/api/v1"

// RemoteSink posts tracker writes to a nighthub server's ingest API.
type RemoteSink struct {
	baseURL   string
	timeout   time.Duration
	userAgent string
}

func NewRemoteSink(baseURL string, timeout time.Duration, userAgent string) *RemoteSink {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &RemoteSink{
		baseURL:   strings.TrimRight(baseURL, "/"),
		timeout:   timeout,
		userAgent: userAgent,
	}
}

func (r *RemoteSink) UpsertDevice(ctx context.Context, in tracking.DeviceUpsert) error {
	return r.post(ctx, "/devices", in)
}

func (r *RemoteSink) StartSession(ctx context.Context, in tracking.SessionStart) error {
	return r.post(ctx, "/sessions", in)
}

func (r *RemoteSink) TouchSession(ctx context.Context, in tracking.SessionTouch) error {
	return r.post(ctx, "/sessions/"+url.PathEscape(in.ID)+"/touch", in)
}

func (r *RemoteSink) StartView(ctx context.Context, in tracking.ViewStart) error {
	return r.post(ctx, "/views", in)
}

func (r *RemoteSink) EndView(ctx context.Context, in tracking.ViewEnd) error {
	return r.post(ctx, "/views/"+url.PathEscape(in.ID)+"/end", in)
}

// SendBeacon posts a batch of writes in one request.
func (r *RemoteSink) SendBeacon(ctx context.Context, batch *Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	return r.post(ctx, "/beacon", fiber.Map{"ops": batch.Ops})
}

func (r *RemoteSink) post(ctx context.Context, path string, body any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	agent := fiber.Post(r.baseURL + ingestPrefix + path)
	agent.JSON(body)
	agent.Timeout(timeout)
	if r.userAgent != "" {
		agent.UserAgent(r.userAgent)
	}

	code, respBody, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("post %s: %w", path, errors.Join(errs...))
	}
	if code >= fiber.StatusMultipleChoices {
		return fmt.Errorf("post %s: unexpected status %d: %s", path, code, respBody)
	}
	return nil
}
