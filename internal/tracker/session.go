// Package tracker implements the client side of nighthub analytics: the
// session lifecycle, page views with dwell time, the heartbeat and the
// hide/teardown path. Every write is gated on consent and best-effort.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"nighthub/internal/consent"
	"nighthub/internal/identity"
	"nighthub/internal/tracking"
)

const DefaultSessionTimeout = 30 * time.Minute

// Environment describes the browser profile the tracker runs in.
type Environment struct {
	UserAgent    string
	Language     string
	Timezone     string
	Referrer     string
	InstalledApp bool
}

// SessionRef identifies the session a write belongs to.
type SessionRef struct {
	SessionID   string
	DeviceID    string
	IsNewDevice bool
	Started     bool
}

type Tracker struct {
	consent  *consent.Store
	identity *identity.Store
	sink     Sink
	env      Environment
	meta     tracking.DeviceMeta
	timeout  time.Duration
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger

	mu        sync.Mutex
	userID    string
	lastTouch touchMark
}

type touchMark struct {
	sessionID  string
	durationMs int64
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(t *Tracker) { t.newID = newID }
}

func WithSessionTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func WithEnvironment(env Environment) Option {
	return func(t *Tracker) { t.env = env }
}

// New builds a tracker for one browser profile.
func New(profile *Profile, sink Sink, opts ...Option) *Tracker {
	t := &Tracker{
		consent:  profile.Consent,
		identity: profile.Identity,
		sink:     sink,
		timeout:  DefaultSessionTimeout,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.meta = tracking.DetectDevice(t.env.UserAgent, t.env.Language, t.env.Timezone, t.env.InstalledApp)
	return t
}

// SetUser links a user id to subsequent writes. An empty id unlinks.
func (t *Tracker) SetUser(userID string) {
	t.mu.Lock()
	t.userID = userID
	t.mu.Unlock()
}

func (t *Tracker) user() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.userID
}

// Environment returns the profile environment.
func (t *Tracker) Environment() Environment { return t.env }

// EnsureSession resolves the device and the live session, minting either
// when needed. It returns false without consent.
func (t *Tracker) EnsureSession(ctx context.Context, path, contentID string) (*SessionRef, bool) {
	if !t.consent.HasConsent() {
		return nil, false
	}
	now := t.now()
	userID := t.user()

	ref := &SessionRef{}
	deviceID, ok := t.identity.DeviceID()
	if !ok {
		deviceID = t.newID()
		ref.IsNewDevice = true
		t.remember("device id", t.identity.SetDeviceID(deviceID))
	}
	ref.DeviceID = deviceID

	sessionID, hasSession := t.identity.SessionID()
	lastSeen, hasSeen := t.identity.SessionLastSeen()
	expired := !hasSeen || now.Sub(lastSeen) > t.timeout

	if !hasSession || expired {
		sessionID = t.newID()
		ref.Started = true
		t.remember("session id", t.identity.SetSessionID(sessionID))
		t.remember("session start", t.identity.SetSessionStart(now))

		t.write("start session", t.sink.StartSession(ctx, tracking.SessionStart{
			DeviceMeta:  t.meta,
			ID:          sessionID,
			DeviceID:    deviceID,
			UserID:      userID,
			StartedAt:   now,
			Path:        path,
			EventID:     contentID,
			IsNewDevice: ref.IsNewDevice,
		}))
	}
	ref.SessionID = sessionID

	t.remember("session last seen", t.identity.SetSessionLastSeen(now))
	t.write("upsert device", t.sink.UpsertDevice(ctx, tracking.DeviceUpsert{
		DeviceMeta: t.meta,
		DeviceID:   deviceID,
		UserID:     userID,
		SeenAt:     now,
		IsNew:      ref.IsNewDevice,
		Referrer:   t.env.Referrer,
	}))

	return ref, true
}

// TouchSession extends the live session without ever creating one. It
// returns the duration it wrote, or false when nothing was written.
func (t *Tracker) TouchSession(ctx context.Context, path, contentID string) (int64, bool) {
	if !t.consent.HasConsent() {
		return 0, false
	}
	sessionID, ok := t.identity.SessionID()
	if !ok {
		return 0, false
	}
	deviceID, ok := t.identity.DeviceID()
	if !ok {
		return 0, false
	}

	now := t.now()
	var duration int64
	if start, ok := t.identity.SessionStart(); ok {
		duration = max(0, now.Sub(start).Milliseconds())
	}

	t.mu.Lock()
	if t.lastTouch.sessionID == sessionID && duration < t.lastTouch.durationMs {
		duration = t.lastTouch.durationMs
	}
	t.lastTouch = touchMark{sessionID: sessionID, durationMs: duration}
	userID := t.userID
	t.mu.Unlock()

	t.remember("session last seen", t.identity.SetSessionLastSeen(now))

	t.write("touch session", t.sink.TouchSession(ctx, tracking.SessionTouch{
		ID:         sessionID,
		SeenAt:     now,
		DurationMs: duration,
		Path:       path,
		EventID:    contentID,
		UserID:     userID,
	}))
	t.write("upsert device", t.sink.UpsertDevice(ctx, tracking.DeviceUpsert{
		DeviceMeta: t.meta,
		DeviceID:   deviceID,
		UserID:     userID,
		SeenAt:     now,
		Referrer:   t.env.Referrer,
	}))

	return duration, true
}

func (t *Tracker) write(op string, err error) {
	if err != nil {
		t.logger.Debug("Tracking write failed", slog.String("op", op), slog.Any("error", err))
	}
}

func (t *Tracker) remember(what string, err error) {
	if err != nil {
		t.logger.Debug("Failed to persist identity", slog.String("key", what), slog.Any("error", err))
	}
}
