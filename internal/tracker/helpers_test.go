package tracker_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nighthub/internal/storage"
	"nighthub/internal/tracker"
	"nighthub/internal/tracking"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

type recordingSink struct {
	mu       sync.Mutex
	ops      []string
	devices  []tracking.DeviceUpsert
	sessions []tracking.SessionStart
	touches  []tracking.SessionTouch
	views    []tracking.ViewStart
	ends     []tracking.ViewEnd
	err      error
}

func (s *recordingSink) record(op string) error {
	s.ops = append(s.ops, op)
	return s.err
}

func (s *recordingSink) UpsertDevice(_ context.Context, in tracking.DeviceUpsert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = append(s.devices, in)
	return s.record(tracker.OpDevice)
}

func (s *recordingSink) StartSession(_ context.Context, in tracking.SessionStart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, in)
	return s.record(tracker.OpSessionStart)
}

func (s *recordingSink) TouchSession(_ context.Context, in tracking.SessionTouch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touches = append(s.touches, in)
	return s.record(tracker.OpSessionTouch)
}

func (s *recordingSink) StartView(_ context.Context, in tracking.ViewStart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, in)
	return s.record(tracker.OpViewStart)
}

func (s *recordingSink) EndView(_ context.Context, in tracking.ViewEnd) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ends = append(s.ends, in)
	return s.record(tracker.OpViewEnd)
}

func (s *recordingSink) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

func (s *recordingSink) Touches() []tracking.SessionTouch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tracking.SessionTouch(nil), s.touches...)
}

func (s *recordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = nil
	s.devices = nil
	s.sessions = nil
	s.touches = nil
	s.views = nil
	s.ends = nil
}

type harness struct {
	clock   *fakeClock
	sink    *recordingSink
	durable *storage.MemoryStore
	cookies *storage.CookieJar
	profile *tracker.Profile
	tracker *tracker.Tracker
}

func newHarness(t *testing.T, granted bool) *harness {
	t.Helper()

	h := &harness{
		clock:   newFakeClock(),
		sink:    &recordingSink{},
		durable: storage.NewMemoryStore(),
	}
	h.cookies = storage.NewCookieJar(storage.WithClock(h.clock.Now))
	h.profile = tracker.NewProfile(h.durable, h.cookies)
	if granted {
		require.NoError(t, h.profile.Consent.Grant())
	}
	h.tracker = tracker.New(h.profile, h.sink,
		tracker.WithClock(h.clock.Now),
		tracker.WithIDGenerator(sequentialIDs()),
		tracker.WithEnvironment(tracker.Environment{
			UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148",
			Language:  "es-ES",
			Timezone:  "Europe/Madrid",
			Referrer:  "https://instagram.com/",
		}),
	)
	return h
}

// identityKeys lists identity keys still present in either channel.
func (h *harness) identityKeys() []string {
	var present []string
	for _, key := range []string{storage.KeyDevice, storage.KeySession, storage.KeySessionSeen, storage.KeySessionStart} {
		if _, ok := h.durable.Get(key); ok {
			present = append(present, "durable:"+key)
		}
		if _, ok := h.cookies.Get(key); ok {
			present = append(present, "cookie:"+key)
		}
	}
	return present
}
