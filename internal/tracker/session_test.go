package tracker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nighthub/internal/pkg/user_agent"
	"nighthub/internal/storage"
	"nighthub/internal/tracker"
)

func TestEnsureSessionWithoutConsent(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	ref, ok := h.tracker.EnsureSession(ctx, "/", "")
	assert.False(t, ok)
	assert.Nil(t, ref)

	_, ok = h.tracker.TouchSession(ctx, "/", "")
	assert.False(t, ok)

	tab := tracker.NewTab(h.tracker)
	tab.Navigate(ctx, "/event/e1")
	tab.Hide(ctx)
	tab.Close(ctx)

	assert.Empty(t, h.sink.Ops(), "no write without consent")
	assert.Empty(t, h.identityKeys(), "no identifier minted without consent")
}

func TestEnsureSessionNewDevice(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	first, ok := h.tracker.EnsureSession(ctx, "/", "")
	require.True(t, ok)
	assert.True(t, first.IsNewDevice)
	assert.True(t, first.Started)
	assert.NotEmpty(t, first.DeviceID)
	assert.NotEmpty(t, first.SessionID)

	require.Len(t, h.sink.sessions, 1)
	started := h.sink.sessions[0]
	assert.True(t, started.IsNewDevice)
	assert.Equal(t, first.SessionID, started.ID)
	assert.Equal(t, user_agent.DeviceMobile, started.DeviceType)
	assert.Equal(t, user_agent.OSIOS, started.OS)

	require.Len(t, h.sink.devices, 1)
	assert.True(t, h.sink.devices[0].IsNew)
	assert.Equal(t, "https://instagram.com/", h.sink.devices[0].Referrer)

	for i := 0; i < 3; i++ {
		h.clock.Advance(time.Minute)
		again, ok := h.tracker.EnsureSession(ctx, "/", "")
		require.True(t, ok)
		assert.Equal(t, first.DeviceID, again.DeviceID, "device id is stable")
		assert.Equal(t, first.SessionID, again.SessionID)
		assert.False(t, again.IsNewDevice)
		assert.False(t, again.Started)
	}

	assert.Len(t, h.sink.sessions, 1, "only the first call creates a session")
	for _, d := range h.sink.devices[1:] {
		assert.False(t, d.IsNew)
	}
}

func TestEnsureSessionExpiryBoundary(t *testing.T) {
	testCases := []struct {
		name       string
		idleFor    time.Duration
		newSession bool
	}{
		{"29 minutes idle reuses", 29 * time.Minute, false},
		{"exactly 30 minutes idle reuses", 30 * time.Minute, false},
		{"30 minutes and 1ms idle expires", 30*time.Minute + time.Millisecond, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, true)
			ctx := context.Background()

			first, ok := h.tracker.EnsureSession(ctx, "/", "")
			require.True(t, ok)

			h.clock.Advance(tc.idleFor)
			next, ok := h.tracker.EnsureSession(ctx, "/", "")
			require.True(t, ok)

			assert.Equal(t, first.DeviceID, next.DeviceID)
			assert.Equal(t, tc.newSession, next.Started)
			if tc.newSession {
				assert.NotEqual(t, first.SessionID, next.SessionID)
			} else {
				assert.Equal(t, first.SessionID, next.SessionID)
			}
		})
	}
}

func TestNewSessionThenHeartbeatScenario(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	first, ok := h.tracker.EnsureSession(ctx, "/", "")
	require.True(t, ok)
	assert.True(t, first.IsNewDevice)
	require.Len(t, h.sink.sessions, 1)
	assert.True(t, h.sink.sessions[0].IsNewDevice)

	duration, ok := h.tracker.TouchSession(ctx, "/", "")
	require.True(t, ok)
	assert.Zero(t, duration)

	h.clock.Advance(35 * time.Minute)
	second, ok := h.tracker.EnsureSession(ctx, "/", "")
	require.True(t, ok)

	assert.Equal(t, first.DeviceID, second.DeviceID)
	assert.NotEqual(t, first.SessionID, second.SessionID)
	assert.False(t, second.IsNewDevice)
	require.Len(t, h.sink.sessions, 2)
	assert.False(t, h.sink.sessions[1].IsNewDevice)

	duration, ok = h.tracker.TouchSession(ctx, "/", "")
	require.True(t, ok)
	assert.Zero(t, duration, "duration restarts with the new session")
}

func TestTouchSessionDurationNeverDecreases(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	_, ok := h.tracker.EnsureSession(ctx, "/", "")
	require.True(t, ok)

	steps := []time.Duration{10 * time.Second, 30 * time.Second, -20 * time.Second, time.Minute, 0}
	for _, step := range steps {
		h.clock.Advance(step)
		_, ok := h.tracker.TouchSession(ctx, "/", "")
		require.True(t, ok)
	}

	touches := h.sink.Touches()
	require.Len(t, touches, len(steps))
	for i := 1; i < len(touches); i++ {
		assert.GreaterOrEqual(t, touches[i].DurationMs, touches[i-1].DurationMs)
	}
	assert.Equal(t, int64(80_000), touches[len(touches)-1].DurationMs)
}

func TestTouchSessionNeverMintsSession(t *testing.T) {
	h := newHarness(t, true)

	_, ok := h.tracker.TouchSession(context.Background(), "/", "")
	assert.False(t, ok)
	assert.Empty(t, h.sink.Ops())
	assert.Empty(t, h.identityKeys())
}

func TestTouchSessionKeepsIdleTabAlive(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	first, _ := h.tracker.EnsureSession(ctx, "/", "")
	for i := 0; i < 4; i++ {
		h.clock.Advance(20 * time.Minute)
		h.tracker.TouchSession(ctx, "/", "")
	}

	next, ok := h.tracker.EnsureSession(ctx, "/", "")
	require.True(t, ok)
	assert.Equal(t, first.SessionID, next.SessionID)
}

func TestSinkFailuresDoNotBreakLocalState(t *testing.T) {
	h := newHarness(t, true)
	h.sink.err = errors.New("store unavailable")
	ctx := context.Background()

	first, ok := h.tracker.EnsureSession(ctx, "/", "")
	require.True(t, ok)

	stored, ok := h.profile.Identity.SessionID()
	require.True(t, ok)
	assert.Equal(t, first.SessionID, stored)

	h.clock.Advance(time.Minute)
	next, ok := h.tracker.EnsureSession(ctx, "/", "")
	require.True(t, ok)
	assert.Equal(t, first.SessionID, next.SessionID)
}

func TestSetUserLinksWrites(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	h.tracker.EnsureSession(ctx, "/", "")
	h.tracker.SetUser("u1")
	h.tracker.TouchSession(ctx, "/me", "")

	touches := h.sink.Touches()
	require.Len(t, touches, 1)
	assert.Equal(t, "u1", touches[0].UserID)
	assert.Equal(t, "/me", touches[0].Path)
}

func TestRevokeConsentClearsIdentity(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	_, ok := h.tracker.EnsureSession(ctx, "/", "")
	require.True(t, ok)
	require.NotEmpty(t, h.identityKeys())

	require.NoError(t, h.profile.Consent.Revoke())

	_, ok = h.profile.Identity.DeviceID()
	assert.False(t, ok)
	_, ok = h.profile.Identity.SessionID()
	assert.False(t, ok)
	assert.Empty(t, h.identityKeys(), "no identifier left in either channel")

	consentValue, _ := h.durable.Get(storage.KeyConsent)
	assert.Equal(t, "rejected", consentValue)

	h.sink.Reset()
	_, ok = h.tracker.EnsureSession(ctx, "/", "")
	assert.False(t, ok)
	assert.Empty(t, h.sink.Ops())
}

func TestCrossTabSessionRace(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	// Both tabs read the expired session before either writes a new one.
	h.tracker.EnsureSession(ctx, "/", "")
	h.clock.Advance(31 * time.Minute)

	other := tracker.New(h.profile, h.sink,
		tracker.WithClock(h.clock.Now),
		tracker.WithIDGenerator(func() string { return "other-tab-session" }),
	)
	require.NoError(t, h.profile.Identity.SetSessionLastSeen(h.clock.Now().Add(-31*time.Minute)))
	a, _ := h.tracker.EnsureSession(ctx, "/", "")
	require.NoError(t, h.profile.Identity.SetSessionLastSeen(h.clock.Now().Add(-31*time.Minute)))
	b, _ := other.EnsureSession(ctx, "/", "")

	assert.NotEqual(t, a.SessionID, b.SessionID, "uncoordinated tabs may mint two sessions")
	current, _ := h.profile.Identity.SessionID()
	assert.Equal(t, b.SessionID, current, "last writer wins locally")
}
