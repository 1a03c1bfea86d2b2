package tracking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nighthub/internal/testsupport"
	"nighthub/internal/tracking"
)

func TestRepositoryUpsertDevice(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	repo := tracking.NewRepository(db, nil)
	ctx := context.Background()
	first := time.Date(2025, 3, 1, 22, 0, 0, 0, time.UTC)

	require.NoError(t, repo.UpsertDevice(ctx, tracking.DeviceUpsert{
		DeviceID: "d1",
		SeenAt:   first,
		IsNew:    true,
		Referrer: "https://www.instagram.com/",
		DeviceMeta: tracking.DeviceMeta{
			DeviceType: "mobile",
			OS:         "ios",
		},
	}))

	// A later write from the same device must not rewrite first-seen state.
	require.NoError(t, repo.UpsertDevice(ctx, tracking.DeviceUpsert{
		DeviceID: "d1",
		UserID:   "u1",
		SeenAt:   first.Add(time.Hour),
		IsNew:    false,
		Referrer: "https://www.google.com/",
		DeviceMeta: tracking.DeviceMeta{
			DeviceType: "mobile",
			OS:         "ios",
		},
	}))

	var device tracking.Device
	require.NoError(t, db.First(&device, "device_id = ?", "d1").Error)
	require.NotNil(t, device.FirstSeenAt)
	assert.True(t, device.FirstSeenAt.Equal(first))
	assert.True(t, device.LastSeenAt.Equal(first.Add(time.Hour)))
	assert.Equal(t, "https://www.instagram.com/", device.FirstReferrer)
	assert.Equal(t, "https://www.google.com/", device.LastReferrer)
	assert.Equal(t, "u1", device.UserID)
}

func TestRepositorySessionDurationNeverDecreases(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	repo := tracking.NewRepository(db, nil)
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)

	require.NoError(t, repo.StartSession(ctx, tracking.SessionStart{
		ID:        "s1",
		DeviceID:  "d1",
		StartedAt: start,
		Path:      "/",
	}))

	touches := []struct {
		at       time.Duration
		duration int64
		path     string
	}{
		{30 * time.Second, 30_000, "/event/e1"},
		{90 * time.Second, 90_000, "/search"},
		{60 * time.Second, 60_000, "/event/e2"}, // late arrival
		{120 * time.Second, -5, "/"},
	}
	for _, tc := range touches {
		require.NoError(t, repo.TouchSession(ctx, tracking.SessionTouch{
			ID:         "s1",
			SeenAt:     start.Add(tc.at),
			DurationMs: tc.duration,
			Path:       tc.path,
		}))
	}

	var session tracking.Session
	require.NoError(t, db.First(&session, "id = ?", "s1").Error)
	assert.Equal(t, int64(90_000), session.DurationMs)
	assert.Equal(t, "/", session.CurrentPath)
	assert.True(t, session.StartedAt.Equal(start))
}

func TestRepositoryEndViewKeepsFirstEnd(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	repo := tracking.NewRepository(db, nil)
	ctx := context.Background()
	start := time.Date(2025, 3, 2, 1, 0, 0, 0, time.UTC)

	require.NoError(t, repo.StartView(ctx, tracking.ViewStart{
		ID:        "v1",
		SessionID: "s1",
		DeviceID:  "d1",
		Path:      "/event/e1?tab=info",
		Screen:    "/event/e1",
		EventID:   "e1",
		StartedAt: start,
	}))

	var view tracking.PageView
	require.NoError(t, db.First(&view, "id = ?", "v1").Error)
	assert.Nil(t, view.EndedAt)
	assert.Nil(t, view.DurationMs)

	require.NoError(t, repo.EndView(ctx, tracking.ViewEnd{ID: "v1", EndedAt: start.Add(12 * time.Second), DurationMs: 12_000}))
	require.NoError(t, repo.EndView(ctx, tracking.ViewEnd{ID: "v1", EndedAt: start.Add(time.Minute), DurationMs: 60_000}))

	require.NoError(t, db.First(&view, "id = ?", "v1").Error)
	require.NotNil(t, view.EndedAt)
	require.NotNil(t, view.DurationMs)
	assert.True(t, view.EndedAt.Equal(start.Add(12*time.Second)))
	assert.Equal(t, int64(12_000), *view.DurationMs)
}

func TestDetectDevice(t *testing.T) {
	tests := []struct {
		name       string
		userAgent  string
		deviceType string
		os         string
	}{
		{
			name:       "iphone",
			userAgent:  "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
			deviceType: "mobile",
			os:         "ios",
		},
		{
			name:       "windows desktop",
			userAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
			deviceType: "desktop",
			os:         "windows",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := tracking.DetectDevice(tt.userAgent, "es-ES", "Europe/Madrid", false)
			assert.Equal(t, tt.deviceType, meta.DeviceType)
			assert.Equal(t, tt.os, meta.OS)
			assert.Equal(t, "es-ES", meta.Lang)
		})
	}
}

func TestClassifyKeepsClientValues(t *testing.T) {
	meta := tracking.DeviceMeta{
		DeviceType: "tablet",
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	}
	bot := meta.Classify()
	assert.False(t, bot)
	assert.Equal(t, "tablet", meta.DeviceType)
	assert.Equal(t, "windows", meta.OS)
}
