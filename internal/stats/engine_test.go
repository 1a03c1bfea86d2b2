package stats_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"nighthub/internal/catalog"
	"nighthub/internal/clicks"
	"nighthub/internal/favorites"
	"nighthub/internal/search"
	"nighthub/internal/stats"
	"nighthub/internal/testsupport"
	"nighthub/internal/timeframe"
	"nighthub/internal/tracking"
	"nighthub/internal/users"
)

var engineNow = time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)

func lastWeek() timeframe.Window {
	from := engineNow.Add(-7 * 24 * time.Hour)
	to := engineNow
	return timeframe.Window{From: &from, To: &to, Label: "7d"}
}

func newEngine(db *gorm.DB) *stats.Engine {
	return stats.NewEngine(db, testsupport.GetLogger(),
		stats.WithClock(func() time.Time { return engineNow }),
		stats.WithWorkers(1))
}

func seedDashboard(t *testing.T, db *gorm.DB) {
	t.Helper()
	now := engineNow
	at := func(d time.Duration) time.Time { return now.Add(-d) }
	ptrTime := func(t time.Time) *time.Time { return &t }

	require.NoError(t, db.Create(&users.User{ID: "u1", Email: "ana@example.com", DisplayName: "Ana", CreatedAt: at(time.Hour)}).Error)
	require.NoError(t, db.Create(&users.User{ID: "u2", Email: "leo@example.com", CreatedAt: at(30 * 24 * time.Hour)}).Error)

	testsupport.CreateTestEvent(t, db, "e1", "Techno Night", "https://tickets.example.com/e1")
	testsupport.CreateTestEvent(t, db, "e2", "House Sunday", "")
	require.NoError(t, db.Create(&catalog.Club{ID: "c1", Name: "Fabrik"}).Error)
	require.NoError(t, db.Create(&catalog.DJ{ID: "d1", Name: "Amelie Lens"}).Error)

	require.NoError(t, db.Create(&tracking.Device{DeviceID: "dev1", FirstSeenAt: ptrTime(at(time.Hour)), LastSeenAt: at(time.Minute), FirstReferrer: "https://l.instagram.com/"}).Error)
	require.NoError(t, db.Create(&tracking.Device{DeviceID: "dev2", UserID: "u1", FirstSeenAt: ptrTime(at(10 * 24 * time.Hour)), LastSeenAt: at(3 * time.Hour)}).Error)

	testsupport.CreateTestSession(t, db, tracking.Session{
		ID: "s1", DeviceID: "dev1", StartedAt: at(2 * time.Minute), LastSeenAt: at(time.Minute), DurationMs: 60000,
		CurrentPath: "/event/e1", CurrentEventID: "e1", IsNewDevice: true,
		DeviceType: "mobile", OS: "ios", Lang: "es-ES", Country: "ES",
	})
	testsupport.CreateTestSession(t, db, tracking.Session{
		ID: "s2", DeviceID: "dev2", UserID: "u1", StartedAt: at(5 * time.Hour), LastSeenAt: at(3 * time.Hour), DurationMs: 120000,
		CurrentPath: "/", DeviceType: "desktop", OS: "mac", Lang: "en-GB",
	})

	views := []tracking.PageView{
		{ID: "v1", SessionID: "s1", DeviceID: "dev1", Path: "/event/e1", Screen: "/event/e1", EventID: "e1", StartedAt: at(2 * time.Minute), DurationMs: ms(5000)},
		{ID: "v2", SessionID: "s1", DeviceID: "dev1", Path: "/event/e1?ref=ig", Screen: "/event/e1", EventID: "e1", StartedAt: at(90 * time.Second), DurationMs: ms(20000)},
		{ID: "v3", SessionID: "s2", DeviceID: "dev2", UserID: "u1", Path: "/", Screen: "/", StartedAt: at(5 * time.Hour)},
		{ID: "v4", SessionID: "s2", DeviceID: "dev2", UserID: "u1", Path: "/event/e2", Screen: "/event/e2", EventID: "e2", StartedAt: at(4 * time.Hour), DurationMs: ms(30000)},
		{ID: "old", SessionID: "s0", DeviceID: "dev2", Path: "/", Screen: "/", StartedAt: at(20 * 24 * time.Hour)},
	}
	for _, v := range views {
		testsupport.CreateTestPageView(t, db, v)
	}

	require.NoError(t, db.Create(&clicks.Click{EventID: "e1", DeviceID: "dev1", Source: clicks.DefaultSource, TS: at(30 * time.Minute)}).Error)

	for _, f := range []favorites.Favorite{
		{UserID: "u1", TargetType: catalog.TypeClub, TargetID: "c1", CreatedAt: at(2 * time.Hour)},
		{UserID: "u1", TargetType: catalog.TypeEvent, TargetID: "e1", CreatedAt: at(2 * time.Hour)},
		{UserID: "u2", TargetType: catalog.TypeEvent, TargetID: "e1", CreatedAt: at(2 * time.Hour)},
		{UserID: "u1", TargetType: catalog.TypeDJ, TargetID: "d1", CreatedAt: at(2 * time.Hour)},
	} {
		require.NoError(t, db.Create(&f).Error)
	}

	require.NoError(t, db.Create(&search.Log{Q: "lens", Tab: search.TabDJs, TS: at(time.Hour)}).Error)
	require.NoError(t, db.Create(&search.Log{Q: "Techno", Zone: "Centro", TS: at(time.Hour)}).Error)
}

func TestDashboard(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	seedDashboard(t, db)

	d, err := newEngine(db).Dashboard(context.Background(), lastWeek())
	require.NoError(t, err)

	assert.Equal(t, stats.Totals{Users: 2, AnonDevices: 1, Sessions: 2, Views: 4}, d.Totals)
	assert.Equal(t, 2, d.ActiveUsers)
	assert.Equal(t, int64(90000), d.AvgSessionMs)

	require.Len(t, d.LatestUsers, 2)
	assert.Equal(t, "u1", d.LatestUsers[0].ID)
	require.NotNil(t, d.LastUser)
	assert.Equal(t, "ana@example.com", d.LastUser.Email)

	require.NotNil(t, d.LastActive)
	assert.Equal(t, "device:dev1", d.LastActive.Label)
	assert.Equal(t, "/event/e1", d.LastActive.Path)

	assert.Equal(t, 1, d.Realtime.ActiveSessions)
	assert.Equal(t, []stats.MetricCount{{Name: "Techno Night", Count: 1}}, d.Realtime.Events)

	require.Len(t, d.Content, 2)
	assert.Equal(t, stats.ContentStat{ID: "e1", Name: "Techno Night", Views: 2, AvgMs: 12500, Clicks: 1, CTR: 50}, d.Content[0])
	assert.Equal(t, "House Sunday", d.Content[1].Name)

	require.NotEmpty(t, d.Screens)
	assert.Equal(t, stats.ScreenStat{Screen: "/event/e1", Views: 2, AvgMs: 12500, BounceRate: 50}, d.Screens[0])

	assert.Equal(t, stats.Conversion{Registrations: 1, RegRate: 50, ClickRate: 33}, d.Conversion)

	assert.Equal(t, []stats.RankedItem{
		{ID: "e1", Name: "Techno Night", Type: catalog.TypeEvent, Count: 2},
		{ID: "c1", Name: "Fabrik", Type: catalog.TypeClub, Count: 1},
		{ID: "d1", Name: "Amelie Lens", Type: catalog.TypeDJ, Count: 1},
	}, d.Favorites)
	assert.Len(t, d.FavoriteEvents, 1)
	assert.Len(t, d.FavoriteClubs, 1)
	assert.Len(t, d.FavoriteDJs, 1)

	assert.Equal(t, []stats.RankedItem{{ID: "e1", Name: "Techno Night", Count: 1}}, d.Clicked)
	assert.Equal(t, []stats.MetricCount{{Name: "lens", Count: 1}, {Name: "techno", Count: 1}}, d.SearchTerms)
	assert.Equal(t, []stats.MetricCount{{Name: "Centro", Count: 1}}, d.SearchZones)
	assert.Equal(t, []stats.RankedItem{{ID: "d1", Name: "Amelie Lens", Type: catalog.TypeDJ, Count: 1}}, d.SearchedDJs)
	assert.Equal(t, []stats.MetricCount{{Name: "Instagram", Count: 1}}, d.Sources)

	require.Len(t, d.ActivityRanges, 4)
	assert.Equal(t, 2, d.ActivityRanges[0].Sessions)
	assert.Equal(t, []stats.MetricCount{{Name: "es", Count: 1}, {Name: "en", Count: 1}}, d.Distributions.Languages)
}

func TestDashboardEmptyDatabase(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	d, err := newEngine(db).Dashboard(context.Background(), timeframe.Window{Label: "all"})
	require.NoError(t, err)
	assert.Nil(t, d.LastActive)
	assert.Nil(t, d.LastUser)
	assert.Equal(t, stats.Totals{}, d.Totals)
	assert.NotNil(t, d.Screens)
	assert.NotNil(t, d.SearchedDJs)
}

func TestDashboardResetsOnFailure(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	seedDashboard(t, db)
	require.NoError(t, db.Exec("DROP TABLE search_logs").Error)

	window := lastWeek()
	d, err := newEngine(db).Dashboard(context.Background(), window)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "searches")
	assert.Equal(t, stats.Empty(window), d, "no partial data survives a failed slice")
}

func TestDashboardCancelledContext(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d, err := newEngine(db).Dashboard(ctx, lastWeek())
	require.Error(t, err)
	assert.Equal(t, stats.Empty(lastWeek()), d)
}
