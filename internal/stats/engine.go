// Package stats derives the admin dashboard from raw tracking rows. Every
// request reads the rows for its window and aggregates them in memory.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"nighthub/internal/catalog"
	"nighthub/internal/clicks"
	"nighthub/internal/favorites"
	"nighthub/internal/pkg/async"
	"nighthub/internal/search"
	"nighthub/internal/timeframe"
	"nighthub/internal/tracking"
	"nighthub/internal/users"
)

const (
	latestUsersLimit      = 20
	defaultWorkers        = 4
	defaultRealtimeWindow = 2 * time.Minute
	yearWindow            = 365 * 24 * time.Hour
)

const (
	taskLatestUsers   = "latestUsers"
	taskUsersCount    = "usersCount"
	taskAnonDevices   = "anonDevices"
	taskSessions      = "sessions"
	taskViews         = "views"
	taskClicks        = "clicks"
	taskRegistrations = "registrations"
	taskYearSessions  = "yearSessions"
	taskLastActive    = "lastActive"
	taskRealtime      = "realtime"
	taskFavorites     = "favorites"
	taskSearches      = "searches"
	taskNewDevices    = "newDevices"
)

type Engine struct {
	db              *gorm.DB
	logger          *slog.Logger
	pool            *async.Pool
	now             func() time.Time
	bounceThreshold time.Duration
	realtimeWindow  time.Duration
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithWorkers(n int) Option {
	return func(e *Engine) { e.pool = async.NewPool(n) }
}

func WithBounceThreshold(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.bounceThreshold = d
		}
	}
}

func WithRealtimeWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.realtimeWindow = d
		}
	}
}

func NewEngine(db *gorm.DB, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		db:              db,
		logger:          logger,
		pool:            async.NewPool(defaultWorkers),
		now:             time.Now,
		bounceThreshold: DefaultBounceThreshold,
		realtimeWindow:  defaultRealtimeWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dashboard loads every raw slice for window concurrently and derives the
// dashboard from them. If any slice fails the whole dashboard is reset to
// Empty and the first failure is returned. Display-name lookups that run
// afterwards are best-effort.
func (e *Engine) Dashboard(ctx context.Context, window timeframe.Window) (*Dashboard, error) {
	now := e.now().UTC()
	db := e.db.WithContext(ctx)
	realtime := timeframe.Trailing(now, e.realtimeWindow, "realtime")
	yearFrom := now.Add(-yearWindow)

	tasks := []async.Task{
		{Name: taskLatestUsers, Execute: func(context.Context) (interface{}, error) {
			return users.Latest(db, latestUsersLimit)
		}},
		{Name: taskUsersCount, Execute: func(context.Context) (interface{}, error) {
			return users.Count(db)
		}},
		{Name: taskAnonDevices, Execute: func(context.Context) (interface{}, error) {
			var n int64
			err := db.Model(&tracking.Device{}).Where("user_id IS NULL OR user_id = ''").Count(&n).Error
			return n, err
		}},
		{Name: taskSessions, Execute: func(context.Context) (interface{}, error) {
			var rows []tracking.Session
			err := window.Apply(db.Model(&tracking.Session{}), "last_seen_at").Find(&rows).Error
			return rows, err
		}},
		{Name: taskViews, Execute: func(context.Context) (interface{}, error) {
			var rows []tracking.PageView
			err := window.Apply(db.Model(&tracking.PageView{}), "started_at").Find(&rows).Error
			return rows, err
		}},
		{Name: taskClicks, Execute: func(context.Context) (interface{}, error) {
			var rows []clicks.Click
			err := window.Apply(db.Model(&clicks.Click{}), "ts").Find(&rows).Error
			return rows, err
		}},
		{Name: taskRegistrations, Execute: func(context.Context) (interface{}, error) {
			var n int64
			err := window.Apply(db.Model(&users.User{}), "created_at").Count(&n).Error
			return n, err
		}},
		{Name: taskYearSessions, Execute: func(context.Context) (interface{}, error) {
			var rows []tracking.Session
			err := db.Where("last_seen_at >= ?", yearFrom).Find(&rows).Error
			return rows, err
		}},
		{Name: taskLastActive, Execute: func(context.Context) (interface{}, error) {
			var rows []tracking.Session
			if err := db.Order("last_seen_at DESC").Limit(1).Find(&rows).Error; err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				return (*tracking.Session)(nil), nil
			}
			return &rows[0], nil
		}},
		{Name: taskRealtime, Execute: func(context.Context) (interface{}, error) {
			var rows []tracking.Session
			err := realtime.Apply(db.Model(&tracking.Session{}), "last_seen_at").Find(&rows).Error
			return rows, err
		}},
		{Name: taskFavorites, Execute: func(context.Context) (interface{}, error) {
			var rows []favorites.Favorite
			err := window.Apply(db.Model(&favorites.Favorite{}), "created_at").Find(&rows).Error
			return rows, err
		}},
		{Name: taskSearches, Execute: func(context.Context) (interface{}, error) {
			var rows []search.Log
			err := window.Apply(db.Model(&search.Log{}), "ts").Find(&rows).Error
			return rows, err
		}},
		{Name: taskNewDevices, Execute: func(context.Context) (interface{}, error) {
			var rows []tracking.Device
			err := window.Apply(db.Model(&tracking.Device{}), "first_seen_at").Find(&rows).Error
			return rows, err
		}},
	}

	results := e.pool.Execute(ctx, tasks)
	if name, err := async.FirstError(tasks, results, ctx.Err()); err != nil {
		e.logger.Error(ErrLoadingStatistics,
			slog.String("slice", name),
			slog.String("window", window.Label),
			slog.Any("error", err))
		return Empty(window), fmt.Errorf("error loading %s: %w", name, err)
	}

	sessions := resultAs[[]tracking.Session](results, taskSessions)
	views := resultAs[[]tracking.PageView](results, taskViews)
	clickRows := resultAs[[]clicks.Click](results, taskClicks)
	realtimeRows := resultAs[[]tracking.Session](results, taskRealtime)
	searches := resultAs[[]search.Log](results, taskSearches)
	latest := toLatestUsers(resultAs[[]users.User](results, taskLatestUsers))

	d := Empty(window)
	d.Totals = Totals{
		Users:       resultAs[int64](results, taskUsersCount),
		AnonDevices: resultAs[int64](results, taskAnonDevices),
		Sessions:    len(sessions),
		Views:       len(views),
	}
	d.ActiveUsers = ActiveUsers(sessions)
	d.AvgSessionMs = AverageSessionDuration(sessions)
	d.LatestUsers = latest
	if len(latest) > 0 {
		d.LastUser = &latest[0]
	}
	d.ActivityRanges = ActivityRanges(resultAs[[]tracking.Session](results, taskYearSessions), now)
	d.Screens = ScreenStats(views, e.bounceThreshold)
	d.Distributions = BuildDistributions(sessions)
	d.Sources = ReferrerSources(resultAs[[]tracking.Device](results, taskNewDevices))
	d.Conversion = BuildConversion(resultAs[int64](results, taskRegistrations), len(sessions), len(clickRows), ContentViews(views))
	d.SearchTerms = SearchTerms(searches)
	d.SearchZones = SearchZones(searches)

	favs := TopFavorites(resultAs[[]favorites.Favorite](results, taskFavorites))
	clicked := TopClicked(clickRows)

	eventIDs := ContentIDs(views)
	eventIDs = append(eventIDs, RealtimeContentIDs(realtimeRows)...)
	for _, it := range clicked {
		eventIDs = append(eventIDs, it.ID)
	}
	eventIDs = append(eventIDs, idsOfType(favs, catalog.TypeEvent)...)
	eventNames := e.names(db, catalog.TypeEvent, eventIDs)

	d.Content = ContentStats(views, clickRows, eventNames)
	d.Realtime = RealtimeStats(realtimeRows, eventNames)
	for i := range clicked {
		clicked[i].Name = nameOr(eventNames, clicked[i].ID)
	}
	d.Clicked = clicked

	favNames := map[string]map[string]string{
		catalog.TypeEvent: eventNames,
		catalog.TypeClub:  e.names(db, catalog.TypeClub, idsOfType(favs, catalog.TypeClub)),
		catalog.TypeDJ:    e.names(db, catalog.TypeDJ, idsOfType(favs, catalog.TypeDJ)),
	}
	for i := range favs {
		favs[i].Name = nameOr(favNames[favs[i].Type], favs[i].ID)
	}
	d.Favorites = favs
	d.FavoriteEvents = SplitByType(favs, catalog.TypeEvent)
	d.FavoriteClubs = SplitByType(favs, catalog.TypeClub)
	d.FavoriteDJs = SplitByType(favs, catalog.TypeDJ)

	d.SearchedDJs = e.searchedDJs(db, searches)

	if last := resultAs[*tracking.Session](results, taskLastActive); last != nil {
		var user *users.User
		if last.UserID != "" {
			u, err := users.FindByID(db, last.UserID)
			if err != nil {
				e.logger.Warn("Failed to resolve last active user", slog.String("user_id", last.UserID), slog.Any("error", err))
			}
			user = u
		}
		la := LastActiveFrom(*last, user)
		d.LastActive = &la
	}

	return d, nil
}

func (e *Engine) searchedDJs(db *gorm.DB, searches []search.Log) []RankedItem {
	terms := namesOf(searchTermCounter(searches, true).Top(topDJTerms))
	if len(terms) == 0 {
		return []RankedItem{}
	}
	djs, err := catalog.DJsMatching(db, terms)
	if err != nil {
		e.logger.Warn("Failed to match searched DJs", slog.Any("error", err))
		return []RankedItem{}
	}
	return SearchedDJs(searches, djs)
}

func (e *Engine) names(db *gorm.DB, targetType string, ids []string) map[string]string {
	names, err := catalog.NamesByID(db, targetType, dedupe(ids))
	if err != nil {
		e.logger.Warn("Failed to resolve names", slog.String("type", targetType), slog.Any("error", err))
		return map[string]string{}
	}
	return names
}

func resultAs[T any](results map[string]async.Result, name string) T {
	v, _ := results[name].Data.(T)
	return v
}

func idsOfType(items []RankedItem, targetType string) []string {
	var ids []string
	for _, it := range items {
		if it.Type == targetType {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
