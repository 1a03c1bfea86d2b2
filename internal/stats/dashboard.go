package stats

import (
	"time"

	"nighthub/internal/timeframe"
	"nighthub/internal/users"
)

// ErrLoadingStatistics is the single message shown when any slice of the
// dashboard fails to load.
const ErrLoadingStatistics = "Error loading statistics"

type Totals struct {
	Users       int64 `json:"users"`
	AnonDevices int64 `json:"anon_devices"`
	Sessions    int   `json:"sessions"`
	Views       int   `json:"views"`
}

type LatestUser struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Dashboard is everything the admin stats screen shows for one window.
type Dashboard struct {
	Window         timeframe.Window `json:"window"`
	Totals         Totals           `json:"totals"`
	ActiveUsers    int              `json:"active_users"`
	AvgSessionMs   int64            `json:"avg_session_ms"`
	LatestUsers    []LatestUser     `json:"latest_users"`
	LastUser       *LatestUser      `json:"last_user"`
	LastActive     *LastActive      `json:"last_active"`
	ActivityRanges []ActivityRange  `json:"activity_ranges"`
	Screens        []ScreenStat     `json:"screens"`
	Content        []ContentStat    `json:"content"`
	Distributions  Distributions    `json:"distributions"`
	Sources        []MetricCount    `json:"sources"`
	Conversion     Conversion       `json:"conversion"`
	Realtime       Realtime         `json:"realtime"`
	Favorites      []RankedItem     `json:"favorites"`
	FavoriteEvents []RankedItem     `json:"favorite_events"`
	FavoriteClubs  []RankedItem     `json:"favorite_clubs"`
	FavoriteDJs    []RankedItem     `json:"favorite_djs"`
	Clicked        []RankedItem     `json:"clicked"`
	SearchTerms    []MetricCount    `json:"search_terms"`
	SearchZones    []MetricCount    `json:"search_zones"`
	SearchedDJs    []RankedItem     `json:"searched_djs"`
}

// Empty is the dashboard with every widget reset, as shown after a failure.
func Empty(window timeframe.Window) *Dashboard {
	return &Dashboard{
		Window:         window,
		LatestUsers:    []LatestUser{},
		ActivityRanges: []ActivityRange{},
		Screens:        []ScreenStat{},
		Content:        []ContentStat{},
		Distributions: Distributions{
			DeviceTypes: []MetricCount{},
			OS:          []MetricCount{},
			Languages:   []MetricCount{},
			Countries:   []MetricCount{},
		},
		Sources:        []MetricCount{},
		Realtime:       Realtime{Screens: []MetricCount{}, Events: []MetricCount{}},
		Favorites:      []RankedItem{},
		FavoriteEvents: []RankedItem{},
		FavoriteClubs:  []RankedItem{},
		FavoriteDJs:    []RankedItem{},
		Clicked:        []RankedItem{},
		SearchTerms:    []MetricCount{},
		SearchZones:    []MetricCount{},
		SearchedDJs:    []RankedItem{},
	}
}

func toLatestUsers(list []users.User) []LatestUser {
	out := make([]LatestUser, 0, len(list))
	for _, u := range list {
		out = append(out, LatestUser{
			ID:          u.ID,
			Email:       u.Email,
			DisplayName: u.DisplayName,
			CreatedAt:   u.CreatedAt,
		})
	}
	return out
}
