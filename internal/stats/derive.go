package stats

import (
	"strings"
	"time"

	"nighthub/internal/catalog"
	"nighthub/internal/clicks"
	"nighthub/internal/favorites"
	"nighthub/internal/pkg/referrers"
	"nighthub/internal/search"
	"nighthub/internal/timeframe"
	"nighthub/internal/tracking"
	"nighthub/internal/users"
)

const (
	unknownLabel = "unknown"

	topScreens        = 12
	topContent        = 10
	topBuckets        = 8
	topRealtimeScreen = 8
	topRealtimeEvents = 6
	topFavorites      = 10
	topClicked        = 10
	topSearchTerms    = 10
	topZones          = 10
	topDJTerms        = 15
	topDJs            = 10
)

// DefaultBounceThreshold is the dwell time under which a view is a bounce.
const DefaultBounceThreshold = 10 * time.Second

var activityRangeDays = []struct {
	label string
	days  int
}{
	{"1d", 1},
	{"7d", 7},
	{"30d", 30},
	{"365d", 365},
}

// ActorKey identifies who a row belongs to: the user when signed in,
// otherwise the device.
func ActorKey(userID, deviceID string) string {
	switch {
	case userID != "":
		return "u:" + userID
	case deviceID != "":
		return "d:" + deviceID
	default:
		return unknownLabel
	}
}

// ActiveUsers counts distinct actors across sessions.
func ActiveUsers(sessions []tracking.Session) int {
	seen := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		seen[ActorKey(s.UserID, s.DeviceID)] = struct{}{}
	}
	return len(seen)
}

// AverageSessionDuration is the rounded mean of the positive session
// durations, in milliseconds.
func AverageSessionDuration(sessions []tracking.Session) int64 {
	durations := make([]int64, 0, len(sessions))
	for _, s := range sessions {
		if s.DurationMs > 0 {
			durations = append(durations, s.DurationMs)
		}
	}
	return average(durations)
}

type ActivityRange struct {
	Label            string `json:"label"`
	Days             int    `json:"days"`
	ActiveUsers      int    `json:"active_users"`
	AvgDaily         int64  `json:"avg_daily"`
	Sessions         int    `json:"sessions"`
	AvgSessionMs     int64  `json:"avg_session_ms"`
	NewDevices       int    `json:"new_devices"`
	ReturningDevices int    `json:"returning_devices"`
}

// ActivityRanges summarises the last 1, 7, 30 and 365 days of sessions
// ending at now. Sessions are attributed by last_seen_at.
func ActivityRanges(yearSessions []tracking.Session, now time.Time) []ActivityRange {
	out := make([]ActivityRange, 0, len(activityRangeDays))
	for _, r := range activityRangeDays {
		cutoff := now.Add(-time.Duration(r.days) * 24 * time.Hour)

		active := map[string]struct{}{}
		daily := NewCounter()
		dayActors := map[string]map[string]struct{}{}
		devices := map[string]struct{}{}
		newDevices := map[string]struct{}{}
		var durations []int64
		count := 0

		for _, s := range yearSessions {
			if s.LastSeenAt.Before(cutoff) {
				continue
			}
			count++
			key := ActorKey(s.UserID, s.DeviceID)
			active[key] = struct{}{}
			if s.DeviceID != "" {
				devices[s.DeviceID] = struct{}{}
				if s.IsNewDevice {
					newDevices[s.DeviceID] = struct{}{}
				}
			}
			if s.DurationMs > 0 {
				durations = append(durations, s.DurationMs)
			}
			if !s.LastSeenAt.IsZero() {
				day := timeframe.DayKey(s.LastSeenAt)
				if dayActors[day] == nil {
					dayActors[day] = map[string]struct{}{}
				}
				if _, ok := dayActors[day][key]; !ok {
					dayActors[day][key] = struct{}{}
					daily.Inc(day)
				}
			}
		}

		perDay := make([]int64, 0, daily.Len())
		for _, day := range daily.Keys() {
			perDay = append(perDay, int64(daily.Get(day)))
		}

		out = append(out, ActivityRange{
			Label:            r.label,
			Days:             r.days,
			ActiveUsers:      len(active),
			AvgDaily:         average(perDay),
			Sessions:         count,
			AvgSessionMs:     average(durations),
			NewDevices:       len(newDevices),
			ReturningDevices: max(0, len(devices)-len(newDevices)),
		})
	}
	return out
}

type ScreenStat struct {
	Screen     string `json:"screen"`
	Views      int    `json:"views"`
	AvgMs      int64  `json:"avg_ms"`
	BounceRate int    `json:"bounce_rate"`
}

type viewAgg struct {
	views     int
	durations []int64
	bounces   int
}

// ScreenStats ranks screens by views. A bounce is a view with a recorded
// positive duration below bounceThreshold.
func ScreenStats(views []tracking.PageView, bounceThreshold time.Duration) []ScreenStat {
	limit := bounceThreshold.Milliseconds()
	order := NewCounter()
	aggs := map[string]*viewAgg{}

	for _, v := range views {
		screen := firstNonEmpty(v.Screen, v.Path, unknownLabel)
		order.Inc(screen)
		a := aggs[screen]
		if a == nil {
			a = &viewAgg{}
			aggs[screen] = a
		}
		a.views++
		if d := viewDuration(v); d > 0 {
			a.durations = append(a.durations, d)
			if d < limit {
				a.bounces++
			}
		}
	}

	ranked := order.Top(topScreens)
	out := make([]ScreenStat, 0, len(ranked))
	for _, r := range ranked {
		a := aggs[r.Name]
		out = append(out, ScreenStat{
			Screen:     r.Name,
			Views:      a.views,
			AvgMs:      average(a.durations),
			BounceRate: percent(a.bounces, a.views),
		})
	}
	return out
}

type ContentStat struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Views  int    `json:"views"`
	AvgMs  int64  `json:"avg_ms"`
	Clicks int    `json:"clicks"`
	CTR    int    `json:"ctr"`
}

// ContentViews counts the views that were attached to a content id.
func ContentViews(views []tracking.PageView) int {
	n := 0
	for _, v := range views {
		if v.EventID != "" {
			n++
		}
	}
	return n
}

// ContentStats ranks viewed content by views and joins outbound clicks to
// it. names may be nil; unresolved ids are shown as themselves.
func ContentStats(views []tracking.PageView, clickRows []clicks.Click, names map[string]string) []ContentStat {
	order := NewCounter()
	aggs := map[string]*viewAgg{}
	for _, v := range views {
		if v.EventID == "" {
			continue
		}
		order.Inc(v.EventID)
		a := aggs[v.EventID]
		if a == nil {
			a = &viewAgg{}
			aggs[v.EventID] = a
		}
		a.views++
		if d := viewDuration(v); d > 0 {
			a.durations = append(a.durations, d)
		}
	}

	clickCounts := countClicks(clickRows)

	ranked := order.Top(topContent)
	out := make([]ContentStat, 0, len(ranked))
	for _, r := range ranked {
		a := aggs[r.Name]
		n := clickCounts.Get(r.Name)
		out = append(out, ContentStat{
			ID:     r.Name,
			Name:   nameOr(names, r.Name),
			Views:  a.views,
			AvgMs:  average(a.durations),
			Clicks: n,
			CTR:    percent(n, a.views),
		})
	}
	return out
}

// ContentIDs lists the content ids ContentStats would rank, for name lookups.
func ContentIDs(views []tracking.PageView) []string {
	c := NewCounter()
	for _, v := range views {
		if v.EventID != "" {
			c.Inc(v.EventID)
		}
	}
	return namesOf(c.Top(topContent))
}

type Distributions struct {
	DeviceTypes []MetricCount `json:"device_types"`
	OS          []MetricCount `json:"os"`
	Languages   []MetricCount `json:"languages"`
	Countries   []MetricCount `json:"countries"`
}

// BuildDistributions buckets sessions by device type, OS, primary language
// subtag and country.
func BuildDistributions(sessions []tracking.Session) Distributions {
	deviceTypes, oses, langs, countries := NewCounter(), NewCounter(), NewCounter(), NewCounter()
	for _, s := range sessions {
		deviceTypes.Inc(firstNonEmpty(s.DeviceType, unknownLabel))
		oses.Inc(firstNonEmpty(s.OS, unknownLabel))
		lang, _, _ := strings.Cut(s.Lang, "-")
		langs.Inc(firstNonEmpty(lang, unknownLabel))
		countries.Inc(firstNonEmpty(s.Country, unknownLabel))
	}
	return Distributions{
		DeviceTypes: deviceTypes.Top(topBuckets),
		OS:          oses.Top(topBuckets),
		Languages:   langs.Top(topBuckets),
		Countries:   countries.Top(topBuckets),
	}
}

// ReferrerSources ranks where new devices arrived from.
func ReferrerSources(devices []tracking.Device) []MetricCount {
	c := NewCounter()
	for _, d := range devices {
		c.Inc(referrers.Source(d.FirstReferrer))
	}
	return c.Top(topBuckets)
}

type Realtime struct {
	ActiveUsers    int           `json:"active_users"`
	ActiveSessions int           `json:"active_sessions"`
	Screens        []MetricCount `json:"screens"`
	Events         []MetricCount `json:"events"`
}

// RealtimeStats summarises sessions seen in the realtime window. Content
// labels are resolved through names when present.
func RealtimeStats(sessions []tracking.Session, names map[string]string) Realtime {
	screens, events := NewCounter(), NewCounter()
	for _, s := range sessions {
		screens.Inc(firstNonEmpty(s.CurrentPath, unknownLabel))
		if s.CurrentEventID != "" {
			events.Inc(s.CurrentEventID)
		}
	}
	top := events.Top(topRealtimeEvents)
	for i := range top {
		top[i].Name = nameOr(names, top[i].Name)
	}
	return Realtime{
		ActiveUsers:    ActiveUsers(sessions),
		ActiveSessions: len(sessions),
		Screens:        screens.Top(topRealtimeScreen),
		Events:         top,
	}
}

// RealtimeContentIDs lists the content ids RealtimeStats would show.
func RealtimeContentIDs(sessions []tracking.Session) []string {
	c := NewCounter()
	for _, s := range sessions {
		if s.CurrentEventID != "" {
			c.Inc(s.CurrentEventID)
		}
	}
	return namesOf(c.Top(topRealtimeEvents))
}

type RankedItem struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Count int    `json:"count"`
}

// TopFavorites ranks favorited targets across types. Names are left empty
// for the caller to resolve.
func TopFavorites(favs []favorites.Favorite) []RankedItem {
	c := NewCounter()
	targets := map[string]favorites.Favorite{}
	for _, f := range favs {
		key := f.Key()
		c.Inc(key)
		if _, ok := targets[key]; !ok {
			targets[key] = f
		}
	}
	ranked := c.Top(topFavorites)
	out := make([]RankedItem, 0, len(ranked))
	for _, r := range ranked {
		f := targets[r.Name]
		out = append(out, RankedItem{ID: f.TargetID, Type: f.TargetType, Count: r.Count})
	}
	return out
}

// SplitByType keeps the items of one target type, in order.
func SplitByType(items []RankedItem, targetType string) []RankedItem {
	out := []RankedItem{}
	for _, it := range items {
		if it.Type == targetType {
			out = append(out, it)
		}
	}
	return out
}

// TopClicked ranks content by outbound clicks.
func TopClicked(clickRows []clicks.Click) []RankedItem {
	ranked := countClicks(clickRows).Top(topClicked)
	out := make([]RankedItem, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, RankedItem{ID: r.Name, Count: r.Count})
	}
	return out
}

// SearchTerms ranks normalised (trimmed, lowercased) queries.
func SearchTerms(logs []search.Log) []MetricCount {
	return searchTermCounter(logs, false).Top(topSearchTerms)
}

// SearchZones ranks the zones searches were scoped to.
func SearchZones(logs []search.Log) []MetricCount {
	c := NewCounter()
	for _, l := range logs {
		if z := strings.TrimSpace(l.Zone); z != "" {
			c.Inc(z)
		}
	}
	return c.Top(topZones)
}

// SearchedDJs matches the most frequent DJ-tab queries against DJ names.
// A DJ qualifies when its lowercased name contains one of the top terms;
// its count is the sum over every DJ-tab term its name contains.
func SearchedDJs(logs []search.Log, djs []catalog.DJ) []RankedItem {
	terms := searchTermCounter(logs, true)
	if terms.Len() == 0 {
		return []RankedItem{}
	}
	top := namesOf(terms.Top(topDJTerms))

	c := NewCounter()
	byID := map[string]catalog.DJ{}
	for _, dj := range djs {
		name := strings.ToLower(dj.Name)
		if !containsAny(name, top) {
			continue
		}
		sum := 0
		for _, term := range terms.Keys() {
			if strings.Contains(name, term) {
				sum += terms.Get(term)
			}
		}
		if sum > 0 {
			c.Add(dj.ID, sum)
			byID[dj.ID] = dj
		}
	}

	ranked := c.Top(topDJs)
	out := make([]RankedItem, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, RankedItem{ID: r.Name, Name: byID[r.Name].Name, Type: catalog.TypeDJ, Count: r.Count})
	}
	return out
}

type Conversion struct {
	Registrations int64 `json:"registrations"`
	RegRate       int   `json:"reg_rate"`
	ClickRate     int   `json:"click_rate"`
}

// BuildConversion relates registrations to sessions and clicks to views of
// content.
func BuildConversion(registrations int64, sessions, clickCount, contentViews int) Conversion {
	return Conversion{
		Registrations: registrations,
		RegRate:       percent(int(registrations), sessions),
		ClickRate:     percent(clickCount, contentViews),
	}
}

type LastActive struct {
	Label string    `json:"label"`
	TS    time.Time `json:"ts"`
	Path  string    `json:"path"`
}

// LastActiveFrom labels the most recently seen session. user is the
// session's user when it has one and the lookup succeeded.
func LastActiveFrom(s tracking.Session, user *users.User) LastActive {
	label := unknownLabel
	switch {
	case s.UserID != "" && user != nil:
		label = user.Label()
	case s.UserID != "":
		label = s.UserID
	case s.DeviceID != "":
		label = "device:" + s.DeviceID
	}
	return LastActive{Label: label, TS: s.LastSeenAt, Path: s.CurrentPath}
}

func searchTermCounter(logs []search.Log, djTabOnly bool) *Counter {
	c := NewCounter()
	for _, l := range logs {
		if djTabOnly && l.Tab != search.TabDJs {
			continue
		}
		if term := strings.ToLower(strings.TrimSpace(l.Q)); term != "" {
			c.Inc(term)
		}
	}
	return c
}

func countClicks(clickRows []clicks.Click) *Counter {
	c := NewCounter()
	for _, cl := range clickRows {
		if cl.EventID != "" {
			c.Inc(cl.EventID)
		}
	}
	return c
}

func viewDuration(v tracking.PageView) int64 {
	if v.DurationMs == nil {
		return 0
	}
	return *v.DurationMs
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func nameOr(names map[string]string, id string) string {
	if n := names[id]; n != "" {
		return n
	}
	return id
}

func namesOf(items []MetricCount) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Name)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
