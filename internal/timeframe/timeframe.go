// Package timeframe turns dashboard range selections into aggregation windows.
package timeframe

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Preset string

const (
	PresetLast7Days  Preset = "7d"
	PresetLast30Days Preset = "30d"
	PresetLast90Days Preset = "90d"
	PresetAllTime    Preset = "all"
)

// DefaultPreset is used when the request names none.
const DefaultPreset = PresetLast7Days

// DateLayout is the format of custom from/to dates.
const DateLayout = "2006-01-02"

var presetDays = map[Preset]int{
	PresetLast7Days:  7,
	PresetLast30Days: 30,
	PresetLast90Days: 90,
}

type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider reads the system clock.
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// Window bounds an aggregation. A nil bound is open.
type Window struct {
	From  *time.Time `json:"from,omitempty"`
	To    *time.Time `json:"to,omitempty"`
	Label string     `json:"label"`
}

// Trailing is the window covering the last d before now.
func Trailing(now time.Time, d time.Duration, label string) Window {
	from := now.Add(-d).UTC()
	return Window{From: &from, Label: label}
}

// Contains reports whether t falls inside the window, bounds inclusive.
func (w Window) Contains(t time.Time) bool {
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.To != nil && t.After(*w.To) {
		return false
	}
	return true
}

// Apply restricts query to rows whose column falls inside the window.
func (w Window) Apply(query *gorm.DB, column string) *gorm.DB {
	if w.From != nil {
		query = query.Where(column+" >= ?", w.From.UTC())
	}
	if w.To != nil {
		query = query.Where(column+" <= ?", w.To.UTC())
	}
	return query
}

type Params struct {
	Preset string
	From   string
	To     string
}

type Parser struct {
	timeProvider TimeProvider
}

func NewParser(timeProvider ...TimeProvider) *Parser {
	var provider TimeProvider = &DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}
	return &Parser{timeProvider: provider}
}

// Parse builds the window for a request. A relative preset wins over custom
// dates; custom dates only apply with the "all" preset. Days are whole UTC
// days: from starts at 00:00:00 and to ends at 23:59:59.
func (p *Parser) Parse(params Params) (Window, error) {
	preset := Preset(params.Preset)
	if preset == "" {
		preset = DefaultPreset
	}

	if days, ok := presetDays[preset]; ok {
		now := p.timeProvider.Now(time.UTC)
		from := startOfDay(now.AddDate(0, 0, -days))
		to := endOfDay(now)
		return Window{From: &from, To: &to, Label: string(preset)}, nil
	}
	if preset != PresetAllTime {
		return Window{}, fmt.Errorf("unknown preset %q", params.Preset)
	}

	w := Window{Label: string(PresetAllTime)}
	if params.From != "" {
		d, err := time.ParseInLocation(DateLayout, params.From, time.UTC)
		if err != nil {
			return Window{}, fmt.Errorf("invalid 'from' date: %w", err)
		}
		from := startOfDay(d)
		w.From = &from
	}
	if params.To != "" {
		d, err := time.ParseInLocation(DateLayout, params.To, time.UTC)
		if err != nil {
			return Window{}, fmt.Errorf("invalid 'to' date: %w", err)
		}
		to := endOfDay(d)
		w.To = &to
	}
	if w.From != nil && w.To != nil && w.From.After(*w.To) {
		return Window{}, fmt.Errorf("'from' must not be after 'to'")
	}
	if w.From != nil || w.To != nil {
		w.Label = "custom"
	}
	return w, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}

// DayKey is the UTC calendar date of t, used to bucket activity per day.
func DayKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
