package timeframe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nighthub/internal/timeframe"
)

type TestTimeProvider struct {
	CurrentTime time.Time
}

func (p *TestTimeProvider) Now(loc *time.Location) time.Time {
	return p.CurrentTime.In(loc)
}

func ptr(t time.Time) *time.Time { return &t }

func TestParse(t *testing.T) {
	fixedTime := time.Date(2026, 7, 15, 14, 30, 0, 0, time.UTC)
	parser := timeframe.NewParser(&TestTimeProvider{CurrentTime: fixedTime})

	testCases := []struct {
		name        string
		params      timeframe.Params
		expected    timeframe.Window
		expectError bool
	}{
		{
			name:   "default preset is last 7 days",
			params: timeframe.Params{},
			expected: timeframe.Window{
				From:  ptr(time.Date(2026, 7, 8, 0, 0, 0, 0, time.UTC)),
				To:    ptr(time.Date(2026, 7, 15, 23, 59, 59, 0, time.UTC)),
				Label: "7d",
			},
		},
		{
			name:   "30 days",
			params: timeframe.Params{Preset: "30d"},
			expected: timeframe.Window{
				From:  ptr(time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)),
				To:    ptr(time.Date(2026, 7, 15, 23, 59, 59, 0, time.UTC)),
				Label: "30d",
			},
		},
		{
			name:   "90 days ignores custom dates",
			params: timeframe.Params{Preset: "90d", From: "2020-01-01", To: "2020-01-02"},
			expected: timeframe.Window{
				From:  ptr(time.Date(2026, 4, 16, 0, 0, 0, 0, time.UTC)),
				To:    ptr(time.Date(2026, 7, 15, 23, 59, 59, 0, time.UTC)),
				Label: "90d",
			},
		},
		{
			name:     "all time is unbounded",
			params:   timeframe.Params{Preset: "all"},
			expected: timeframe.Window{Label: "all"},
		},
		{
			name:   "all with custom range",
			params: timeframe.Params{Preset: "all", From: "2026-05-01", To: "2026-05-31"},
			expected: timeframe.Window{
				From:  ptr(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)),
				To:    ptr(time.Date(2026, 5, 31, 23, 59, 59, 0, time.UTC)),
				Label: "custom",
			},
		},
		{
			name:   "all with open end",
			params: timeframe.Params{Preset: "all", From: "2026-05-01"},
			expected: timeframe.Window{
				From:  ptr(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)),
				Label: "custom",
			},
		},
		{name: "unknown preset", params: timeframe.Params{Preset: "1y"}, expectError: true},
		{name: "bad date", params: timeframe.Params{Preset: "all", From: "05/01/2026"}, expectError: true},
		{name: "inverted range", params: timeframe.Params{Preset: "all", From: "2026-06-01", To: "2026-05-01"}, expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w, err := parser.Parse(tc.params)
			if tc.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, w)
		})
	}
}

func TestWindowContains(t *testing.T) {
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 5, 1, 23, 59, 59, 0, time.UTC)
	w := timeframe.Window{From: &from, To: &to}

	assert.True(t, w.Contains(from))
	assert.True(t, w.Contains(to))
	assert.False(t, w.Contains(from.Add(-time.Second)))
	assert.False(t, w.Contains(to.Add(time.Second)))
	assert.True(t, timeframe.Window{}.Contains(time.Unix(0, 0)))
}

func TestTrailingAndDayKey(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 1, 0, 0, time.UTC)
	w := timeframe.Trailing(now, 2*time.Minute, "realtime")
	require.NotNil(t, w.From)
	assert.Nil(t, w.To)
	assert.Equal(t, time.Date(2026, 4, 30, 23, 59, 0, 0, time.UTC), *w.From)

	madrid := time.FixedZone("CEST", 2*60*60)
	assert.Equal(t, "2026-04-30", timeframe.DayKey(time.Date(2026, 5, 1, 1, 0, 0, 0, madrid)))
}
