package http

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"nighthub/internal/config"
	"nighthub/internal/stats"
	"nighthub/internal/timeframe"
)

const unknownLabel = "Unknown"

// StatsResponse is the admin stats payload. On failure the dashboard is the
// empty one and Error carries a single message.
type StatsResponse struct {
	*stats.Dashboard
	Error string `json:"error,omitempty"`
}

// AdminStatsAction handles GET /admin/api/stats.
func AdminStatsAction(ctx *cartridge.Context) error {
	cfg := ctx.Config.(*config.Config)

	window, err := timeframe.NewParser().Parse(timeframe.Params{
		Preset: ctx.Query("preset"),
		From:   ctx.Query("from"),
		To:     ctx.Query("to"),
	})
	if err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	engine := stats.NewEngine(ctx.DB(), ctx.Logger,
		stats.WithWorkers(cfg.StatsWorkers),
		stats.WithBounceThreshold(cfg.BounceThreshold()),
		stats.WithRealtimeWindow(cfg.RealtimeWindow()),
	)

	dashboard, err := engine.Dashboard(ctx.UserContext(), window)
	if err != nil {
		ctx.Logger.Error(stats.ErrLoadingStatistics, slog.String("window", window.Label), slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(StatsResponse{
			Dashboard: dashboard,
			Error:     stats.ErrLoadingStatistics,
		})
	}

	presentDistributions(&dashboard.Distributions)
	return ctx.JSON(StatsResponse{Dashboard: dashboard})
}

// presentDistributions swaps raw codes for display names.
func presentDistributions(d *stats.Distributions) {
	d.DeviceTypes = convertDeviceStats(d.DeviceTypes)
	d.OS = convertOSStats(d.OS)
	d.Languages = convertLanguageStats(d.Languages)
	d.Countries = convertCountryStats(d.Countries)
}

func convertCountryStats(items []stats.MetricCount) []stats.MetricCount {
	caser := cases.Upper(language.AmericanEnglish)
	countries := gountries.New()

	result := make([]stats.MetricCount, len(items))
	for i, item := range items {
		name := item.Name
		switch country, err := countries.FindCountryByAlpha(item.Name); {
		case item.Name == "unknown":
			name = unknownLabel
		case err == nil:
			name = country.Name.Common
		default:
			name = caser.String(item.Name)
		}
		result[i] = stats.MetricCount{Name: name, Count: item.Count}
	}
	return result
}

func convertDeviceStats(items []stats.MetricCount) []stats.MetricCount {
	caser := cases.Title(language.AmericanEnglish)

	result := make([]stats.MetricCount, len(items))
	for i, item := range items {
		result[i] = stats.MetricCount{Name: caser.String(item.Name), Count: item.Count}
	}
	return result
}

var osNames = map[string]string{
	"ios":     "iOS",
	"mac":     "macOS",
	"android": "Android",
	"windows": "Windows",
	"linux":   "Linux",
	"other":   "Other",
}

func convertOSStats(items []stats.MetricCount) []stats.MetricCount {
	caser := cases.Title(language.AmericanEnglish)

	result := make([]stats.MetricCount, len(items))
	for i, item := range items {
		name, ok := osNames[item.Name]
		if !ok {
			name = caser.String(item.Name)
		}
		result[i] = stats.MetricCount{Name: name, Count: item.Count}
	}
	return result
}

// convertLanguageStats names primary language subtags in English ("es" →
// "Spanish"). Unparseable tags are shown as sent.
func convertLanguageStats(items []stats.MetricCount) []stats.MetricCount {
	namer := display.English.Languages()

	result := make([]stats.MetricCount, len(items))
	for i, item := range items {
		name := item.Name
		if name == "unknown" {
			name = unknownLabel
		} else if tag, err := language.Parse(item.Name); err == nil {
			if n := namer.Name(tag); n != "" {
				name = n
			}
		}
		result[i] = stats.MetricCount{Name: name, Count: item.Count}
	}
	return result
}
