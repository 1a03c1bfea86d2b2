// Package clicks records outbound reservation clicks.
package clicks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// DefaultSource tags clicks whose origin was not specified.
const DefaultSource = "discover"

type Click struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	EventID     string    `gorm:"index;not null" json:"event_id"`
	UserID      string    `gorm:"index" json:"user_id,omitempty"`
	Source      string    `json:"source"`
	ReferralURL string    `json:"referral_url"`
	DeviceID    string    `json:"device_id,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	Path        string    `json:"path,omitempty"`
	TS          time.Time `gorm:"column:ts;index" json:"ts"`
}

// Record stores a click fact.
func Record(ctx context.Context, db *gorm.DB, logger *slog.Logger, click Click) error {
	if click.Source == "" {
		click.Source = DefaultSource
	}
	if click.TS.IsZero() {
		click.TS = time.Now()
	}
	click.TS = click.TS.UTC()

	err := sqlite.PerformWrite(logger, db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(&click).Error
	})
	if err != nil {
		return fmt.Errorf("failed to record click for event %s: %w", click.EventID, err)
	}
	return nil
}

// NormalizeURL turns a stored referral into a redirect target: scheme-relative
// values get https:, http(s) URLs and in-app paths are kept, anything else
// (bare domains, other schemes) is prefixed with https://.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case isHTTP(raw), strings.HasPrefix(raw, "/"):
		return raw
	default:
		return "https://" + raw
	}
}

func isHTTP(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
