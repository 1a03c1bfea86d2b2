package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Repository writes tracker records to the database.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger}
}

// UpsertDevice inserts the device or refreshes its last-seen fields.
// first_seen_at and first_referrer are only touched for a newly minted device.
func (r *Repository) UpsertDevice(ctx context.Context, in DeviceUpsert) error {
	seen := in.SeenAt.UTC()

	var firstSeen *time.Time
	var firstReferrer string
	if in.IsNew {
		firstSeen = &seen
		firstReferrer = in.Referrer
	}

	update := `last_seen_at = excluded.last_seen_at,
			user_id = excluded.user_id,
			device_type = excluded.device_type,
			os = excluded.os,
			lang = excluded.lang,
			tz = excluded.tz,
			user_agent = excluded.user_agent,
			is_pwa = excluded.is_pwa,
			last_referrer = excluded.last_referrer`
	if in.IsNew {
		update += `,
			first_seen_at = excluded.first_seen_at,
			first_referrer = excluded.first_referrer`
	}

	err := sqlite.PerformWrite(r.logger, r.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Exec(`
			INSERT INTO app_devices (device_id, user_id, first_seen_at, last_seen_at, device_type, os, lang, tz, user_agent, is_pwa, first_referrer, last_referrer)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(device_id) DO UPDATE SET `+update,
			in.DeviceID, in.UserID, firstSeen, seen, in.DeviceType, in.OS, in.Lang, in.TZ, in.UserAgent, in.IsPWA,
			firstReferrer, in.Referrer,
		).Error
	})
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", in.DeviceID, err)
	}
	return nil
}

// StartSession inserts a new session row with zero duration.
func (r *Repository) StartSession(ctx context.Context, in SessionStart) error {
	started := in.StartedAt.UTC()
	session := &Session{
		ID:             in.ID,
		DeviceID:       in.DeviceID,
		UserID:         in.UserID,
		StartedAt:      started,
		LastSeenAt:     started,
		DurationMs:     0,
		CurrentPath:    in.Path,
		CurrentEventID: in.EventID,
		IsNewDevice:    in.IsNewDevice,
		DeviceType:     in.DeviceType,
		OS:             in.OS,
		Lang:           in.Lang,
		TZ:             in.TZ,
		UserAgent:      in.UserAgent,
		IsPWA:          in.IsPWA,
		Country:        in.Country,
	}

	err := sqlite.PerformWrite(r.logger, r.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(session).Error
	})
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", in.ID, err)
	}
	return nil
}

// TouchSession extends a session. The stored duration never decreases, so
// touches that arrive out of order cannot rewind it.
func (r *Repository) TouchSession(ctx context.Context, in SessionTouch) error {
	duration := in.DurationMs
	if duration < 0 {
		duration = 0
	}

	err := sqlite.PerformWrite(r.logger, r.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Model(&Session{}).
			Where("id = ?", in.ID).
			Updates(map[string]any{
				"last_seen_at":     in.SeenAt.UTC(),
				"duration_ms":      gorm.Expr("MAX(duration_ms, ?)", duration),
				"current_path":     in.Path,
				"current_event_id": in.EventID,
				"user_id":          in.UserID,
			}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to touch session %s: %w", in.ID, err)
	}
	return nil
}

// StartView inserts an open page view.
func (r *Repository) StartView(ctx context.Context, in ViewStart) error {
	view := &PageView{
		ID:        in.ID,
		SessionID: in.SessionID,
		DeviceID:  in.DeviceID,
		UserID:    in.UserID,
		Path:      in.Path,
		Screen:    in.Screen,
		Referrer:  in.Referrer,
		EventID:   in.EventID,
		StartedAt: in.StartedAt.UTC(),
	}

	err := sqlite.PerformWrite(r.logger, r.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(view).Error
	})
	if err != nil {
		return fmt.Errorf("failed to insert page view %s: %w", in.ID, err)
	}
	return nil
}

// EndView closes a page view. A view that is already closed keeps its
// original end.
func (r *Repository) EndView(ctx context.Context, in ViewEnd) error {
	duration := in.DurationMs
	if duration < 0 {
		duration = 0
	}

	err := sqlite.PerformWrite(r.logger, r.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Model(&PageView{}).
			Where("id = ? AND ended_at IS NULL", in.ID).
			Updates(map[string]any{
				"ended_at":    in.EndedAt.UTC(),
				"duration_ms": duration,
			}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to close page view %s: %w", in.ID, err)
	}
	return nil
}
