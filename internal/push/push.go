// Package push keeps web push subscriptions. Delivery happens elsewhere.
package push

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

type Subscription struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"uniqueIndex:idx_push_user_endpoint;not null" json:"user_id" validate:"required,max=64"`
	Endpoint  string    `gorm:"uniqueIndex:idx_push_user_endpoint;not null" json:"endpoint" validate:"required,url,max=2048"`
	P256dh    string    `gorm:"column:p256dh" json:"p256dh" validate:"required,max=256"`
	Auth      string    `json:"auth" validate:"required,max=256"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Subscription) TableName() string { return "push_subscriptions" }

// Upsert stores a subscription keyed by (user_id, endpoint), refreshing its keys.
func Upsert(ctx context.Context, db *gorm.DB, logger *slog.Logger, sub Subscription) error {
	now := time.Now().UTC()
	err := sqlite.PerformWrite(logger, db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Exec(`
			INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, endpoint) DO UPDATE SET
				p256dh = excluded.p256dh,
				auth = excluded.auth,
				updated_at = excluded.updated_at
		`, sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth, now, now).Error
	})
	if err != nil {
		return fmt.Errorf("failed to upsert push subscription: %w", err)
	}
	return nil
}

// Delete removes a subscription.
func Delete(ctx context.Context, db *gorm.DB, logger *slog.Logger, userID, endpoint string) error {
	err := sqlite.PerformWrite(logger, db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Where("user_id = ? AND endpoint = ?", userID, endpoint).Delete(&Subscription{}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete push subscription: %w", err)
	}
	return nil
}

// IsGone reports whether a push provider status means the endpoint is dead.
func IsGone(status int) bool {
	return status == http.StatusNotFound || status == http.StatusGone
}

// PruneGone deletes every subscription for endpoint when the provider
// answered with a gone status. It reports whether rows were removed.
func PruneGone(ctx context.Context, db *gorm.DB, logger *slog.Logger, endpoint string, status int) (bool, error) {
	if !IsGone(status) {
		return false, nil
	}

	var affected int64
	err := sqlite.PerformWrite(logger, db.WithContext(ctx), func(tx *gorm.DB) error {
		res := tx.Where("endpoint = ?", endpoint).Delete(&Subscription{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to prune push subscription: %w", err)
	}
	if affected > 0 {
		logger.Info("Pruned gone push subscription", slog.String("endpoint", endpoint), slog.Int("status", status))
	}
	return affected > 0, nil
}
