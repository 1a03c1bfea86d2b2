// Package favorites stores the events, clubs and DJs users save.
package favorites

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

type Favorite struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"uniqueIndex:idx_favorite_target;not null" json:"user_id"`
	TargetType string    `gorm:"uniqueIndex:idx_favorite_target;not null" json:"target_type" validate:"oneof=event club dj"`
	TargetID   string    `gorm:"uniqueIndex:idx_favorite_target;index;not null" json:"target_id"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// Key groups favorites of the same target across users.
func (f Favorite) Key() string {
	return f.TargetType + ":" + f.TargetID
}

// Add saves a favorite. Adding the same target twice is a no-op.
func Add(ctx context.Context, db *gorm.DB, logger *slog.Logger, userID, targetType, targetID string) error {
	err := sqlite.PerformWrite(logger, db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Exec(`
			INSERT INTO favorites (user_id, target_type, target_id, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_id, target_type, target_id) DO NOTHING
		`, userID, targetType, targetID, time.Now().UTC()).Error
	})
	if err != nil {
		return fmt.Errorf("failed to add favorite %s:%s: %w", targetType, targetID, err)
	}
	return nil
}

// Remove deletes a favorite if present.
func Remove(ctx context.Context, db *gorm.DB, logger *slog.Logger, userID, targetType, targetID string) error {
	err := sqlite.PerformWrite(logger, db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Where("user_id = ? AND target_type = ? AND target_id = ?", userID, targetType, targetID).
			Delete(&Favorite{}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to remove favorite %s:%s: %w", targetType, targetID, err)
	}
	return nil
}
