// Package search stores what people search for in the app.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// TabDJs marks searches made on the DJ tab.
const TabDJs = "djs"

type Log struct {
	ID     uint      `gorm:"primaryKey" json:"id"`
	Q      string    `gorm:"column:q" json:"q" validate:"required,max=200"`
	Zone   string    `json:"zone,omitempty" validate:"max=100"`
	Tab    string    `json:"tab,omitempty" validate:"max=32"`
	UserID string    `json:"user_id,omitempty" validate:"max=64"`
	TS     time.Time `gorm:"column:ts;index" json:"ts"`
}

func (Log) TableName() string { return "search_logs" }

// Record appends a search log. Blank queries are ignored.
func Record(ctx context.Context, db *gorm.DB, logger *slog.Logger, entry Log) error {
	entry.Q = strings.TrimSpace(entry.Q)
	if entry.Q == "" {
		return nil
	}
	entry.Zone = strings.TrimSpace(entry.Zone)
	entry.TS = time.Now().UTC()

	err := sqlite.PerformWrite(logger, db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(&entry).Error
	})
	if err != nil {
		return fmt.Errorf("failed to record search: %w", err)
	}
	return nil
}
