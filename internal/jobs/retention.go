package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

const retentionBatchSize = 1000

// retentionTarget is a table whose rows expire by one timestamp column.
type retentionTarget struct {
	table  string
	column string
}

var retentionTargets = []retentionTarget{
	{table: "app_page_views", column: "started_at"},
	{table: "app_sessions", column: "last_seen_at"},
}

// Connector hands out the database connection a job runs against.
type Connector interface {
	GetConnection() *gorm.DB
}

// RetentionJob deletes page views and sessions older than the retention period.
type RetentionJob struct {
	db            Connector
	logger        *slog.Logger
	retentionDays int
	pause         time.Duration
	now           func() time.Time
}

func NewRetentionJob(db Connector, logger *slog.Logger, retentionDays int) *RetentionJob {
	return &RetentionJob{
		db:            db,
		logger:        logger,
		retentionDays: retentionDays,
		pause:         100 * time.Millisecond,
		now:           time.Now,
	}
}

// Run deletes expired rows in batches so the write lock is released between
// them. It returns the number of rows removed per table.
func (j *RetentionJob) Run(ctx context.Context) (map[string]int64, error) {
	db := j.db.GetConnection()
	cutoff := j.now().UTC().AddDate(0, 0, -j.retentionDays)

	j.logger.Info("Starting retention cleanup",
		slog.Int("retention_days", j.retentionDays),
		slog.Time("cutoff_date", cutoff))

	deleted := make(map[string]int64, len(retentionTargets))
	for _, target := range retentionTargets {
		n, err := j.purge(ctx, db, target, cutoff)
		deleted[target.table] = n
		if err != nil {
			j.logger.Error("Failed to delete expired rows",
				slog.String("table", target.table),
				slog.Int64("deleted_so_far", n),
				slog.Any("error", err))
			return deleted, err
		}
		if n > 0 {
			j.logger.Info("Deleted expired rows", slog.String("table", target.table), slog.Int64("deleted_count", n))
		}
	}
	return deleted, nil
}

func (j *RetentionJob) purge(ctx context.Context, db *gorm.DB, target retentionTarget, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf(
		"DELETE FROM %[1]s WHERE rowid IN (SELECT rowid FROM %[1]s WHERE %[2]s < ? LIMIT ?)",
		target.table, target.column)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var affected int64
		err := sqlite.PerformWrite(j.logger, db.WithContext(ctx), func(tx *gorm.DB) error {
			result := tx.Exec(query, cutoff, retentionBatchSize)
			affected = result.RowsAffected
			return result.Error
		})
		if err != nil {
			return total, err
		}
		total += affected

		if affected < retentionBatchSize {
			return total, nil
		}

		select {
		case <-time.After(j.pause):
		case <-ctx.Done():
			return total, ctx.Err()
		}
	}
}
