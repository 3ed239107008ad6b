package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PruneResult describes one retention pass.
type PruneResult struct {
	Deleted  int64
	Vacuumed bool
	Duration time.Duration
}

// Prune deletes snapshots captured before cutoff. When vacuum is set and
// rows were deleted, the file is compacted afterwards; a VACUUM failure is
// returned with the rows already deleted.
func (a *Archive) Prune(ctx context.Context, cutoff time.Time, vacuum bool) (PruneResult, error) {
	start := time.Now()
	var result PruneResult

	conn, err := a.db.conn()
	if err != nil {
		return result, err
	}

	res, err := conn.ExecContext(ctx,
		"DELETE FROM metrics_snapshots WHERE captured_at < ?",
		cutoff.UnixMilli(),
	)
	if err != nil {
		return result, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	result.Deleted, err = res.RowsAffected()
	if err != nil {
		return result, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if vacuum && result.Deleted > 0 {
		if _, err := conn.ExecContext(ctx, "VACUUM"); err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("prune succeeded but VACUUM failed: %w", err)
		}
		result.Vacuumed = true
	}

	result.Duration = time.Since(start)
	return result, nil
}

// RetentionConfig configures RunRetention.
type RetentionConfig struct {
	// Retention is how long snapshots are kept
	Retention time.Duration
	// Interval between passes (default: Retention/24, at least one minute)
	Interval time.Duration
	// Vacuum compacts the file after rows are removed
	Vacuum bool
}

// RunRetention prunes once immediately and then every interval until ctx is
// cancelled. It always returns nil so it can run under an errgroup without
// taking the server down on a failed pass.
func (a *Archive) RunRetention(ctx context.Context, config RetentionConfig) error {
	if config.Retention <= 0 {
		return nil
	}
	if config.Interval <= 0 {
		config.Interval = config.Retention / 24
	}
	if config.Interval < time.Minute {
		config.Interval = time.Minute
	}

	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()

	for {
		result, err := a.Prune(ctx, time.Now().Add(-config.Retention), config.Vacuum)
		if err != nil && ctx.Err() == nil {
			a.logger.Warn("snapshot retention pass failed", zap.Error(err))
		} else if result.Deleted > 0 {
			a.logger.Info("pruned archived snapshots",
				zap.Int64("deleted", result.Deleted),
				zap.Bool("vacuumed", result.Vacuumed),
				zap.Duration("duration", result.Duration),
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
