package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ragmetrics/metrics"
)

// ErrArchiveDisabled is returned by OpenArchive when no database path is set.
var ErrArchiveDisabled = errors.New("snapshot archive disabled")

// Archive stores broadcast snapshots as JSON rows in metrics_snapshots.
type Archive struct {
	db     *Database
	writer *AsyncWriter[metrics.MetricsSnapshot]
	logger *zap.Logger
}

// ArchiveConfig configures OpenArchive.
type ArchiveConfig struct {
	// Path of the SQLite file; empty disables the archive
	Path string
	// QueueSize bounds snapshots waiting to be written (default 100)
	QueueSize int
}

// OpenArchive opens (and migrates) the archive database and starts its async
// writer. It returns ErrArchiveDisabled when config.Path is empty.
func OpenArchive(config ArchiveConfig, logger *zap.Logger) (*Archive, error) {
	if config.Path == "" {
		return nil, ErrArchiveDisabled
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	database, err := Open(config.Path)
	if err != nil {
		return nil, err
	}

	a := &Archive{db: database, logger: logger}
	a.writer = NewAsyncWriter[metrics.MetricsSnapshot](a.Save, AsyncWriterConfig[metrics.MetricsSnapshot]{
		ChannelCapacity: config.QueueSize,
		OnError: func(s metrics.MetricsSnapshot, err error) {
			logger.Warn("failed to archive snapshot",
				zap.Time("captured_at", s.Timestamp),
				zap.Error(err),
			)
		},
	})
	a.writer.Start()

	logger.Info("snapshot archive opened", zap.String("path", config.Path))
	return a, nil
}

// Save writes one snapshot synchronously.
func (a *Archive) Save(ctx context.Context, snapshot metrics.MetricsSnapshot) error {
	conn, err := a.db.conn()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = conn.ExecContext(ctx,
		"INSERT INTO metrics_snapshots (captured_at, payload) VALUES (?, ?)",
		snapshot.Timestamp.UnixMilli(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// Enqueue queues a snapshot for the background writer and returns false when
// the queue is full.
func (a *Archive) Enqueue(snapshot metrics.MetricsSnapshot) bool {
	return a.writer.Write(snapshot.Clone())
}

// Recent returns up to limit snapshots, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]metrics.MetricsSnapshot, error) {
	if limit <= 0 {
		return []metrics.MetricsSnapshot{}, nil
	}
	conn, err := a.db.conn()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx,
		"SELECT payload FROM metrics_snapshots ORDER BY captured_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]metrics.MetricsSnapshot, 0, limit)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		var s metrics.MetricsSnapshot
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}
	return snapshots, nil
}

// Count returns the number of archived snapshots.
func (a *Archive) Count(ctx context.Context) (int64, error) {
	conn, err := a.db.conn()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM metrics_snapshots").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

// WriterStats returns the async writer's written, dropped and failed counters.
func (a *Archive) WriterStats() (written, dropped, failed int64) {
	return a.writer.Stats()
}

// Close drains queued writes (up to timeout) and closes the database.
func (a *Archive) Close(timeout time.Duration) error {
	if !a.writer.Stop(timeout) {
		a.logger.Warn("archive writer did not drain before timeout",
			zap.Int("pending", a.writer.Pending()),
		)
	}
	return a.db.Close()
}
