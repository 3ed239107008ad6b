package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"ragmetrics/metrics"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := OpenArchive(ArchiveConfig{Path: filepath.Join(t.TempDir(), "nested", "metrics.db")}, nil)
	if err != nil {
		t.Fatalf("OpenArchive() error = %v", err)
	}
	t.Cleanup(func() { a.Close(time.Second) })
	return a
}

func archivedSnapshot(at time.Time, requests int64) metrics.MetricsSnapshot {
	return metrics.MetricsSnapshot{
		Timestamp: at,
		RAG:       metrics.RAGMetrics{Requests: requests},
		Cache: metrics.CacheMetrics{
			CacheStats: metrics.CacheStats{Hits: 3, Misses: 1, HitRate: 75},
			ByCache:    map[string]metrics.CacheStats{metrics.CacheEmbedding: {Hits: 3, Misses: 1, HitRate: 75}},
		},
	}
}

func TestOpenArchive_Disabled(t *testing.T) {
	if _, err := OpenArchive(ArchiveConfig{}, nil); !errors.Is(err, ErrArchiveDisabled) {
		t.Errorf("OpenArchive() error = %v, want ErrArchiveDisabled", err)
	}
}

func TestArchive_RecentNewestFirst(t *testing.T) {
	a := openTestArchive(t)
	ctx := t.Context()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var saved []metrics.MetricsSnapshot
	for i := 0; i < 5; i++ {
		s := archivedSnapshot(base.Add(time.Duration(i)*time.Second), int64(i))
		saved = append(saved, s)
		if err := a.Save(ctx, s); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	got, err := a.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	want := []metrics.MetricsSnapshot{saved[4], saved[3], saved[2]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Recent() mismatch (-want +got):\n%s", diff)
	}

	if n, err := a.Count(ctx); err != nil || n != 5 {
		t.Errorf("Count() = %d, %v; want 5", n, err)
	}
	if got, _ := a.Recent(ctx, 0); len(got) != 0 {
		t.Errorf("Recent(0) returned %d snapshots", len(got))
	}
}

func TestArchive_EnqueueDrainsOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	a, err := OpenArchive(ArchiveConfig{Path: path}, nil)
	if err != nil {
		t.Fatalf("OpenArchive() error = %v", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		if !a.Enqueue(archivedSnapshot(base.Add(time.Duration(i)*time.Second), int64(i))) {
			t.Fatalf("Enqueue(%d) = false", i)
		}
	}
	if err := a.Close(5 * time.Second); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := OpenArchive(ArchiveConfig{Path: path}, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close(time.Second)

	if n, err := reopened.Count(t.Context()); err != nil || n != 10 {
		t.Errorf("Count() after reopen = %d, %v; want 10", n, err)
	}
}

func TestArchive_Prune(t *testing.T) {
	a := openTestArchive(t)
	ctx := t.Context()
	now := time.Now().UTC().Truncate(time.Millisecond)

	for _, age := range []time.Duration{48 * time.Hour, 25 * time.Hour, time.Hour, time.Minute} {
		if err := a.Save(ctx, archivedSnapshot(now.Add(-age), 1)); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	result, err := a.Prune(ctx, now.Add(-24*time.Hour), true)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if result.Deleted != 2 || !result.Vacuumed {
		t.Errorf("Prune() = %+v, want 2 deleted and vacuumed", result)
	}

	if n, _ := a.Count(ctx); n != 2 {
		t.Errorf("Count() after prune = %d, want 2", n)
	}

	result, err = a.Prune(ctx, now.Add(-24*time.Hour), true)
	if err != nil || result.Deleted != 0 || result.Vacuumed {
		t.Errorf("second Prune() = %+v, %v; want nothing deleted", result, err)
	}
}

func TestArchive_RunRetentionStopsOnCancel(t *testing.T) {
	a := openTestArchive(t)
	old := archivedSnapshot(time.Now().Add(-72*time.Hour), 1)
	if err := a.Save(t.Context(), old); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- a.RunRetention(ctx, RetentionConfig{Retention: 24 * time.Hour}) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := a.Count(t.Context()); n == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("RunRetention() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunRetention did not stop")
	}

	if n, _ := a.Count(t.Context()); n != 0 {
		t.Errorf("Count() = %d, want 0 after retention pass", n)
	}
}

func TestArchive_ClosedDatabase(t *testing.T) {
	a, err := OpenArchive(ArchiveConfig{Path: filepath.Join(t.TempDir(), "metrics.db")}, nil)
	if err != nil {
		t.Fatalf("OpenArchive() error = %v", err)
	}
	a.Close(time.Second)

	if _, err := a.Recent(t.Context(), 5); !errors.Is(err, ErrDatabaseClosed) {
		t.Errorf("Recent() after Close = %v, want ErrDatabaseClosed", err)
	}
	if err := a.Close(time.Second); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}
