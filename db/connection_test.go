package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConnectionConfig(t *testing.T) {
	config := DefaultConnectionConfig("/data/metrics.db")

	if config.Path != "/data/metrics.db" {
		t.Errorf("Path = %q", config.Path)
	}
	if config.BusyTimeout != 5000 {
		t.Errorf("BusyTimeout = %d, want 5000", config.BusyTimeout)
	}
	if config.MaxOpenConns != 1 || config.MaxIdleConns != 1 {
		t.Errorf("pool = %d/%d, want 1/1", config.MaxOpenConns, config.MaxIdleConns)
	}
}

func TestNewSQLiteConnection_EmptyPath(t *testing.T) {
	db, err := NewSQLiteConnection(ConnectionConfig{})
	if err == nil {
		db.Close()
		t.Fatal("expected error for empty path, got nil")
	}
}

func TestNewSQLiteConnection_WALAndPragmas(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "metrics.db")

	config := DefaultConnectionConfig(dbPath)
	config.BusyTimeout = 7500
	db, err := NewSQLiteConnection(config)
	if err != nil {
		t.Fatalf("NewSQLiteConnection() error = %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q, want wal", journalMode)
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("failed to query busy_timeout: %v", err)
	}
	if busyTimeout != 7500 {
		t.Errorf("busy_timeout = %d, want 7500", busyTimeout)
	}
}

func TestNewSQLiteConnection_InvalidPath(t *testing.T) {
	db, err := NewSQLiteConnection(DefaultConnectionConfig("/nonexistent/directory/metrics.db"))
	if err == nil {
		db.Close()
		t.Fatal("expected error for invalid path, got nil")
	}
}
