package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrDatabaseClosed is returned by operations on a closed Database.
var ErrDatabaseClosed = errors.New("database connection is closed")

// Database owns the SQLite connection of the snapshot archive.
type Database struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open creates the parent directory if needed, applies pending migrations and
// opens a WAL connection.
func Open(path string) (*Database, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	if err := MigrateUp(path); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	conn, err := NewSQLiteConnection(DefaultConnectionConfig(path))
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	return &Database{db: conn, path: path}, nil
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// conn returns the open connection or ErrDatabaseClosed.
func (d *Database) conn() (*sql.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return nil, ErrDatabaseClosed
	}
	return d.db, nil
}

// Ping verifies the connection is alive.
func (d *Database) Ping(ctx context.Context) error {
	conn, err := d.conn()
	if err != nil {
		return err
	}
	return conn.PingContext(ctx)
}

// Close closes the connection. Later calls are no-ops.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	d.db = nil
	return nil
}
