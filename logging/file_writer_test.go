package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApplyFileWriterDefaults(t *testing.T) {
	got := applyFileWriterDefaults(FileWriterConfig{MaxBackups: 2})

	if got.MaxSizeMB != DefaultMaxSizeMB {
		t.Errorf("MaxSizeMB = %d, want %d", got.MaxSizeMB, DefaultMaxSizeMB)
	}
	if got.MaxBackups != 2 {
		t.Errorf("MaxBackups = %d, want 2 (explicit value kept)", got.MaxBackups)
	}
	if got.MaxAgeDays != DefaultMaxAgeDays {
		t.Errorf("MaxAgeDays = %d, want %d", got.MaxAgeDays, DefaultMaxAgeDays)
	}
}

func TestNewFileWriter_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "relay.log")
	writer := NewFileWriter(path, DefaultFileWriterConfig())

	if _, err := writer.Write([]byte("line\n")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if err := writer.Sync(); err != nil {
		t.Logf("Sync() warning: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("log file not created: %v", err)
	}
}
