package logging

import (
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Default file writer configuration values
const (
	DefaultMaxSizeMB  = 50
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 14
)

// FileWriterConfig holds rotation settings for the log file.
// Zero values fall back to the defaults above.
type FileWriterConfig struct {
	// MaxSizeMB is the size in megabytes at which the file is rotated.
	MaxSizeMB int

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int

	// MaxAgeDays is the age after which rotated files are deleted.
	MaxAgeDays int

	// Compress gzips rotated files.
	Compress bool
}

// DefaultFileWriterConfig returns the rotation settings used by NewLogger.
func DefaultFileWriterConfig() FileWriterConfig {
	return FileWriterConfig{
		MaxSizeMB:  DefaultMaxSizeMB,
		MaxBackups: DefaultMaxBackups,
		MaxAgeDays: DefaultMaxAgeDays,
		Compress:   true,
	}
}

// NewFileWriter creates a zapcore.WriteSyncer that writes to path with
// size-based rotation handled by lumberjack.
//
//	writer := NewFileWriter("/var/log/ragmetrics/relay.log", DefaultFileWriterConfig())
//	core := zapcore.NewCore(encoder, writer, level)
func NewFileWriter(path string, config FileWriterConfig) zapcore.WriteSyncer {
	cfg := applyFileWriterDefaults(config)

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
}

// applyFileWriterDefaults fills in zero values with defaults.
// Compress cannot be defaulted since false is a valid choice.
func applyFileWriterDefaults(config FileWriterConfig) FileWriterConfig {
	result := config

	if result.MaxSizeMB <= 0 {
		result.MaxSizeMB = DefaultMaxSizeMB
	}
	if result.MaxBackups <= 0 {
		result.MaxBackups = DefaultMaxBackups
	}
	if result.MaxAgeDays <= 0 {
		result.MaxAgeDays = DefaultMaxAgeDays
	}
	return result
}
