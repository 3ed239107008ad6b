// Package logging provides the relay's structured logger: zap with a
// console+file tee, lumberjack rotation and secret redaction.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures NewLogger.
type Config struct {
	// Development selects colored console output. It also sets the default
	// level to debug when Level is empty.
	Development bool

	// FilePath is the log file. Empty disables file output.
	FilePath string

	// Level is a level name (debug, info, warn, error). Empty uses the
	// environment default.
	Level string

	// File controls rotation of FilePath.
	File FileWriterConfig
}

// Logger wraps zap.Logger. Every field passing through it, including fields
// logged via Zap() by library packages, is filtered for secrets.
//
//	logger, err := NewLogger(Config{Development: true, FilePath: "metrics.log"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//	logger.Info("relay started", zap.String("addr", ":8090"))
type Logger struct {
	zap           *zap.Logger
	isDevelopment bool
	logFilePath   string
}

// NewLogger builds a Logger writing to stdout and, when configured, a rotated file.
func NewLogger(cfg Config) (*Logger, error) {
	level := ParseLogLevel(cfg.Level, DefaultLevel(cfg.Development))

	var fileWriter zapcore.WriteSyncer
	if cfg.FilePath != "" {
		fileConfig := cfg.File
		if fileConfig == (FileWriterConfig{}) {
			fileConfig = DefaultFileWriterConfig()
		}
		fileWriter = NewFileWriter(cfg.FilePath, fileConfig)
	}

	core := NewMultiCore(level, zapcore.Lock(os.Stdout), fileWriter, cfg.Development)
	return newLogger(core, cfg.Development, cfg.FilePath), nil
}

// NewLoggerWithCore builds a Logger around an existing core. Tests use it with
// zaptest/observer or an in-memory writer.
func NewLoggerWithCore(core zapcore.Core) *Logger {
	return newLogger(core, false, "")
}

func newLogger(core zapcore.Core, isDev bool, path string) *Logger {
	return &Logger{
		zap:           zap.New(&redactingCore{Core: core}, zap.AddCaller()),
		isDevelopment: isDev,
		logFilePath:   path,
	}
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

// Debug logs a message at DebugLevel.
func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zap.Debug(msg, fields...) }

// Info logs a message at InfoLevel.
func (l *Logger) Info(msg string, fields ...zap.Field) { l.zap.Info(msg, fields...) }

// Warn logs a message at WarnLevel.
func (l *Logger) Warn(msg string, fields ...zap.Field) { l.zap.Warn(msg, fields...) }

// Error logs a message at ErrorLevel.
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zap.Error(msg, fields...) }

// Fatal logs a message at FatalLevel then calls os.Exit(1).
func (l *Logger) Fatal(msg string, fields ...zap.Field) { l.zap.Fatal(msg, fields...) }

// Named returns a child logger with the given sub-name, e.g. "broadcaster".
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		zap:           l.zap.Named(name),
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{
		zap:           l.zap.With(fields...),
		isDevelopment: l.isDevelopment,
		logFilePath:   l.logFilePath,
	}
}

// Zap returns the underlying zap.Logger for packages that accept one.
// Redaction still applies.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// IsDevelopment returns true if the logger is configured for development mode.
func (l *Logger) IsDevelopment() bool {
	return l.isDevelopment
}

// LogFilePath returns the path to the log file, or "" for console only.
func (l *Logger) LogFilePath() string {
	return l.logFilePath
}

// redactingCore filters sensitive values out of fields before they reach the
// wrapped core.
type redactingCore struct {
	zapcore.Core
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(redactFields(fields))}
}

func (c *redactingCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *redactingCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	entry.Message = RedactSensitiveData(entry.Message)
	return c.Core.Write(entry, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	if len(fields) == 0 {
		return fields
	}

	result := make([]zapcore.Field, len(fields))
	for i, field := range fields {
		result[i] = redactField(field)
	}
	return result
}

func redactField(field zapcore.Field) zapcore.Field {
	if IsSensitiveField(field.Key) {
		return zap.String(field.Key, RedactedPlaceholder)
	}

	switch field.Type {
	case zapcore.StringType:
		if redacted := RedactSensitiveData(field.String); redacted != field.String {
			return zap.String(field.Key, redacted)
		}
	case zapcore.ErrorType:
		if err, ok := field.Interface.(error); ok && err != nil {
			msg := err.Error()
			if redacted := RedactSensitiveData(msg); redacted != msg {
				return zap.String(field.Key, redacted)
			}
		}
	}
	return field
}
