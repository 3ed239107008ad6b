package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// ParseLogLevel parses a level name case-insensitively.
// Valid levels: debug, info, warn, warning, error, fatal. Anything else
// yields defaultLevel.
func ParseLogLevel(levelStr string, defaultLevel zapcore.Level) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return defaultLevel
	}
}

// DefaultLevel returns debug in development mode and info otherwise.
func DefaultLevel(isDevelopment bool) zapcore.Level {
	if isDevelopment {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}
