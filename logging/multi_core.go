package logging

import (
	"go.uber.org/zap/zapcore"
)

// NewMultiCore creates a zapcore.Core that tees output to a console writer and
// a file writer.
//
// The file side always uses JSON encoding. The console side is human-readable
// and colored in development mode and JSON otherwise. A nil fileWriter yields
// a console-only core.
func NewMultiCore(level zapcore.LevelEnabler, consoleWriter, fileWriter zapcore.WriteSyncer, isDev bool) zapcore.Core {
	var consoleEncoder zapcore.Encoder
	if isDev {
		consoleEncoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(NewEncoderConfig())
	}
	consoleCore := zapcore.NewCore(consoleEncoder, consoleWriter, level)

	if fileWriter == nil {
		return consoleCore
	}

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(NewEncoderConfig()),
		fileWriter,
		level,
	)

	return zapcore.NewTee(consoleCore, fileCore)
}
