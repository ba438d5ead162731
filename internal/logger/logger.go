// Package logger holds the process-wide zap logger. Init is called once
// from the CLI entrypoint; packages log through the package-level helpers
// so call sites stay short.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the global logger instance. Nil until Init is called.
var Log *zap.Logger

// Init initializes the global logger. Format "json" produces structured
// production output; anything else a human-readable console encoder.
func Init(level, format string) {
	var zapConfig zap.Config

	lvl := zapcore.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "info":
		lvl = zapcore.InfoLevel
	case "warn", "warning":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	case "fatal":
		lvl = zapcore.FatalLevel
	}

	if strings.ToLower(format) == "json" {
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(lvl)
		zapConfig.EncoderConfig.TimeKey = "timestamp"
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zapConfig.EncoderConfig.MessageKey = "message"
		zapConfig.InitialFields = map[string]interface{}{
			"service": "geckomap",
		}
	} else {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(lvl)
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zapConfig.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	}

	zapConfig.DisableStacktrace = lvl > zapcore.DebugLevel

	logger, err := zapConfig.Build()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}

	Log = logger
}

// ensure returns the global logger, falling back to a no-op logger so that
// library code and tests can log before Init runs.
func ensure() *zap.Logger {
	if Log == nil {
		return zap.NewNop()
	}
	return Log
}

// Debug logs a message at DebugLevel.
func Debug(msg string, fields ...zapcore.Field) {
	ensure().Debug(msg, fields...)
}

// Info logs a message at InfoLevel.
func Info(msg string, fields ...zapcore.Field) {
	ensure().Info(msg, fields...)
}

// Warn logs a message at WarnLevel.
func Warn(msg string, fields ...zapcore.Field) {
	ensure().Warn(msg, fields...)
}

// Error logs a message at ErrorLevel.
func Error(msg string, fields ...zapcore.Field) {
	ensure().Error(msg, fields...)
}

// Fatal logs a message at FatalLevel and then exits.
func Fatal(msg string, fields ...zapcore.Field) {
	ensure().Fatal(msg, fields...)
}

// With creates a child logger with the given structured context.
func With(fields ...zapcore.Field) *zap.Logger {
	return ensure().With(fields...)
}

// Sync flushes any buffered log entries.
func Sync() error {
	return ensure().Sync()
}
