// Package logger configures the application's structured loggers.
//
// dev and test environments get colorised console output (tint),
// prod and staging get JSON suitable for log aggregation.
//
// Request-scoped loggers are stored on the request context by the
// middleware and retrieved by handlers via ContextRequestLogger.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

type contextKey string

const requestLoggerKey contextKey = "requestLogger"

// InitLogger creates the application logger for the supplied environment.
func InitLogger(level slog.Level, environment string) *slog.Logger {
	var handler slog.Handler

	switch environment {
	case "prod", "staging":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	}

	return slog.New(handler)
}

// ParseLogLevel converts a LOG_LEVEL env string to a slog.Level.
// Unrecognised values default to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ContextWithRequestLogger returns a context carrying a request-scoped logger.
func ContextWithRequestLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, requestLoggerKey, l)
}

// ContextRequestLogger returns the request-scoped logger from the context.
// Falls back to slog.Default() if no request logger was set (e.g. in tests).
func ContextRequestLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(requestLoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
