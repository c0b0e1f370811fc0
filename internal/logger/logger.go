package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys used by the logger
type ContextKey string

const (
	// LoggerKey is the context key for the logger instance
	LoggerKey ContextKey = "logger"
)

// New creates a structured logger for the given environment. Development
// gets a human-readable console writer at debug level; anything else gets
// plain JSON at info level.
func New(env string) zerolog.Logger {
	var out io.Writer = os.Stdout
	level := zerolog.InfoLevel

	if env == "" || env == "dev" || env == "development" {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		level = zerolog.DebugLevel
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", "bankledger").
		Logger()
}

// NewWithWriter creates a structured logger with a custom writer. Used by
// tests to capture output.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// WithContext adds the logger to the context
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from the context or returns a default logger
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return New("")
}
