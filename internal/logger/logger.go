package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// JSONFormat selects machine-readable output; anything else uses the console writer.
const JSONFormat = "json"

// New builds a zerolog logger writing to stdout.
func New(level, format string) zerolog.Logger {
	return NewWithWriter(level, format, os.Stdout)
}

// NewWithWriter builds a zerolog logger writing to w.
func NewWithWriter(level, format string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if format == JSONFormat {
		logger = zerolog.New(w)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	}

	return logger.Level(lvl).With().Timestamp().Logger()
}

// Nop returns a disabled logger for tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// FromContext decorates logger with the chi request id when one is present.
func FromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		return logger.With().Str("request_id", reqID).Logger()
	}
	return logger
}
