// Package logging configures the service-wide structured logger.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a JSON slog logger writing to stdout. The level is
// taken from LOG_LEVEL (debug, info, warn, error) and defaults to info.
func NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
