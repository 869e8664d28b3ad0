package config

import (
	"log/slog"
	"os"
)

// NewLogger returns a slog.Logger tuned to the environment:
// JSON at INFO for prod, text at DEBUG otherwise.
func NewLogger(env string) *slog.Logger {
	var handler slog.Handler
	if env == "prod" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.New(handler)
}
