package config

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. APP_LOG_FORMAT=json switches to JSON output.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: cfg.App.Env != "production"}

	if cfg.App.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
