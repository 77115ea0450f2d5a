package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LoggerOptions selects the handler, level and output of a logger
type LoggerOptions struct {
	Env string
	// Level is debug, info, warn or error. Empty picks info in production
	// and debug elsewhere.
	Level string
	// Output defaults to stdout
	Output io.Writer
}

// NewLoggerWith builds a JSON logger in production and a text logger with
// source locations otherwise. An invalid level falls back to the default.
func NewLoggerWith(o LoggerOptions) *slog.Logger {
	out := o.Output
	if out == nil {
		out = os.Stdout
	}

	level := slog.LevelDebug
	if o.Env == "production" {
		level = slog.LevelInfo
	}
	if l, err := ParseLevel(o.Level); err == nil && o.Level != "" {
		level = l
	}

	opts := &slog.HandlerOptions{
		AddSource: o.Env == "development",
		Level:     level,
	}
	if o.Env == "production" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// ParseLevel accepts the LOG_LEVEL values. Empty is valid and means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown LOG_LEVEL %q", s)
}
