// Package logging installs the process-wide slog logger for cargohold.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// Setup replaces the default slog logger with one writing to w. Level
// accepts debug, info, warn, and error; format accepts text and json.
// Unrecognized values fall back to info and text, so a misconfigured
// logger still logs.
func Setup(level, format string, w io.Writer) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
