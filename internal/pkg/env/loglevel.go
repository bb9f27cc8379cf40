package env

import (
	"log/slog"
	"strings"
)

// ParseLogLevel maps the LOG_LEVEL environment variable onto a slog.Level.
// Accepts "debug", "info", "warn" (or "warning") and "error" in any case;
// an unset or unrecognised value yields the fallback.
func ParseLogLevel(fallback slog.Level) slog.Level {
	switch strings.ToLower(Get("LOG_LEVEL", "")) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
