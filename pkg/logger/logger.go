package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Log is the process-wide structured logger. It is usable before Init so
// packages can log from tests without any setup.
var Log = slog.New(slog.NewTextHandler(os.Stdout, nil))

// Init configures the global logger, honoring CHATLINE_LOG_LEVEL
// ("debug", "info", "warn", "error").
func Init() {
	lvl := strings.ToLower(strings.TrimSpace(os.Getenv("CHATLINE_LOG_LEVEL")))

	var level slog.Level
	switch lvl {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	Log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
