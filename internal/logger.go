package internal

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLogLevel converts a log level name to a slog.Level. Names are matched
// case-insensitively: "debug", "info", "warning"/"warn", "error". Unknown
// names log a warning and fall back to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warning", "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("unknown log level, defaulting to info", "level", level)
		return slog.LevelInfo
	}
}

// NewLogger returns a text logger writing to w at the given level.
func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLogLevel(level)}))
}

// SetupLogger installs a stderr logger at the given level as the default.
func SetupLogger(level string) {
	slog.SetDefault(NewLogger(os.Stderr, level))
}
