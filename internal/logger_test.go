package internal

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	// WHY: Every documented level name, in any case, must map to its
	// slog.Level; anything else falls back to info rather than failing.
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{name: "debug", input: "debug", want: slog.LevelDebug},
		{name: "info", input: "info", want: slog.LevelInfo},
		{name: "empty_is_info", input: "", want: slog.LevelInfo},
		{name: "warning", input: "warning", want: slog.LevelWarn},
		{name: "warn_alias", input: "warn", want: slog.LevelWarn},
		{name: "error", input: "error", want: slog.LevelError},
		{name: "uppercase", input: "DEBUG", want: slog.LevelDebug},
		{name: "unknown_defaults_info", input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ParseLogLevel(tt.input); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_FiltersBelowLevel(t *testing.T) {
	// WHY: --log-level=warn must silence the guard's debug connection logs.
	t.Parallel()
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn")

	logger.Debug("connected", "host", "example.com")
	logger.Warn("certificate rejected", "host", "example.com")

	out := buf.String()
	if strings.Contains(out, "connected") {
		t.Errorf("debug message written at warn level: %q", out)
	}
	if !strings.Contains(out, "certificate rejected") || !strings.Contains(out, "host=example.com") {
		t.Errorf("warn message missing: %q", out)
	}
}
