package app

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" DEBUG ": slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"trace":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", in, got, want)
		}
	}
}

// Not parallel: NewLogger replaces the process-wide default.
func TestNewLogger_InstallsDefaultAtLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	log := NewLogger("warn")
	if slog.Default() != log {
		t.Fatalf("NewLogger must install itself as the slog default")
	}
	ctx := context.Background()
	if log.Enabled(ctx, slog.LevelInfo) {
		t.Fatalf("info must be filtered at warn level")
	}
	if !log.Enabled(ctx, slog.LevelWarn) {
		t.Fatalf("warn must be enabled at warn level")
	}
}
