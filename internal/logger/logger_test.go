package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestPrettyHandlerFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, slog.LevelWarn))

	log.Info("hidden")
	log.Warn("shown", "code", "482913")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record should be filtered, got %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("expected warn record, got %q", out)
	}
	if !strings.Contains(out, "code") || !strings.Contains(out, "482913") {
		t.Errorf("expected attribute in output, got %q", out)
	}
}

func TestPrettyHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, slog.LevelDebug)).With("role", "sender").WithGroup("relay")

	log.Debug("joined", "topic", "123456")

	out := buf.String()
	if !strings.Contains(out, "role") {
		t.Errorf("expected bound attribute, got %q", out)
	}
	if !strings.Contains(out, "relay.topic") {
		t.Errorf("expected grouped key, got %q", out)
	}
}
