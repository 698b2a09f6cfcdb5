package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestModuleLevels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	Initialize(Config{
		Level:   "warn",
		Format:  "text",
		Modules: map[string]string{"testmod-debug": "debug"},
	})

	quiet := GetLogger("testmod-quiet")
	loud := GetLogger("testmod-debug")

	quiet.Info("should not appear")
	loud.Debug("visible debug", "step", 3)

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("info logged at warn level: %s", out)
	}
	if !strings.Contains(out, "visible debug") || !strings.Contains(out, "module=testmod-debug") {
		t.Errorf("missing module debug line: %s", out)
	}
	if !strings.Contains(out, "step=3") {
		t.Errorf("missing attribute: %s", out)
	}

	buf.Reset()
	SetLevels("info", nil)
	quiet.Info("now visible")
	loud.Debug("now hidden")

	out = buf.String()
	if !strings.Contains(out, "now visible") {
		t.Errorf("level change not applied: %s", out)
	}
	if strings.Contains(out, "now hidden") {
		t.Errorf("module override should have been cleared: %s", out)
	}
}

func TestGetLoggerCached(t *testing.T) {
	if GetLogger("cached") != GetLogger("cached") {
		t.Error("GetLogger returned different loggers for one module")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"info+2", slog.LevelInfo + 2, true},
		{" Warn ", slog.LevelWarn, true},
		{"verbose", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseLevel(tt.in)
		if ok != tt.ok {
			t.Errorf("parseLevel(%q) ok = %v", tt.in, ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// failingHandler accepts every level and fails every write.
type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("journal socket closed")
}

func TestTeeHandler(t *testing.T) {
	var console, journal bytes.Buffer
	h := &teeHandler{
		console: slog.NewTextHandler(&console, &slog.HandlerOptions{Level: slog.LevelDebug}),
		journal: slog.NewTextHandler(&journal, &slog.HandlerOptions{Level: slog.LevelError}),
	}
	logger := slog.New(h).With("module", "tee").WithGroup("bus")

	logger.Info("hello")
	logger.Error("boom", "addr", 36)

	if !strings.Contains(console.String(), "hello") || !strings.Contains(console.String(), "boom") {
		t.Errorf("console output: %s", console.String())
	}
	if strings.Contains(journal.String(), "hello") || !strings.Contains(journal.String(), "boom") {
		t.Errorf("journal output: %s", journal.String())
	}
	if !strings.Contains(journal.String(), "module=tee") || !strings.Contains(journal.String(), "bus.addr=36") {
		t.Errorf("attrs or group not propagated: %s", journal.String())
	}
	if h.Enabled(context.Background(), slog.LevelDebug-1) {
		t.Error("enabled below both levels")
	}
}

func TestTeeHandlerJournalFailure(t *testing.T) {
	var console bytes.Buffer
	h := &teeHandler{
		console: slog.NewTextHandler(&console, nil),
		journal: failingHandler{slog.NewTextHandler(&bytes.Buffer{}, nil)},
	}

	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelWarn, "bus slow", 0))
	if err == nil || !strings.Contains(err.Error(), "journal socket closed") {
		t.Errorf("Handle error = %v", err)
	}
	if !strings.Contains(console.String(), "bus slow") {
		t.Errorf("console missed the record: %s", console.String())
	}
}
