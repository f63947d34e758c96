package events

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func TestLogHandlerMirrorsAtLevel(t *testing.T) {
	var out, stderr bytes.Buffer
	e := NewEmitter(&out)
	next := slog.NewTextHandler(&stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	log := slog.New(NewLogHandler(next, e, slog.LevelInfo))

	log.Debug("[BLE] hidden")
	log.Info("[BLE] connected", "peripheral", "BB123")
	log.With("session", "abc").WithGroup("robot").Warn("[BLE] slow", "ms", 40)

	lines := decodeLines(t, out.String())
	if len(lines) != 2 {
		t.Fatalf("got %d DEBUG lines, want 2:\n%s", len(lines), out.String())
	}
	if got := lines[0]["message"]; got != "INFO [BLE] connected peripheral=BB123" {
		t.Errorf("message = %q", got)
	}
	if got := lines[1]["message"]; got != "WARN [BLE] slow session=abc robot.ms=40" {
		t.Errorf("message = %q", got)
	}
	if !strings.Contains(stderr.String(), "[BLE] hidden") {
		t.Error("records below the mirror level should still reach the next handler")
	}
}

func TestLogHandlerRespectsNextLevel(t *testing.T) {
	var out, stderr bytes.Buffer
	next := slog.NewTextHandler(&stderr, &slog.HandlerOptions{Level: slog.LevelError})
	log := slog.New(NewLogHandler(next, NewEmitter(&out), slog.LevelInfo))
	log.Info("only mirrored")
	if stderr.Len() != 0 {
		t.Errorf("next handler got %q, want nothing", stderr.String())
	}
	if out.Len() == 0 {
		t.Error("record should still be mirrored")
	}
}

func TestLogHandlerDisabledBelowBoth(t *testing.T) {
	next := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn})
	h := NewLogHandler(next, NewEmitter(io.Discard), slog.LevelWarn)
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Enabled(Info) = true, want false")
	}
}
