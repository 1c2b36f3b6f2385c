package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestTextHandlerRendersRecord(t *testing.T) {
	var buf bytes.Buffer
	h := NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false)

	r := slog.NewRecord(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), slog.LevelInfo, "server started", 0)
	r.AddAttrs(slog.String("addr", "127.0.0.1:8000"), slog.String("note", "two words"))
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"2026-01-02 03:04:05.000", "INFO", "server started", "addr=127.0.0.1:8000", `note="two words"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Errorf("expected no escape sequences without color, got %q", out)
	}
}

func TestTextHandlerGroupPrefix(t *testing.T) {
	var buf bytes.Buffer
	var h slog.Handler = NewTextHandler(&buf, nil, false)
	h = h.WithGroup("dss").WithAttrs([]slog.Attr{slog.String("audience", "dss.example.com")})

	r := slog.NewRecord(time.Now(), slog.LevelWarn, "token refresh failed", 0)
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "dss.audience=dss.example.com") {
		t.Errorf("expected group-prefixed attr, got %q", out)
	}
	if !strings.Contains(out, "WARN") {
		t.Errorf("expected WARN tag, got %q", out)
	}
}

func TestTextHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	h := NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, false)

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be filtered at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should pass at warn level")
	}
}
