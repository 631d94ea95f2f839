package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewConsoleHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newConsoleHandler(&buf, "JSON", nil))
	logger.Info("hello", "rows", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json output expected, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "hello" {
		t.Errorf("msg = %v, want %q", entry["msg"], "hello")
	}

	buf.Reset()
	slog.New(newConsoleHandler(&buf, "text", nil)).Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text output = %q, want msg=hello", buf.String())
	}
}

func TestMultiHandler(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}

	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled(debug) = false, want true when any handler accepts it")
	}

	logger := slog.New(h).With("session_id", "s1").WithGroup("table")
	logger.Debug("scan")
	logger.Warn("slow", "rows", 10)

	if got := strings.Count(debugBuf.String(), "\n"); got != 2 {
		t.Errorf("debug handler got %d records, want 2", got)
	}
	if got := strings.Count(warnBuf.String(), "\n"); got != 1 {
		t.Errorf("warn handler got %d records, want 1", got)
	}
	if !strings.Contains(warnBuf.String(), "session_id=s1") || !strings.Contains(warnBuf.String(), "table.rows=10") {
		t.Errorf("warn output missing attrs: %q", warnBuf.String())
	}
}

func TestFromContext_RequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	WithFields(ctx, "session_id", "abc").Info("rows read")

	out := buf.String()
	if !strings.Contains(out, "request_id=req-42") {
		t.Errorf("output missing request_id: %q", out)
	}
	if !strings.Contains(out, "session_id=abc") {
		t.Errorf("output missing session_id: %q", out)
	}
}

func TestSetup_WithoutSeq(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	cleanup := Setup("warn", "json", "")
	defer cleanup()

	if slog.Default().Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if _, ok := slog.Default().Handler().(*multiHandler); ok {
		t.Error("no Seq URL should mean a single console handler")
	}
}
