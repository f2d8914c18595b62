package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func newBufLogger(buf *bytes.Buffer, level slog.Level) Logger {
	h := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level})
	return NewSlogLogger(slog.New(h))
}

func TestSlogLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	log := newBufLogger(&buf, slog.LevelDebug)

	ctx := context.Background()
	log.Debug(ctx, "d")
	log.Info(ctx, "i")
	log.Warn(ctx, "w")
	log.Error(ctx, "e")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 4 {
		t.Fatalf("expected 4 log lines, got %d", len(lines))
	}
}

func TestSlogLogger_WithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	log := newBufLogger(&buf, slog.LevelInfo)

	child := log.With("module", "test")
	child.Info(context.Background(), "hello", "k", "v")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("invalid json log line: %v", err)
	}
	if rec["module"] != "test" {
		t.Errorf("expected module=test, got %v", rec["module"])
	}
	if rec["k"] != "v" {
		t.Errorf("expected k=v, got %v", rec["k"])
	}
}
