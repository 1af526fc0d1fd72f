package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func nonEmptyLines(blob string) []string {
	var out []string
	for _, l := range strings.Split(blob, "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

func decodeLine(t *testing.T, blob string, i int) map[string]any {
	t.Helper()
	lines := nonEmptyLines(blob)
	if i >= len(lines) {
		t.Fatalf("blob has %d lines, want index %d", len(lines), i)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[i]), &entry); err != nil {
		t.Fatalf("line %d not JSON: %v\n%s", i, err, lines[i])
	}
	return entry
}

func TestLogCaptureBuffersAndForwards(t *testing.T) {
	var out bytes.Buffer
	capture := NewLogCapture(slog.NewJSONHandler(&out, nil), 10)
	lg := slog.New(capture)

	lg.Info("fetch complete", slog.String("puuid", "p-1"), slog.Int("matches", 4))

	if !strings.Contains(out.String(), "fetch complete") {
		t.Fatalf("record not forwarded to inner handler: %q", out.String())
	}
	entry := decodeLine(t, capture.Blob(), 0)
	if entry["msg"] != "fetch complete" {
		t.Fatalf("msg = %v", entry["msg"])
	}
	if entry["level"] != "INFO" {
		t.Fatalf("level = %v", entry["level"])
	}
	if entry["puuid"] != "p-1" {
		t.Fatalf("puuid = %v", entry["puuid"])
	}
	if entry["matches"] != float64(4) {
		t.Fatalf("matches = %v", entry["matches"])
	}
	if _, ok := entry["time"]; !ok {
		t.Fatalf("missing time field: %v", entry)
	}
}

func TestLogCaptureOverflow(t *testing.T) {
	capture := NewLogCapture(slog.NewTextHandler(io.Discard, nil), 3)
	lg := slog.New(capture)
	for i := 0; i < 5; i++ {
		lg.Info("tick", slog.Int("i", i))
	}

	if got := capture.Dropped(); got != 2 {
		t.Fatalf("Dropped() = %d, want 2", got)
	}
	lines := nonEmptyLines(capture.Blob())
	if len(lines) != 4 {
		t.Fatalf("expected 3 records plus overflow marker, got %d lines", len(lines))
	}
	if !strings.Contains(lines[3], `"dropped":2`) {
		t.Fatalf("overflow line = %q", lines[3])
	}
}

func TestLogCaptureGroupsAndBoundAttrs(t *testing.T) {
	capture := NewLogCapture(slog.NewTextHandler(io.Discard, nil), 10)
	lg := slog.New(capture).
		With(slog.String("execution_id", "e-1")).
		WithGroup("riot").
		With(slog.String("region", "kr"))

	lg.Warn("throttled", slog.Int("status", 429))

	entry := decodeLine(t, capture.Blob(), 0)
	// the attr bound before the group keeps its bare key
	if entry["execution_id"] != "e-1" {
		t.Fatalf("execution_id = %v (%v)", entry["execution_id"], entry)
	}
	if entry["riot.region"] != "kr" {
		t.Fatalf("riot.region = %v (%v)", entry["riot.region"], entry)
	}
	if entry["riot.status"] != float64(429) {
		t.Fatalf("riot.status = %v (%v)", entry["riot.status"], entry)
	}
}

func TestLogCaptureFlattensAwkwardValues(t *testing.T) {
	capture := NewLogCapture(slog.NewTextHandler(io.Discard, nil), 10)
	lg := slog.New(capture)

	lg.Error("run failed",
		slog.Any("error", errors.New("boom")),
		slog.Duration("took", 1500*time.Millisecond),
		slog.Group("window", slog.Int("games", 25)))

	entry := decodeLine(t, capture.Blob(), 0)
	if entry["level"] != "ERROR" {
		t.Fatalf("level = %v", entry["level"])
	}
	if entry["error"] != "boom" {
		t.Fatalf("error = %v", entry["error"])
	}
	if entry["took"] != "1.5s" {
		t.Fatalf("took = %v", entry["took"])
	}
	if entry["window.games"] != float64(25) {
		t.Fatalf("window.games = %v", entry["window.games"])
	}
}

func TestLogCaptureHonorsInnerLevel(t *testing.T) {
	inner := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn})
	capture := NewLogCapture(inner, 10)
	lg := slog.New(capture)

	lg.Debug("noise")
	lg.Info("noise")
	lg.Warn("kept")

	lines := nonEmptyLines(capture.Blob())
	if len(lines) != 1 {
		t.Fatalf("expected only the warn record, got %d lines", len(lines))
	}
	if !strings.Contains(lines[0], "kept") {
		t.Fatalf("line = %q", lines[0])
	}
}
