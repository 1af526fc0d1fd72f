package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// logCaptureLimit bounds the per-run buffer. A runaway job logging in a tight
// loop must not grow the execution row without bound.
const logCaptureLimit = 2000

// LogCapture is a slog.Handler that buffers every record it sees and forwards
// to the wrapped handler. One capture is installed per job execution; the
// buffered records become the execution's log blob.
type LogCapture struct {
	state *captureState
	inner slog.Handler
	// bound holds WithAttrs attrs flattened at bind time, so a later
	// WithGroup cannot re-qualify them
	bound map[string]any
	group string
}

type captureState struct {
	mu       sync.Mutex
	records  []map[string]any
	overflow int
	limit    int
}

// NewLogCapture wraps inner with a bounded capture buffer.
func NewLogCapture(inner slog.Handler, limit int) *LogCapture {
	if limit <= 0 {
		limit = logCaptureLimit
	}
	return &LogCapture{
		state: &captureState{limit: limit},
		inner: inner,
	}
}

// Enabled defers to the wrapped handler so the capture mirrors exactly what
// was emitted.
func (h *LogCapture) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle forwards the record and then buffers a flattened copy.
func (h *LogCapture) Handle(ctx context.Context, rec slog.Record) error {
	err := h.inner.Handle(ctx, rec)

	entry := map[string]any{
		"time":  rec.Time.UTC().Format(time.RFC3339Nano),
		"level": rec.Level.String(),
		"msg":   rec.Message,
	}
	for k, v := range h.bound {
		entry[k] = v
	}
	rec.Attrs(func(a slog.Attr) bool {
		flattenAttr(entry, h.group, a)
		return true
	})

	s := h.state
	s.mu.Lock()
	if len(s.records) >= s.limit {
		s.overflow++
	} else {
		s.records = append(s.records, entry)
	}
	s.mu.Unlock()
	return err
}

// WithAttrs returns a capture sharing the same buffer with the attrs bound.
func (h *LogCapture) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := *h
	out.inner = h.inner.WithAttrs(attrs)
	out.bound = make(map[string]any, len(h.bound)+len(attrs))
	for k, v := range h.bound {
		out.bound[k] = v
	}
	for _, a := range attrs {
		flattenAttr(out.bound, h.group, a)
	}
	return &out
}

// WithGroup returns a capture sharing the same buffer with the group opened.
func (h *LogCapture) WithGroup(name string) slog.Handler {
	out := *h
	out.inner = h.inner.WithGroup(name)
	if name != "" {
		out.group = joinGroup(h.group, name)
	}
	return &out
}

// Blob renders the buffered records as JSON lines, with a trailing overflow
// line when the buffer filled up.
func (h *LogCapture) Blob() string {
	s := h.state
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	for _, entry := range s.records {
		line, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	if s.overflow > 0 {
		b.WriteString(fmt.Sprintf(`{"level":"WARN","msg":"log capture overflow","dropped":%d}`, s.overflow))
		b.WriteByte('\n')
	}
	return b.String()
}

// Dropped reports how many records fell past the buffer cap.
func (h *LogCapture) Dropped() int {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return h.state.overflow
}

func flattenAttr(into map[string]any, group string, a slog.Attr) {
	v := a.Value.Resolve()
	key := joinGroup(group, a.Key)
	switch v.Kind() {
	case slog.KindGroup:
		for _, ga := range v.Group() {
			flattenAttr(into, key, ga)
		}
	case slog.KindString:
		into[key] = v.String()
	case slog.KindInt64:
		into[key] = v.Int64()
	case slog.KindUint64:
		into[key] = v.Uint64()
	case slog.KindFloat64:
		into[key] = v.Float64()
	case slog.KindBool:
		into[key] = v.Bool()
	case slog.KindDuration:
		into[key] = v.Duration().String()
	case slog.KindTime:
		into[key] = v.Time().UTC().Format(time.RFC3339Nano)
	default:
		// errors and arbitrary values must never break the JSON line
		into[key] = fmt.Sprint(v.Any())
	}
}

func joinGroup(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}
