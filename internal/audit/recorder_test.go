package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

func newBufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("unmarshal log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_RecordUsesRequestContext(t *testing.T) {
	var buf bytes.Buffer
	rec := NewLogger(newBufferLogger(&buf))

	ctx := WithRequest(context.Background(), RequestMeta{RequestID: " req-1 ", Caller: "agent", Transport: "http"})
	rec.Record(ctx, Event{Type: "file_read", Target: "/tmp/a.txt", Result: ResultAllow})

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	got := lines[0]
	if got["level"] != "INFO" {
		t.Fatalf("expected INFO, got %v", got["level"])
	}
	if got["request_id"] != "req-1" || got["caller"] != "agent" {
		t.Fatalf("expected request metadata, got %v", got)
	}
	if got["target"] != "/tmp/a.txt" || got["type"] != "file_read" {
		t.Fatalf("unexpected event fields: %v", got)
	}
	if _, ok := got["reason"]; ok {
		t.Fatal("empty fields should be omitted")
	}
}

func TestLogger_LevelsByResult(t *testing.T) {
	var buf bytes.Buffer
	rec := NewLogger(newBufferLogger(&buf))
	ctx := context.Background()

	rec.Record(ctx, Event{Type: "file_read", Result: ResultDeny, Reason: "blocked"})
	rec.Record(ctx, Event{Type: "command_exec", Result: ResultError, Detail: "boom"})
	debug := slog.LevelDebug
	rec.Record(ctx, Event{Type: "file_stat", Result: ResultOK, Level: &debug})

	lines := decodeLines(t, &buf)
	want := []string{"WARN", "ERROR", "DEBUG"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(lines))
	}
	for i, level := range want {
		if lines[i]["level"] != level {
			t.Fatalf("line %d: expected %s, got %v", i, level, lines[i]["level"])
		}
	}
}

func TestLogger_Concurrent(t *testing.T) {
	var mu sync.Mutex
	var buf bytes.Buffer
	rec := NewLogger(slog.New(slog.NewJSONHandler(&lockedWriter{mu: &mu, buf: &buf}, nil)))

	const total = 20
	var wg sync.WaitGroup
	wg.Add(total)
	for i := 0; i < total; i++ {
		go func() {
			defer wg.Done()
			rec.Record(context.Background(), Event{Type: "command_exec", Result: ResultOK})
		}()
	}
	wg.Wait()

	if got := len(decodeLines(t, &buf)); got != total {
		t.Fatalf("expected %d lines, got %d", total, got)
	}
}

func TestRequestFromContext_Missing(t *testing.T) {
	if meta := RequestFromContext(context.Background()); meta != (RequestMeta{}) {
		t.Fatalf("expected empty meta, got %+v", meta)
	}
}

type lockedWriter struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func TestMulti_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	rec := Multi{NewLogger(newBufferLogger(&a)), nil, NewLogger(newBufferLogger(&b))}

	rec.Record(context.Background(), Event{Type: "command_exec", Result: ResultOK, Duration: 1500 * time.Millisecond})

	for name, buf := range map[string]*bytes.Buffer{"first": &a, "second": &b} {
		lines := decodeLines(t, buf)
		if len(lines) != 1 {
			t.Fatalf("%s recorder: expected 1 line, got %d", name, len(lines))
		}
		if _, ok := lines[0]["duration"]; !ok {
			t.Fatalf("%s recorder: expected duration attr, got %v", name, lines[0])
		}
	}
}
