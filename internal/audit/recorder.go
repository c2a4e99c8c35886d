package audit

import (
	"context"
	"log/slog"
	"time"
)

// Event is one audit record for a validated operation.
type Event struct {
	Type      string
	RequestID string
	Caller    string
	Target    string
	Result    string
	Reason    string
	Detail    string
	// Duration is set for operations that run a process.
	Duration time.Duration
	// Level overrides the level derived from Result.
	Level *slog.Level
}

// Results recorded on events.
const (
	ResultAllow = "allow"
	ResultDeny  = "deny"
	ResultOK    = "ok"
	ResultError = "error"
)

// Recorder receives audit events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// Logger records events as structured log lines. Nothing is persisted
// beyond what the configured slog handler does with them.
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a recorder on top of logger, or slog.Default when nil.
func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

// Record writes one event. Denials log at WARN, errors at ERROR.
func (l *Logger) Record(ctx context.Context, event Event) {
	logger := l.logger
	if logger == nil {
		logger = slog.Default()
	}
	meta := RequestFromContext(ctx)
	if event.RequestID == "" {
		event.RequestID = meta.RequestID
	}
	if event.Caller == "" {
		event.Caller = meta.Caller
	}

	level := slog.LevelInfo
	switch event.Result {
	case ResultDeny:
		level = slog.LevelWarn
	case ResultError:
		level = slog.LevelError
	}
	if event.Level != nil {
		level = *event.Level
	}

	attrs := []slog.Attr{
		slog.String("type", event.Type),
		slog.String("result", event.Result),
	}
	for _, kv := range [][2]string{
		{"request_id", event.RequestID},
		{"caller", event.Caller},
		{"target", event.Target},
		{"reason", event.Reason},
		{"detail", event.Detail},
	} {
		if kv[1] != "" {
			attrs = append(attrs, slog.String(kv[0], kv[1]))
		}
	}
	if event.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", event.Duration))
	}
	logger.LogAttrs(ctx, level, "audit", attrs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Record(context.Context, Event) {}

// Multi fans each event out to every recorder in order.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, event Event) {
	for _, r := range m {
		if r != nil {
			r.Record(ctx, event)
		}
	}
}
