package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/MEKXH/warden/internal/audit"
	"github.com/MEKXH/warden/internal/policy"
)

func recordDenial(ctx context.Context, rec audit.Recorder, op, target string, d policy.Decision) {
	rec.Record(ctx, audit.Event{
		Type:   op,
		Target: target,
		Result: audit.ResultDeny,
		Reason: string(d.Reason),
		Detail: d.Detail,
	})
}

func recordSuccess(ctx context.Context, rec audit.Recorder, op, target, detail string, elapsed time.Duration) {
	rec.Record(ctx, audit.Event{
		Type:     op,
		Target:   target,
		Result:   audit.ResultOK,
		Detail:   detail,
		Duration: elapsed,
	})
}

// recordFailure logs err and hands it back so callers can return it inline.
func recordFailure(ctx context.Context, rec audit.Recorder, op, target string, err error, elapsed time.Duration) error {
	kind := ErrorKind(err)
	level := slog.LevelWarn
	if kind == KindInternal || kind == KindOrphanRisk {
		level = slog.LevelError
	}
	rec.Record(ctx, audit.Event{
		Type:     op,
		Target:   target,
		Result:   audit.ResultError,
		Reason:   kind,
		Detail:   err.Error(),
		Level:    &level,
		Duration: elapsed,
	})
	return err
}
