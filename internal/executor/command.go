package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/MEKXH/warden/internal/audit"
	"github.com/MEKXH/warden/internal/policy"
)

// DefaultKillGrace bounds how long a killed process group gets to be reaped
// before it is reported as an orphan risk.
const DefaultKillGrace = 2 * time.Second

const probeInterval = 10 * time.Millisecond

// CommandResult is the outcome of a command that ran to completion.
type CommandResult struct {
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	ExitCode  int           `json:"exit_code"`
	Succeeded bool          `json:"succeeded"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// Commands runs allowlisted commands directly, without a shell.
type Commands struct {
	source   policy.Source
	recorder audit.Recorder
	grace    time.Duration
	onStart  func(pid int)
}

// NewCommands creates a command executor. A nil recorder discards audit
// events.
func NewCommands(source policy.Source, recorder audit.Recorder) *Commands {
	if recorder == nil {
		recorder = audit.Discard{}
	}
	return &Commands{source: source, recorder: recorder, grace: DefaultKillGrace}
}

// Execute runs commandLine with the policy timeout.
func (c *Commands) Execute(ctx context.Context, commandLine string) (*CommandResult, error) {
	return c.ExecuteWithTimeout(ctx, commandLine, 0)
}

// ExecuteWithTimeout runs commandLine, killing it after timeout. The policy
// timeout is an upper bound; a non-positive or larger timeout uses it.
//
// A non-zero exit status is not an error; it is reported in the result.
func (c *Commands) ExecuteWithTimeout(ctx context.Context, commandLine string, timeout time.Duration) (*CommandResult, error) {
	const op = "command_exec"
	v := c.source.Validator()
	d := v.ValidateCommand(commandLine)
	if !d.Allowed() {
		recordDenial(ctx, c.recorder, op, commandLine, d)
		return nil, d.Err()
	}
	if limit := v.CommandTimeout(); timeout <= 0 || timeout > limit {
		timeout = limit
	}

	fields := strings.Fields(commandLine)
	cmd := exec.Command(fields[0], fields[1:]...)
	setProcessGroup(cmd)
	stdout := newLimitedBuffer(v.MaxOutputBytes())
	stderr := newLimitedBuffer(v.MaxOutputBytes())
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// a grandchild holding the pipes open must not stall Wait
	cmd.WaitDelay = c.grace

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, recordFailure(ctx, c.recorder, op, commandLine, fmt.Errorf("start %s: %w", fields[0], err), 0)
	}

	if c.onStart != nil {
		c.onStart(cmd.Process.Pid)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-runCtx.Done():
		err := c.terminate(cmd, done, runCtx.Err(), timeout)
		if errors.Is(err, ErrOrphanRisk) {
			slog.Error("process group survived kill", "command", fields[0], "pid", cmd.Process.Pid)
		}
		return nil, recordFailure(ctx, c.recorder, op, commandLine, err, time.Since(start))
	}

	exitCode := 0
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
		exitCode = exitErr.ExitCode()
	case errors.Is(waitErr, exec.ErrWaitDelay):
		exitCode = cmd.ProcessState.ExitCode()
	default:
		return nil, recordFailure(ctx, c.recorder, op, commandLine, fmt.Errorf("wait %s: %w", fields[0], waitErr), time.Since(start))
	}

	result := &CommandResult{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		ExitCode:  exitCode,
		Succeeded: exitCode == 0,
		Truncated: stdout.Truncated() || stderr.Truncated(),
		Duration:  time.Since(start),
	}
	recordSuccess(ctx, c.recorder, op, commandLine, fmt.Sprintf("exit_code=%d truncated=%t", result.ExitCode, result.Truncated), result.Duration)
	return result, nil
}

// terminate kills the process group and confirms it is gone. The returned
// error is ErrOrphanRisk when confirmation fails, ErrExecutionTimeout when
// the deadline fired, and a cancellation error otherwise.
func (c *Commands) terminate(cmd *exec.Cmd, done <-chan error, cause error, timeout time.Duration) error {
	if err := killProcessGroup(cmd); err != nil {
		slog.Warn("kill process group failed", "pid", cmd.Process.Pid, "error", err)
	}

	deadline := time.NewTimer(c.grace)
	defer deadline.Stop()

	reaped, expired := false, false
	select {
	case <-done:
		reaped = true
	case <-deadline.C:
		expired = true
	}

	for processGroupAlive(cmd, reaped) {
		if expired {
			return fmt.Errorf("%w: pid %d not confirmed dead after %s", ErrOrphanRisk, cmd.Process.Pid, c.grace)
		}
		select {
		case <-deadline.C:
			expired = true
		case <-done:
			reaped = true
		case <-time.After(probeInterval):
		}
	}

	if errors.Is(cause, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrExecutionTimeout, timeout)
	}
	return fmt.Errorf("command canceled: %w", cause)
}

// WorkingDirectory returns the service's working directory. It is not
// subject to policy.
func (c *Commands) WorkingDirectory() (string, error) {
	return os.Getwd()
}

// Environment looks up an environment variable of the service process. It is
// not subject to policy.
func (c *Commands) Environment(name string) (string, bool) {
	return os.LookupEnv(name)
}
