//go:build unix

package executor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/MEKXH/warden/internal/audit"
	"github.com/MEKXH/warden/internal/policy"
)

func TestCommands_ExecuteCapturesOutput(t *testing.T) {
	_, v := newSandbox(t, nil)
	rec := &memoryRecorder{}
	cmds := NewCommands(v, rec)

	res, err := cmds.Execute(context.Background(), "echo hello   world")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Stdout != "hello world\n" {
		t.Fatalf("unexpected stdout %q", res.Stdout)
	}
	if res.ExitCode != 0 || !res.Succeeded || res.Truncated {
		t.Fatalf("unexpected result %+v", res)
	}
	if ev := rec.last(t); ev.Type != "command_exec" || ev.Result != audit.ResultOK {
		t.Fatalf("unexpected audit event %+v", ev)
	}
}

func TestCommands_NoShellInterpretation(t *testing.T) {
	_, v := newSandbox(t, nil)
	cmds := NewCommands(v, nil)

	res, err := cmds.Execute(context.Background(), "echo $HOME;ls")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Stdout != "$HOME;ls\n" {
		t.Fatalf("expected literal arguments, got %q", res.Stdout)
	}
}

func TestCommands_NonZeroExitIsAResult(t *testing.T) {
	_, v := newSandbox(t, nil)
	cmds := NewCommands(v, nil)

	res, err := cmds.Execute(context.Background(), "false")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.ExitCode == 0 || res.Succeeded {
		t.Fatalf("expected failure result, got %+v", res)
	}
}

func TestCommands_Denials(t *testing.T) {
	_, v := newSandbox(t, nil)
	_, disabled := newSandbox(t, func(doc *policy.Document) {
		doc.SystemCommands.Enabled = boolPtr(false)
	})

	tests := []struct {
		name   string
		v      *policy.Validator
		line   string
		reason policy.Reason
	}{
		{"not allowlisted", v, "cat /etc/passwd", policy.ReasonNotAllowlisted},
		{"blocked pattern", v, "echo rm -rf /", policy.ReasonBlockedPattern},
		{"empty", v, "   ", policy.ReasonEmptyCommand},
		{"disabled", disabled, "echo hi", policy.ReasonCommandsDisabled},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			started := false
			cmds := NewCommands(tc.v, nil)
			cmds.onStart = func(int) { started = true }

			res, err := cmds.Execute(context.Background(), tc.line)
			assertDenied(t, err, tc.reason)
			if res != nil || started {
				t.Fatal("denied command must not spawn")
			}
		})
	}
}

func TestCommands_OutputLimit(t *testing.T) {
	_, v := newSandbox(t, func(doc *policy.Document) {
		doc.Environment = &policy.Environment{MaxOutputBytes: 4}
	})
	cmds := NewCommands(v, nil)

	res, err := cmds.Execute(context.Background(), "echo hello")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if res.Stdout != "hell" || !res.Truncated {
		t.Fatalf("expected truncated output, got %+v", res)
	}
}

func TestCommands_TimeoutLeavesNoProcess(t *testing.T) {
	_, v := newSandbox(t, nil)
	rec := &memoryRecorder{}
	cmds := NewCommands(v, rec)
	pid := 0
	cmds.onStart = func(p int) { pid = p }

	start := time.Now()
	_, err := cmds.ExecuteWithTimeout(context.Background(), "sleep 30", 100*time.Millisecond)
	assertKind(t, err, KindExecutionTimeout)
	if !errors.Is(err, ErrExecutionTimeout) {
		t.Fatalf("expected ErrExecutionTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout took %s", elapsed)
	}

	if pid == 0 {
		t.Fatal("expected the process to have started")
	}
	if err := unix.Kill(pid, 0); !errors.Is(err, unix.ESRCH) {
		t.Fatalf("expected process %d to be gone, kill(0) = %v", pid, err)
	}
	if err := unix.Kill(-pid, 0); !errors.Is(err, unix.ESRCH) {
		t.Fatalf("expected process group %d to be gone, kill(0) = %v", pid, err)
	}
	if ev := rec.last(t); ev.Result != audit.ResultError || ev.Reason != KindExecutionTimeout {
		t.Fatalf("unexpected audit event %+v", ev)
	}
}

func TestCommands_PolicyTimeoutApplies(t *testing.T) {
	_, v := newSandbox(t, func(doc *policy.Document) {
		doc.SystemCommands.Timeout = "150ms"
	})
	cmds := NewCommands(v, nil)

	_, err := cmds.Execute(context.Background(), "sleep 30")
	assertKind(t, err, KindExecutionTimeout)
}

func TestCommands_OverrideCannotExceedPolicyTimeout(t *testing.T) {
	_, v := newSandbox(t, func(doc *policy.Document) {
		doc.SystemCommands.Timeout = "150ms"
	})
	cmds := NewCommands(v, nil)

	start := time.Now()
	_, err := cmds.ExecuteWithTimeout(context.Background(), "sleep 30", time.Hour)
	assertKind(t, err, KindExecutionTimeout)
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("override extended the policy timeout: %s", elapsed)
	}
}

func TestCommands_CallerCancellation(t *testing.T) {
	_, v := newSandbox(t, nil)
	cmds := NewCommands(v, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := cmds.Execute(ctx, "sleep 30")
	assertKind(t, err, KindCanceled)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCommands_SpawnFailure(t *testing.T) {
	_, v := newSandbox(t, nil)
	cmds := NewCommands(v, nil)

	_, err := cmds.Execute(context.Background(), "warden-no-such-binary --flag")
	if !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("expected exec.ErrNotFound, got %v", err)
	}
	assertKind(t, err, KindInternal)
}

func TestCommands_PassThroughs(t *testing.T) {
	_, v := newSandbox(t, nil)
	cmds := NewCommands(v, nil)

	wd, err := cmds.WorkingDirectory()
	if err != nil {
		t.Fatalf("WorkingDirectory error: %v", err)
	}
	if want, _ := os.Getwd(); wd != want {
		t.Fatalf("expected %q, got %q", want, wd)
	}

	t.Setenv("WARDEN_TEST_VALUE", "present")
	if got, ok := cmds.Environment("WARDEN_TEST_VALUE"); !ok || got != "present" {
		t.Fatalf("Environment = %q, %v", got, ok)
	}
	if _, ok := cmds.Environment("WARDEN_TEST_" + strings.Repeat("X", 8)); ok {
		t.Fatal("expected missing variable")
	}
}
