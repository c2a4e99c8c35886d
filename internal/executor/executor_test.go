package executor

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MEKXH/warden/internal/audit"
	"github.com/MEKXH/warden/internal/policy"
)

func boolPtr(b bool) *bool { return &b }

// sandboxDir returns a temp dir with symlinks resolved, so the symlink
// re-check does not trip over platforms where the temp root is itself a
// link.
func sandboxDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("resolve temp dir: %v", err)
	}
	return dir
}

func sandboxDocument(dir string) *policy.Document {
	return &policy.Document{
		FileOperations: &policy.FileOperations{
			AllowedExtensions: &policy.AllowedExtensions{
				Read:  []string{".txt", ".md"},
				Write: []string{".txt"},
			},
			BlockedPaths:       []string{filepath.Join(dir, "secret") + "/*"},
			AllowedDirectories: []string{dir + "/*"},
			MaxFileSizeBytes:   16,
		},
		SystemCommands: &policy.SystemCommands{
			Enabled:         boolPtr(true),
			Allowlist:       []string{"echo", "sleep", "false", "warden-no-such-binary"},
			BlockedPatterns: []string{"rm -rf"},
			TimeoutSeconds:  5,
		},
	}
}

func newSandbox(t *testing.T, mutate func(*policy.Document)) (string, *policy.Validator) {
	t.Helper()
	dir := sandboxDir(t)
	doc := sandboxDocument(dir)
	if mutate != nil {
		mutate(doc)
	}
	p, err := policy.Compile(doc, policy.Options{HomeDir: dir, WorkDir: dir})
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	return dir, policy.NewValidator(p)
}

type memoryRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *memoryRecorder) Record(_ context.Context, event audit.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *memoryRecorder) last(t *testing.T) audit.Event {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		t.Fatal("expected an audit event")
	}
	return m.events[len(m.events)-1]
}

func assertKind(t *testing.T, err error, kind string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := ErrorKind(err); got != kind {
		t.Fatalf("expected kind %q, got %q (%v)", kind, got, err)
	}
}

func assertDenied(t *testing.T, err error, reason policy.Reason) {
	t.Helper()
	assertKind(t, err, KindDenied)
	got, ok := DenialReason(err)
	if !ok || got != reason {
		t.Fatalf("expected denial reason %q, got %q (%v)", reason, got, err)
	}
}
