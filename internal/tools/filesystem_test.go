package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MEKXH/warden/internal/executor"
	"github.com/MEKXH/warden/internal/policy"
)

func boolPtr(b bool) *bool { return &b }

func newTestExecutors(t *testing.T) (string, *executor.Files, *executor.Commands) {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("resolve temp dir: %v", err)
	}
	doc := &policy.Document{
		FileOperations: &policy.FileOperations{
			AllowedExtensions: &policy.AllowedExtensions{
				Read:  []string{".txt", ".md"},
				Write: []string{".txt"},
			},
			BlockedPaths:       []string{filepath.Join(dir, "private") + "/*"},
			AllowedDirectories: []string{dir + "/*"},
			MaxFileSizeBytes:   64,
		},
		SystemCommands: &policy.SystemCommands{
			Enabled:         boolPtr(true),
			Allowlist:       []string{"echo"},
			BlockedPatterns: []string{"--danger"},
			TimeoutSeconds:  5,
		},
	}
	p, err := policy.Compile(doc, policy.Options{HomeDir: dir, WorkDir: dir})
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	v := policy.NewValidator(p)
	return dir, executor.NewFiles(v, nil), executor.NewCommands(v, nil)
}

func TestWriteThenReadFileTool(t *testing.T) {
	dir, files, _ := newTestExecutors(t)
	writeTool, err := NewWriteFileTool(files)
	if err != nil {
		t.Fatalf("NewWriteFileTool error: %v", err)
	}
	readTool, err := NewReadFileTool(files)
	if err != nil {
		t.Fatalf("NewReadFileTool error: %v", err)
	}

	ctx := context.Background()
	target := filepath.Join(dir, "sub", "output.txt")
	content := "line0\nline1\nline2"
	if _, err := writeTool.InvokableRun(ctx, fmt.Sprintf(`{"path": %q, "content": %q}`, target, content)); err != nil {
		t.Fatalf("write InvokableRun error: %v", err)
	}

	result, err := readTool.InvokableRun(ctx, fmt.Sprintf(`{"path": %q, "offset": 1, "limit": 1}`, target))
	if err != nil {
		t.Fatalf("read InvokableRun error: %v", err)
	}
	var out ReadFileOutput
	if err := json.Unmarshal([]byte(result), &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if out.Content != "line1" || out.TotalLines != 3 {
		t.Fatalf("unexpected output %+v", out)
	}
}

func TestFileTools_DeniedByPolicy(t *testing.T) {
	dir, files, _ := newTestExecutors(t)
	ctx := context.Background()

	readTool, _ := NewReadFileTool(files)
	writeTool, _ := NewWriteFileTool(files)
	listTool, _ := NewListDirTool(files)

	tests := []struct {
		name string
		run  func() (string, error)
	}{
		{"read outside", func() (string, error) {
			return readTool.InvokableRun(ctx, fmt.Sprintf(`{"path": %q}`, filepath.Join(dir, "..", "evil.txt")))
		}},
		{"write blocked", func() (string, error) {
			return writeTool.InvokableRun(ctx, fmt.Sprintf(`{"path": %q, "content": "x"}`, filepath.Join(dir, "private", "a.txt")))
		}},
		{"write extension", func() (string, error) {
			return writeTool.InvokableRun(ctx, fmt.Sprintf(`{"path": %q, "content": "x"}`, filepath.Join(dir, "a.sh")))
		}},
		{"list extensionless directory", func() (string, error) {
			return listTool.InvokableRun(ctx, fmt.Sprintf(`{"path": %q}`, dir))
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.run(); err == nil || !strings.Contains(err.Error(), "denied") {
				t.Fatalf("expected policy denial, got %v", err)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(dir, "private")); !os.IsNotExist(err) {
		t.Fatal("denied write must not create directories")
	}
}

func TestListExistsAndInfoTools(t *testing.T) {
	dir, files, _ := newTestExecutors(t)
	ctx := context.Background()

	folder := filepath.Join(dir, "notes.md")
	if err := os.Mkdir(folder, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(folder, "a.txt"), []byte("abc"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	listTool, _ := NewListDirTool(files)
	result, err := listTool.InvokableRun(ctx, fmt.Sprintf(`{"path": %q}`, folder))
	if err != nil {
		t.Fatalf("list InvokableRun error: %v", err)
	}
	if !strings.Contains(result, "a.txt") {
		t.Fatalf("expected a.txt in listing, got %s", result)
	}

	existsTool, _ := NewFileExistsTool(files)
	result, err = existsTool.InvokableRun(ctx, fmt.Sprintf(`{"path": %q}`, filepath.Join(folder, "missing.txt")))
	if err != nil {
		t.Fatalf("exists InvokableRun error: %v", err)
	}
	var exists FileExistsOutput
	if err := json.Unmarshal([]byte(result), &exists); err != nil || exists.Exists {
		t.Fatalf("expected exists=false, got %s (%v)", result, err)
	}

	infoTool, _ := NewFileInfoTool(files)
	result, err = infoTool.InvokableRun(ctx, fmt.Sprintf(`{"path": %q}`, filepath.Join(folder, "a.txt")))
	if err != nil {
		t.Fatalf("info InvokableRun error: %v", err)
	}
	var info executor.FileInfo
	if err := json.Unmarshal([]byte(result), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Size != 3 || !info.IsFile || info.IsDirectory {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestEditFileTool_ReplacesSingleMatch(t *testing.T) {
	dir, files, _ := newTestExecutors(t)
	target := filepath.Join(dir, "main.txt")
	if err := os.WriteFile(target, []byte("say hello\nsay bye\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tool, err := NewEditFileTool(files)
	if err != nil {
		t.Fatalf("NewEditFileTool error: %v", err)
	}

	ctx := context.Background()
	if _, err := tool.InvokableRun(ctx, fmt.Sprintf(`{"path": %q, "old_text": "hello", "new_text": "hi"}`, target)); err != nil {
		t.Fatalf("InvokableRun error: %v", err)
	}
	got, _ := os.ReadFile(target)
	if string(got) != "say hi\nsay bye\n" {
		t.Fatalf("unexpected content %q", got)
	}

	if _, err := tool.InvokableRun(ctx, fmt.Sprintf(`{"path": %q, "old_text": "say", "new_text": "x"}`, target)); err == nil {
		t.Fatal("expected ambiguous match error")
	}
}

func TestAppendFileTool_RespectsSizeLimit(t *testing.T) {
	dir, files, _ := newTestExecutors(t)
	tool, err := NewAppendFileTool(files)
	if err != nil {
		t.Fatalf("NewAppendFileTool error: %v", err)
	}

	ctx := context.Background()
	target := filepath.Join(dir, "log.txt")
	for i := 0; i < 2; i++ {
		if _, err := tool.InvokableRun(ctx, fmt.Sprintf(`{"path": %q, "content": "0123456789"}`, target)); err != nil {
			t.Fatalf("append %d error: %v", i, err)
		}
	}
	got, _ := os.ReadFile(target)
	if len(got) != 20 {
		t.Fatalf("expected 20 bytes, got %d", len(got))
	}

	big := strings.Repeat("z", 50)
	if _, err := tool.InvokableRun(ctx, fmt.Sprintf(`{"path": %q, "content": %q}`, target, big)); err == nil {
		t.Fatal("expected size limit error")
	}
	got, _ = os.ReadFile(target)
	if len(got) != 20 {
		t.Fatalf("file must be untouched after a rejected append, got %d bytes", len(got))
	}
}
