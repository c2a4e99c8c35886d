package rpc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"

	"github.com/MEKXH/warden/internal/audit"
	"github.com/MEKXH/warden/internal/config"
	"github.com/MEKXH/warden/internal/executor"
	"github.com/MEKXH/warden/internal/policy"
	"github.com/MEKXH/warden/internal/wire"
)

func boolPtr(b bool) *bool { return &b }

type requestRecorder struct {
	mu    sync.Mutex
	metas []audit.RequestMeta
}

func (r *requestRecorder) Record(ctx context.Context, _ audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metas = append(r.metas, audit.RequestFromContext(ctx))
}

func (r *requestRecorder) last() audit.RequestMeta {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.metas) == 0 {
		return audit.RequestMeta{}
	}
	return r.metas[len(r.metas)-1]
}

func newTestClient(t *testing.T) (string, *Client, *requestRecorder) {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("resolve temp dir: %v", err)
	}
	doc := &policy.Document{
		FileOperations: &policy.FileOperations{
			AllowedExtensions: &policy.AllowedExtensions{
				Read:  []string{".txt", ".bin"},
				Write: []string{".txt", ".bin"},
			},
			BlockedPaths:       []string{filepath.Join(dir, "blocked") + "/*"},
			AllowedDirectories: []string{dir + "/*"},
			MaxFileSizeBytes:   32,
		},
		SystemCommands: &policy.SystemCommands{
			Enabled:         boolPtr(true),
			Allowlist:       []string{"echo"},
			BlockedPatterns: []string{"rm -rf"},
			TimeoutSeconds:  5,
		},
	}
	p, err := policy.Compile(doc, policy.Options{HomeDir: dir, WorkDir: dir})
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	v := policy.NewValidator(p)
	rec := &requestRecorder{}
	svc := NewService(executor.NewFiles(v, rec), executor.NewCommands(v, rec))

	srv := New(config.GRPCConfig{Host: "127.0.0.1", Port: 50055}, svc)
	lis := bufconn.Listen(1 << 20)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	client, err := Dial(context.Background(), "passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return dir, client, rec
}

func TestService_WriteThenRead(t *testing.T) {
	dir, client, _ := newTestClient(t)
	ctx := context.Background()
	path := filepath.Join(dir, "notes", "a.txt")

	wr, err := client.WriteFile(ctx, &FileWriteRequest{Path: path, Content: "hello"})
	if err != nil {
		t.Fatalf("WriteFile transport error: %v", err)
	}
	if !wr.Success || wr.Error != "" {
		t.Fatalf("WriteFile status = %+v", wr.Status)
	}

	rr, err := client.ReadFile(ctx, &FileReadRequest{Path: path})
	if err != nil {
		t.Fatalf("ReadFile transport error: %v", err)
	}
	if !rr.Success || rr.Content != "hello" || rr.Encoding != wire.EncodingUTF8 {
		t.Fatalf("ReadFile = %+v", rr)
	}
}

func TestService_BinaryContentUsesBase64(t *testing.T) {
	dir, client, _ := newTestClient(t)
	ctx := context.Background()
	path := filepath.Join(dir, "blob.bin")
	if err := os.WriteFile(path, []byte{0xff, 0x00, 0xfe}, 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rr, err := client.ReadFile(ctx, &FileReadRequest{Path: path})
	if err != nil {
		t.Fatalf("ReadFile transport error: %v", err)
	}
	if rr.Encoding != wire.EncodingBase64 || rr.Content != "/wD+" {
		t.Fatalf("ReadFile = %+v", rr)
	}
}

func TestService_FailuresAreStatusNotTransportErrors(t *testing.T) {
	dir, client, _ := newTestClient(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		call   func() (wire.Status, error)
		kind   string
		reason string
	}{
		{
			name: "blocked read",
			call: func() (wire.Status, error) {
				r, err := client.ReadFile(ctx, &FileReadRequest{Path: filepath.Join(dir, "blocked", "k.txt")})
				if err != nil {
					return wire.Status{}, err
				}
				return r.Status, nil
			},
			kind:   executor.KindDenied,
			reason: string(policy.ReasonBlocked),
		},
		{
			name: "extension",
			call: func() (wire.Status, error) {
				r, err := client.WriteFile(ctx, &FileWriteRequest{Path: filepath.Join(dir, "run.sh"), Content: "x"})
				if err != nil {
					return wire.Status{}, err
				}
				return r.Status, nil
			},
			kind:   executor.KindDenied,
			reason: string(policy.ReasonExtensionNotAllowed),
		},
		{
			name: "missing",
			call: func() (wire.Status, error) {
				r, err := client.ReadFile(ctx, &FileReadRequest{Path: filepath.Join(dir, "none.txt")})
				if err != nil {
					return wire.Status{}, err
				}
				return r.Status, nil
			},
			kind: executor.KindNotFound,
		},
		{
			name: "too large",
			call: func() (wire.Status, error) {
				r, err := client.WriteFile(ctx, &FileWriteRequest{Path: filepath.Join(dir, "big.txt"), Content: strings.Repeat("x", 33)})
				if err != nil {
					return wire.Status{}, err
				}
				return r.Status, nil
			},
			kind: executor.KindSizeExceeded,
		},
		{
			name: "command not allowlisted",
			call: func() (wire.Status, error) {
				r, err := client.ExecuteCommand(ctx, &CommandRequest{Command: "cat", Args: []string{"/etc/passwd"}})
				if err != nil {
					return wire.Status{}, err
				}
				if r.ExitCode != -1 {
					t.Errorf("exit code = %d, want -1", r.ExitCode)
				}
				return r.Status, nil
			},
			kind:   executor.KindDenied,
			reason: string(policy.ReasonNotAllowlisted),
		},
		{
			name: "env missing",
			call: func() (wire.Status, error) {
				r, err := client.GetEnvironmentVariable(ctx, &EnvVarRequest{Name: "WARDEN_TEST_SURELY_UNSET"})
				if err != nil {
					return wire.Status{}, err
				}
				return r.Status, nil
			},
			kind: executor.KindNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := tt.call()
			if err != nil {
				t.Fatalf("transport error: %v", err)
			}
			if st.Success || st.Error == "" {
				t.Fatalf("status = %+v, want failure", st)
			}
			if st.ErrorKind != tt.kind {
				t.Fatalf("error_kind = %q, want %q", st.ErrorKind, tt.kind)
			}
			if st.Reason != tt.reason {
				t.Fatalf("reason = %q, want %q", st.Reason, tt.reason)
			}
		})
	}
}

func TestService_ListExistsInfo(t *testing.T) {
	dir, client, _ := newTestClient(t)
	ctx := context.Background()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("abc"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "docs.txt"), 0o755); err != nil {
		t.Fatalf("seed dir: %v", err)
	}

	lr, err := client.ListDirectory(ctx, &FileListRequest{Path: filepath.Join(dir, "docs.txt")})
	if err != nil || !lr.Success {
		t.Fatalf("ListDirectory = %+v, %v", lr, err)
	}
	if len(lr.Entries) != 0 {
		t.Fatalf("entries = %+v, want none", lr.Entries)
	}

	er, err := client.FileExists(ctx, &FileExistsRequest{Path: filepath.Join(dir, "a.txt")})
	if err != nil || !er.Success || !er.Exists {
		t.Fatalf("FileExists = %+v, %v", er, err)
	}
	er, err = client.FileExists(ctx, &FileExistsRequest{Path: filepath.Join(dir, "gone.txt")})
	if err != nil || !er.Success || er.Exists {
		t.Fatalf("FileExists(missing) = %+v, %v", er, err)
	}

	ir, err := client.GetFileInfo(ctx, &FileInfoRequest{Path: filepath.Join(dir, "a.txt")})
	if err != nil || !ir.Success {
		t.Fatalf("GetFileInfo = %+v, %v", ir, err)
	}
	if ir.Size != 3 || !ir.IsFile || ir.IsDir {
		t.Fatalf("GetFileInfo = %+v", ir)
	}
}

func TestService_ExecuteCommandJoinsArgs(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires echo binary")
	}
	_, client, _ := newTestClient(t)

	resp, err := client.ExecuteCommand(context.Background(), &CommandRequest{Command: "echo", Args: []string{"hello", "grpc"}})
	if err != nil {
		t.Fatalf("ExecuteCommand transport error: %v", err)
	}
	if !resp.Success || resp.ExitCode != 0 {
		t.Fatalf("ExecuteCommand = %+v", resp)
	}
	if strings.TrimSpace(resp.Stdout) != "hello grpc" {
		t.Fatalf("stdout = %q", resp.Stdout)
	}
}

func TestService_WorkingDirectory(t *testing.T) {
	_, client, _ := newTestClient(t)
	want, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	resp, err := client.GetWorkingDirectory(context.Background())
	if err != nil || !resp.Success {
		t.Fatalf("GetWorkingDirectory = %+v, %v", resp, err)
	}
	if resp.Path != want {
		t.Fatalf("path = %q, want %q", resp.Path, want)
	}
}

func TestService_RequestMetadataReachesAudit(t *testing.T) {
	dir, client, rec := newTestClient(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), requestIDKey, "req-42")

	if _, err := client.FileExists(ctx, &FileExistsRequest{Path: filepath.Join(dir, "a.txt")}); err != nil {
		t.Fatalf("FileExists transport error: %v", err)
	}
	meta := rec.last()
	if meta.RequestID != "req-42" {
		t.Fatalf("request id = %q, want req-42", meta.RequestID)
	}
	if meta.Transport != "grpc" {
		t.Fatalf("transport = %q, want grpc", meta.Transport)
	}

	if _, err := client.FileExists(context.Background(), &FileExistsRequest{Path: filepath.Join(dir, "a.txt")}); err != nil {
		t.Fatalf("FileExists transport error: %v", err)
	}
	if got := rec.last().RequestID; got == "" || got == "req-42" {
		t.Fatalf("generated request id = %q", got)
	}
}
