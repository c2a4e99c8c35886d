package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/MEKXH/warden/internal/audit"
	"github.com/MEKXH/warden/internal/policy"
)

const (
	dirMode  = 0o755
	fileMode = 0o644
)

// FileInfo is the metadata returned by Stat.
type FileInfo struct {
	Size        int64 `json:"size"`
	IsDirectory bool  `json:"is_directory"`
	IsFile      bool  `json:"is_file"`
	ReadOnly    bool  `json:"read_only"`
}

// Files performs policy-checked file operations. Every call consults the
// validator before touching the filesystem.
type Files struct {
	source   policy.Source
	recorder audit.Recorder
}

// NewFiles creates a file executor. A nil recorder discards audit events.
func NewFiles(source policy.Source, recorder audit.Recorder) *Files {
	if recorder == nil {
		recorder = audit.Discard{}
	}
	return &Files{source: source, recorder: recorder}
}

// Read returns the file content. The size limit is checked against metadata
// before any content is loaded.
func (f *Files) Read(ctx context.Context, path string) ([]byte, error) {
	const op = "file_read"
	v, target, err := f.authorize(ctx, op, policy.OpRead, path)
	if err != nil {
		return nil, err
	}

	info, err := statTarget(target)
	if err != nil {
		return nil, f.fail(ctx, op, target, err)
	}
	limit := v.MaxFileSize()
	if uint64(info.Size()) > limit {
		return nil, f.fail(ctx, op, target, fmt.Errorf("%w: file is %d bytes, limit is %d", ErrSizeExceeded, info.Size(), limit))
	}

	file, err := os.Open(target)
	if err != nil {
		return nil, f.fail(ctx, op, target, fmt.Errorf("open %s: %w", target, err))
	}
	defer file.Close()

	// the file may grow between stat and read
	data, err := io.ReadAll(io.LimitReader(file, readCap(limit)))
	if err != nil {
		return nil, f.fail(ctx, op, target, fmt.Errorf("read %s: %w", target, err))
	}
	if uint64(len(data)) > limit {
		return nil, f.fail(ctx, op, target, fmt.Errorf("%w: file grew past %d bytes while reading", ErrSizeExceeded, limit))
	}

	f.succeed(ctx, op, target, fmt.Sprintf("bytes=%d", len(data)))
	return data, nil
}

// Write replaces the file content. Missing parent directories are created
// as part of a successful write; a failed write removes the ones it created.
func (f *Files) Write(ctx context.Context, path string, content []byte) error {
	const op = "file_write"
	v, target, err := f.authorize(ctx, op, policy.OpWrite, path)
	if err != nil {
		return err
	}

	limit := v.MaxFileSize()
	if uint64(len(content)) > limit {
		return f.fail(ctx, op, target, fmt.Errorf("%w: content is %d bytes, limit is %d", ErrSizeExceeded, len(content), limit))
	}

	parent := filepath.Dir(target)
	created, err := createParents(parent)
	if err != nil {
		return f.fail(ctx, op, target, fmt.Errorf("create parent directory %s: %w", parent, err))
	}

	if v.AtomicWrites() {
		err = writeAtomic(target, content)
	} else {
		err = os.WriteFile(target, content, fileMode)
	}
	if err != nil {
		removeCreated(parent, created)
		return f.fail(ctx, op, target, fmt.Errorf("write %s: %w", target, err))
	}

	f.succeed(ctx, op, target, fmt.Sprintf("bytes=%d", len(content)))
	return nil
}

// List returns entry names in directory enumeration order. The order is not
// sorted and may differ between calls.
func (f *Files) List(ctx context.Context, path string) ([]string, error) {
	const op = "file_list"
	_, target, err := f.authorize(ctx, op, policy.OpRead, path)
	if err != nil {
		return nil, err
	}

	info, err := statTarget(target)
	if err != nil {
		return nil, f.fail(ctx, op, target, err)
	}
	if !info.IsDir() {
		return nil, f.fail(ctx, op, target, fmt.Errorf("%w: %s", ErrNotADirectory, target))
	}

	dir, err := os.Open(target)
	if err != nil {
		return nil, f.fail(ctx, op, target, fmt.Errorf("open %s: %w", target, err))
	}
	defer dir.Close()

	names, err := dir.Readdirnames(-1)
	if err != nil {
		return nil, f.fail(ctx, op, target, fmt.Errorf("read directory %s: %w", target, err))
	}

	f.succeed(ctx, op, target, fmt.Sprintf("entries=%d", len(names)))
	return names, nil
}

// Exists reports whether path exists as a file or directory.
func (f *Files) Exists(ctx context.Context, path string) (bool, error) {
	const op = "file_exists"
	_, target, err := f.authorize(ctx, op, policy.OpRead, path)
	if err != nil {
		return false, err
	}

	_, err = statTarget(target)
	switch {
	case err == nil:
		f.succeed(ctx, op, target, "exists=true")
		return true, nil
	case errors.Is(err, ErrNotFound):
		f.succeed(ctx, op, target, "exists=false")
		return false, nil
	default:
		return false, f.fail(ctx, op, target, err)
	}
}

// Stat returns size and type information for path.
func (f *Files) Stat(ctx context.Context, path string) (FileInfo, error) {
	const op = "file_stat"
	_, target, err := f.authorize(ctx, op, policy.OpRead, path)
	if err != nil {
		return FileInfo{}, err
	}

	info, err := statTarget(target)
	if err != nil {
		return FileInfo{}, f.fail(ctx, op, target, err)
	}

	f.succeed(ctx, op, target, "")
	return FileInfo{
		Size:        info.Size(),
		IsDirectory: info.IsDir(),
		IsFile:      info.Mode().IsRegular(),
		ReadOnly:    info.Mode().Perm()&0o222 == 0,
	}, nil
}

// authorize validates path and, when the approved path runs through a
// symlink, validates the real target as well.
func (f *Files) authorize(ctx context.Context, op string, kind policy.Operation, path string) (*policy.Validator, string, error) {
	v := f.source.Validator()
	d := v.ValidatePath(path, kind)
	if !d.Allowed() {
		f.deny(ctx, op, d)
		return nil, "", d.Err()
	}

	real, err := resolveReal(d.Target)
	if err != nil {
		return nil, "", f.fail(ctx, op, d.Target, fmt.Errorf("%w: resolve %s: %v", ErrMetadata, d.Target, err))
	}
	if real != d.Target {
		rd := v.ValidatePath(real, kind)
		if !rd.Allowed() {
			rd.Detail = fmt.Sprintf("%s (via symlink %q)", rd.Detail, d.Target)
			f.deny(ctx, op, rd)
			return nil, "", rd.Err()
		}
	}

	return v, d.Target, nil
}

func (f *Files) deny(ctx context.Context, op string, d policy.Decision) {
	recordDenial(ctx, f.recorder, op, d.Target, d)
}

func (f *Files) succeed(ctx context.Context, op, target, detail string) {
	recordSuccess(ctx, f.recorder, op, target, detail, 0)
}

func (f *Files) fail(ctx context.Context, op, target string, err error) error {
	return recordFailure(ctx, f.recorder, op, target, err, 0)
}

func statTarget(target string) (fs.FileInfo, error) {
	info, err := os.Stat(target)
	if err == nil {
		return info, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
	}
	return nil, fmt.Errorf("%w: %v", ErrMetadata, err)
}

func readCap(limit uint64) int64 {
	if limit >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(limit) + 1
}

// createParents makes dir and its missing ancestors. It returns the topmost
// directory it created, or "" when dir already existed.
func createParents(dir string) (string, error) {
	top := ""
	for cur := dir; ; {
		if _, err := os.Stat(cur); !errors.Is(err, fs.ErrNotExist) {
			break
		}
		top = cur
		next := filepath.Dir(cur)
		if next == cur {
			break
		}
		cur = next
	}
	if top == "" {
		return "", nil
	}

	slog.Debug("creating parent directory", "path", dir)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		removeCreated(dir, top)
		return "", err
	}
	return top, nil
}

// removeCreated removes dir and its ancestors up to and including top.
// Directories that are no longer empty stay.
func removeCreated(dir, top string) {
	if top == "" {
		return
	}
	for cur := dir; ; cur = filepath.Dir(cur) {
		if err := os.Remove(cur); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return
			}
		}
		if cur == top || filepath.Dir(cur) == cur {
			return
		}
	}
}

func writeAtomic(target string, content []byte) error {
	mode := fs.FileMode(fileMode)
	if info, err := os.Stat(target); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return err
	}
	return nil
}
