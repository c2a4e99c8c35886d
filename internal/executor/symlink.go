package executor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const maxSymlinkHops = 40

// resolveReal returns the path the OS would actually touch for path. The
// longest existing prefix has its symlinks resolved; dangling links are
// followed to where a create would land.
func resolveReal(path string) (string, error) {
	for hop := 0; hop <= maxSymlinkHops; hop++ {
		prefix, rest := existingPrefix(path)
		real, err := filepath.EvalSymlinks(prefix)
		if err == nil {
			return filepath.Join(real, rest), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}

		// prefix exists but does not resolve, so its last element is a
		// dangling link
		link, lerr := os.Readlink(prefix)
		if lerr != nil {
			return "", err
		}
		if !filepath.IsAbs(link) {
			link = filepath.Join(filepath.Dir(prefix), link)
		}
		path = filepath.Join(link, rest)
	}
	return "", fmt.Errorf("too many levels of symbolic links: %s", path)
}

func existingPrefix(path string) (prefix, rest string) {
	cur := path
	for {
		if _, err := os.Lstat(cur); err == nil {
			return cur, rest
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return cur, rest
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}
