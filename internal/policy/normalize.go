package policy

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// canonicalPath resolves a requested path to the form patterns are matched
// against: home shorthand expanded, absolute, and lexically clean.
func canonicalPath(path, homeDir, workDir string) string {
	path = strings.TrimSpace(path)
	// syscalls truncate at NUL, so "/etc/passwd\x00.txt" would open /etc/passwd
	path = strings.ReplaceAll(path, "\x00", "")
	path = strings.ToValidUTF8(path, "\uFFFD")
	path = norm.NFKC.String(path)
	path = expandHome(path, homeDir)

	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}
	return filepath.Clean(path)
}

func expandHome(path, homeDir string) string {
	if homeDir == "" || path == "" || path[0] != '~' {
		return path
	}
	if path == "~" {
		return homeDir
	}
	if path[1] == '/' || path[1] == filepath.Separator {
		return filepath.Join(homeDir, path[2:])
	}
	// ~user forms are left alone; they never match an absolute pattern.
	return path
}

// extension returns the final ".ext" of the path's base name. Dotfiles such
// as ".bashrc" and names ending in a dot have no extension.
func extension(path string) (string, bool) {
	base := filepath.Base(path)
	idx := strings.LastIndexByte(base, '.')
	if idx <= 0 || idx == len(base)-1 {
		return "", false
	}
	return base[idx:], true
}
