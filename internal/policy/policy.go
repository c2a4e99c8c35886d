package policy

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"
)

const (
	bytesPerMB = 1024 * 1024
	// DefaultMaxOutputBytes applies when the document has no environment limit.
	DefaultMaxOutputBytes = 1 << 20
)

// Options controls how relative and home-relative paths are resolved.
type Options struct {
	HomeDir string
	WorkDir string
}

// DefaultOptions resolves against the current user and working directory.
func DefaultOptions() Options {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("failed to resolve home directory, '~' will not be expanded", "error", err)
		homeDir = ""
	}
	workDir, err := os.Getwd()
	if err != nil {
		slog.Warn("failed to resolve working directory, using '/'", "error", err)
		workDir = "/"
	}
	return Options{HomeDir: homeDir, WorkDir: workDir}
}

// Policy is the compiled, immutable rule set. Build it with Compile, Parse
// or Load; the zero value denies everything.
type Policy struct {
	readExts        map[string]struct{}
	writeExts       map[string]struct{}
	blocked         []Pattern
	allowed         []Pattern
	maxFileSize     uint64
	atomicWrites    bool
	commandsEnabled bool
	allowlist       map[string]struct{}
	blockedSubstrs  []string
	commandTimeout  time.Duration
	maxOutputBytes  uint64
	homeDir         string
	workDir         string
}

// Compile builds a Policy from a decoded document. Every pattern is compiled
// here; any failure aborts the whole policy.
func Compile(doc *Document, opts Options) (*Policy, error) {
	if err := validateDocument(doc); err != nil {
		return nil, &LoadError{Err: err}
	}
	fo, sc := doc.FileOperations, doc.SystemCommands

	expand := func(raw string) string { return expandHome(strings.TrimSpace(raw), opts.HomeDir) }
	blocked, err := compilePatterns(fo.BlockedPaths, expand)
	if err != nil {
		return nil, &LoadError{Err: fmt.Errorf("file_operations.blocked_paths: %w", err)}
	}
	allowed, err := compilePatterns(fo.AllowedDirectories, expand)
	if err != nil {
		return nil, &LoadError{Err: fmt.Errorf("file_operations.allowed_directories: %w", err)}
	}

	timeout, err := commandTimeout(sc, doc.Environment)
	if err != nil {
		return nil, &LoadError{Err: err}
	}

	maxFileSize := fo.MaxFileSizeBytes
	if maxFileSize == 0 {
		maxFileSize = fo.MaxFileSizeMB * bytesPerMB
	}

	maxOutput := uint64(DefaultMaxOutputBytes)
	if doc.Environment != nil && doc.Environment.MaxOutputBytes > 0 {
		maxOutput = doc.Environment.MaxOutputBytes
	}

	allowlist := make(map[string]struct{}, len(sc.Allowlist))
	for _, name := range sc.Allowlist {
		allowlist[strings.TrimSpace(name)] = struct{}{}
	}

	return &Policy{
		readExts:        extensionSet(fo.AllowedExtensions.Read),
		writeExts:       extensionSet(fo.AllowedExtensions.Write),
		blocked:         blocked,
		allowed:         allowed,
		maxFileSize:     maxFileSize,
		atomicWrites:    fo.AtomicWrites,
		commandsEnabled: *sc.Enabled,
		allowlist:       allowlist,
		blockedSubstrs:  append([]string(nil), sc.BlockedPatterns...),
		commandTimeout:  timeout,
		maxOutputBytes:  maxOutput,
		homeDir:         opts.HomeDir,
		workDir:         opts.WorkDir,
	}, nil
}

func commandTimeout(sc *SystemCommands, env *Environment) (time.Duration, error) {
	timeout := time.Duration(sc.TimeoutSeconds) * time.Second
	if raw := strings.TrimSpace(sc.Timeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("system_commands.timeout: %w", err)
		}
		timeout = d
	}
	if timeout <= 0 {
		return 0, fmt.Errorf("system_commands.timeout must be positive, got %s", timeout)
	}
	if env != nil && env.MaxExecutionTimeMS > 0 {
		limit := time.Duration(env.MaxExecutionTimeMS) * time.Millisecond
		if limit < timeout {
			timeout = limit
		}
	}
	return timeout, nil
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.TrimSpace(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func patternStrings(patterns []Pattern) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, p.String())
	}
	return out
}

// MaxFileSize is the largest file, in bytes, that may be read or written.
func (p *Policy) MaxFileSize() uint64 { return p.maxFileSize }

// MaxOutputBytes caps each captured command output stream.
func (p *Policy) MaxOutputBytes() uint64 { return p.maxOutputBytes }

// CommandTimeout is the default execution deadline.
func (p *Policy) CommandTimeout() time.Duration { return p.commandTimeout }

// CommandsEnabled reports the global command kill switch.
func (p *Policy) CommandsEnabled() bool { return p.commandsEnabled }

// AtomicWrites reports whether writes go through a temp file and rename.
func (p *Policy) AtomicWrites() bool { return p.atomicWrites }

// Summary is a read-only snapshot of the policy for display and logging.
type Summary struct {
	ReadExtensions     []string
	WriteExtensions    []string
	BlockedPaths       []string
	AllowedDirectories []string
	MaxFileSize        uint64
	AtomicWrites       bool
	CommandsEnabled    bool
	CommandAllowlist   []string
	BlockedSubstrings  []string
	CommandTimeout     time.Duration
	MaxOutputBytes     uint64
}

// Summary returns copies of the policy contents.
func (p *Policy) Summary() Summary {
	return Summary{
		ReadExtensions:     sortedKeys(p.readExts),
		WriteExtensions:    sortedKeys(p.writeExts),
		BlockedPaths:       patternStrings(p.blocked),
		AllowedDirectories: patternStrings(p.allowed),
		MaxFileSize:        p.maxFileSize,
		AtomicWrites:       p.atomicWrites,
		CommandsEnabled:    p.commandsEnabled,
		CommandAllowlist:   sortedKeys(p.allowlist),
		BlockedSubstrings:  append([]string(nil), p.blockedSubstrs...),
		CommandTimeout:     p.commandTimeout,
		MaxOutputBytes:     p.maxOutputBytes,
	}
}
