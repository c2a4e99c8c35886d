package policy

import (
	"strings"
	"time"
)

// Validator performs pure policy decisions. It never touches the filesystem
// and is safe for concurrent use because the policy it wraps is immutable.
type Validator struct {
	policy *Policy
}

// NewValidator wraps a compiled policy. A nil policy denies everything.
func NewValidator(p *Policy) *Validator {
	if p == nil {
		p = &Policy{}
	}
	return &Validator{policy: p}
}

// Policy returns the wrapped policy.
func (v *Validator) Policy() *Policy {
	return v.policy
}

// ValidateRead decides whether path may be read (also used for list, exists
// and stat).
func (v *Validator) ValidateRead(path string) Decision {
	return v.validatePath(path, OpRead)
}

// ValidateWrite decides whether path may be written.
func (v *Validator) ValidateWrite(path string) Decision {
	return v.validatePath(path, OpWrite)
}

// ValidatePath dispatches on the operation.
func (v *Validator) ValidatePath(path string, op Operation) Decision {
	return v.validatePath(path, op)
}

func (v *Validator) validatePath(path string, op Operation) Decision {
	p := v.policy
	target := canonicalPath(path, p.homeDir, p.workDir)

	if pat, ok := matchAny(p.blocked, target); ok {
		return deny(ReasonBlocked, target, "path %q is blocked by %q", target, pat.String())
	}

	if _, ok := matchAny(p.allowed, target); !ok {
		return deny(ReasonNotAllowlisted, target, "path %q is not in an allowed directory", target)
	}

	ext, ok := extension(target)
	if !ok {
		return deny(ReasonNoExtension, target, "path %q has no file extension", target)
	}

	exts := p.readExts
	if op == OpWrite {
		exts = p.writeExts
	}
	if _, ok := exts[ext]; !ok {
		return deny(ReasonExtensionNotAllowed, target, "file extension %q is not allowed for %s", ext, op)
	}

	return allow(target)
}

// ValidateCommand decides whether a command line may be executed.
//
// Order matters: the kill switch, then emptiness, then the executable
// allowlist, then blocked substrings over the whole line.
func (v *Validator) ValidateCommand(commandLine string) Decision {
	p := v.policy
	if !p.commandsEnabled {
		return deny(ReasonCommandsDisabled, "", "system commands are disabled")
	}

	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return deny(ReasonEmptyCommand, "", "empty command")
	}

	name := fields[0]
	if _, ok := p.allowlist[name]; !ok {
		return deny(ReasonNotAllowlisted, "", "command %q is not allowed", name)
	}

	for _, blocked := range p.blockedSubstrs {
		if strings.Contains(commandLine, blocked) {
			return deny(ReasonBlockedPattern, "", "command contains blocked pattern %q", blocked)
		}
	}

	return allow("")
}

// MaxFileSize is the largest file, in bytes, that may be read or written.
func (v *Validator) MaxFileSize() uint64 { return v.policy.maxFileSize }

// MaxOutputBytes caps each captured command output stream.
func (v *Validator) MaxOutputBytes() uint64 { return v.policy.maxOutputBytes }

// CommandTimeout is the default execution deadline.
func (v *Validator) CommandTimeout() time.Duration { return v.policy.commandTimeout }

// CommandsEnabled reports the global command kill switch.
func (v *Validator) CommandsEnabled() bool { return v.policy.commandsEnabled }

// AtomicWrites reports whether writes go through a temp file and rename.
func (v *Validator) AtomicWrites() bool { return v.policy.atomicWrites }
