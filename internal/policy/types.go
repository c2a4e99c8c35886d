package policy

import (
	"errors"
	"fmt"
)

// Action is the policy decision for a file or command request.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
)

// Reason names why a request was denied. The set is closed.
type Reason string

const (
	ReasonBlocked             Reason = "blocked"
	ReasonNotAllowlisted      Reason = "not_allowlisted"
	ReasonExtensionNotAllowed Reason = "extension_not_allowed"
	ReasonNoExtension         Reason = "no_extension"
	ReasonCommandsDisabled    Reason = "commands_disabled"
	ReasonEmptyCommand        Reason = "empty_command"
	ReasonBlockedPattern      Reason = "blocked_pattern"
)

// Operation is the kind of file access being validated.
type Operation string

const (
	OpRead  Operation = "read"
	OpWrite Operation = "write"
)

// Decision is the deterministic validation result.
type Decision struct {
	Action Action
	Reason Reason
	Detail string
	// Target is the canonical path that was validated. Empty for commands.
	Target string
}

// Allowed reports whether the decision permits the request.
func (d Decision) Allowed() bool {
	return d.Action == ActionAllow
}

// Err returns nil for an allow decision and a *DeniedError otherwise.
func (d Decision) Err() error {
	if d.Allowed() {
		return nil
	}
	return &DeniedError{Reason: d.Reason, Detail: d.Detail}
}

func allow(target string) Decision {
	return Decision{Action: ActionAllow, Target: target}
}

func deny(reason Reason, target, format string, args ...any) Decision {
	return Decision{
		Action: ActionDeny,
		Reason: reason,
		Detail: fmt.Sprintf(format, args...),
		Target: target,
	}
}

var (
	// ErrDenied matches every *DeniedError via errors.Is.
	ErrDenied = errors.New("access denied")
	// ErrPolicyLoad matches every *LoadError via errors.Is.
	ErrPolicyLoad = errors.New("policy load failed")
)

// DeniedError is returned by executors when the validator rejects a request.
type DeniedError struct {
	Reason Reason
	Detail string
}

func (e *DeniedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("access denied: %s", e.Reason)
	}
	return "access denied: " + e.Detail
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// LoadError reports a malformed, incomplete or uncompilable policy document.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("policy load failed: %v", e.Err)
	}
	return fmt.Sprintf("policy load failed (%s): %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func (e *LoadError) Is(target error) bool {
	return target == ErrPolicyLoad
}
