package executor

import (
	"context"
	"errors"

	"github.com/MEKXH/warden/internal/policy"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrNotADirectory    = errors.New("not a directory")
	ErrMetadata         = errors.New("metadata error")
	ErrSizeExceeded     = errors.New("size exceeds policy limit")
	ErrExecutionTimeout = errors.New("command execution timed out")
	// ErrOrphanRisk means a timed-out process could not be confirmed dead.
	ErrOrphanRisk = errors.New("spawned process may still be running")
)

// Error kinds reported to remote callers.
const (
	KindDenied           = "denied"
	KindNotFound         = "not_found"
	KindNotADirectory    = "not_a_directory"
	KindMetadata         = "metadata"
	KindSizeExceeded     = "size_exceeded"
	KindExecutionTimeout = "execution_timeout"
	KindOrphanRisk       = "orphan_risk"
	KindCanceled         = "canceled"
	KindInternal         = "internal"
)

// ErrorKind classifies an executor error for the wire.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, policy.ErrDenied):
		return KindDenied
	case errors.Is(err, ErrOrphanRisk):
		return KindOrphanRisk
	case errors.Is(err, ErrExecutionTimeout):
		return KindExecutionTimeout
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNotADirectory):
		return KindNotADirectory
	case errors.Is(err, ErrSizeExceeded):
		return KindSizeExceeded
	case errors.Is(err, ErrMetadata):
		return KindMetadata
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}

// DenialReason extracts the policy reason from a denial, if any.
func DenialReason(err error) (policy.Reason, bool) {
	var denied *policy.DeniedError
	if errors.As(err, &denied) {
		return denied.Reason, true
	}
	return "", false
}
