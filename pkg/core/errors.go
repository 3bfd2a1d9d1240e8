package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies a failure for outcomes and API responses.
type ErrorCode string

// Error codes.
const (
	CodeForbidden ErrorCode = "FORBIDDEN"
	CodeNotFound  ErrorCode = "NOT_FOUND"
	CodeIO        ErrorCode = "IO_ERROR"
	CodeConflict  ErrorCode = "CONFLICT"
	CodeRejected  ErrorCode = "REJECTED"
	CodeBusy      ErrorCode = "BUSY"
	CodeDirty     ErrorCode = "DIRTY_WORKTREE"
	CodeVCS       ErrorCode = "VCS_ERROR"
	CodeUnknown   ErrorCode = "UNKNOWN"
)

// Sentinel errors that can be checked with errors.Is().

// ErrForbidden is returned when the access guard denies a caller.
var ErrForbidden = errors.New("forbidden")

// ErrNotFound is returned when a node path does not resolve.
var ErrNotFound = errors.New("not found")

// ErrIO is returned when a translation file cannot be read or written.
var ErrIO = errors.New("i/o error")

// ErrConflict is matched by *ConflictError.
var ErrConflict = errors.New("merge conflict")

// ErrRejected is returned when the remote refuses a push because it has diverged.
var ErrRejected = errors.New("push rejected by remote")

// ErrBusy is returned when another operation holds the working copy lock
// and the fail-fast lock policy is in effect.
var ErrBusy = errors.New("working copy busy")

// ErrDirty is returned when the working copy has uncommitted changes that
// would be lost by the requested operation.
var ErrDirty = errors.New("working copy has uncommitted changes")

// ErrVCS wraps any other version control failure.
var ErrVCS = errors.New("version control error")

// ConflictError reports files that could not be reconciled automatically.
type ConflictError struct {
	Files []string
}

// Error implements error.
func (e *ConflictError) Error() string {
	if len(e.Files) == 0 {
		return ErrConflict.Error()
	}
	return fmt.Sprintf("%s in %s", ErrConflict, strings.Join(e.Files, ", "))
}

// Is makes errors.Is(err, ErrConflict) true.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// WrapError wraps an error with additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapErrorf is WrapError with a format string.
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// CodeOf maps an error to its ErrorCode. A nil error has no code.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrRejected):
		return CodeRejected
	case errors.Is(err, ErrBusy):
		return CodeBusy
	case errors.Is(err, ErrDirty):
		return CodeDirty
	case errors.Is(err, ErrIO):
		return CodeIO
	case errors.Is(err, ErrVCS):
		return CodeVCS
	default:
		return CodeUnknown
	}
}

// ConflictFiles returns the files of a ConflictError in err's chain.
func ConflictFiles(err error) []string {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Files
	}
	return nil
}
