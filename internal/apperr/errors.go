// Package apperr defines the error taxonomy shared by storage, session and API layers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrPermission  = errors.New("permission denied")
	ErrCancelled   = errors.New("cancelled")
	ErrTooLarge    = errors.New("file too large")
	ErrOutsideRoot = errors.New("reference outside selected directory")
	ErrNotFile     = errors.New("reference is not a file")
	ErrUnsupported = errors.New("unsupported storage capability")
	ErrNoFolder    = errors.New("no folder open")
	ErrNotEditing  = errors.New("not in editing mode")
	ErrInvalid     = errors.New("invalid input")
)

// ValidationError rejects an operation before any state is mutated.
type ValidationError struct {
	Reason error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Reason.Error()
	}
	return e.Reason.Error() + ": " + e.Detail
}

func (e *ValidationError) Unwrap() error { return e.Reason }

// Invalid returns a ValidationError for reason with a formatted detail.
func Invalid(reason error, format string, args ...any) error {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// StorageError reports a failed read, write or listing.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsValidation reports whether err rejects input rather than failing I/O.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsCancelled reports whether the user dismissed a dialog.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// Message returns the one-line text shown to the user for err.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTooLarge):
		return "File is too large to open (over 10MB)"
	case errors.Is(err, ErrOutsideRoot):
		return "Reference outside selected directory"
	case errors.Is(err, ErrNotFile):
		return "Reference is not a file"
	case errors.Is(err, ErrNoFolder):
		return "Open a folder first"
	case errors.Is(err, ErrUnsupported):
		return "This storage backend does not support that file"
	case errors.Is(err, ErrNotEditing):
		return "Switch to edit mode first"
	case errors.Is(err, ErrPermission):
		return "Permission denied - cannot access this file"
	case errors.Is(err, ErrNotFound):
		return "File not found - it may have been moved or deleted"
	case IsValidation(err):
		return err.Error()
	default:
		return "Could not complete the operation: " + err.Error()
	}
}
