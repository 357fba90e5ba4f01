package media

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the store, cache, reconciler, and archiver.
// Match them with errors.Is.
var (
	// ErrNotFound reports an identifier with no stored asset.
	ErrNotFound = errors.New("media not found")
	// ErrCorrupted reports a descriptor whose local payload is missing.
	ErrCorrupted = errors.New("media payload missing")
	// ErrIDMismatch reports a singleton identifier that does not match its page position.
	ErrIDMismatch = errors.New("media id does not match page position")
	// ErrArchiveInvalid reports a malformed or incomplete project archive.
	ErrArchiveInvalid = errors.New("project archive invalid")
	// ErrIO reports a failed read or write against durable storage.
	ErrIO = errors.New("media storage i/o failure")
)

// IOError wraps a storage failure with the operation and media id involved.
type IOError struct {
	Op  string
	ID  string
	Err error
}

// NewIOError wraps err unless it is nil.
func NewIOError(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, ID: id, Err: err}
}

func (e *IOError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is makes every IOError match ErrIO.
func (e *IOError) Is(target error) bool { return target == ErrIO }

// ErrorKind names the failure class of err for status output; unknown errors report "internal".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCorrupted):
		return "corrupted"
	case errors.Is(err, ErrIDMismatch):
		return "id_mismatch"
	case errors.Is(err, ErrArchiveInvalid):
		return "archive_invalid"
	case errors.Is(err, ErrIO):
		return "io_failure"
	default:
		return "internal"
	}
}
