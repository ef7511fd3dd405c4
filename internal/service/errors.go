package service

import (
	"errors"
	"fmt"
)

// ErrNotFound covers a missing import, file or bank account, including ones
// that exist but belong to another user.
var ErrNotFound = errors.New("not found")

// ErrConflict covers operations against an entity in the wrong state, such
// as attaching a file to an active import.
var ErrConflict = errors.New("conflict")

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
