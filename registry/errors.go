package registry

import (
	"errors"
	"fmt"
)

// ReadError reports a registry resource that exists but could not be read
// or decoded.
type ReadError struct {
	Contract string
	Path     string
	err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to load existing service definition file %s: %v", e.Path, e.err)
}

func (e *ReadError) Unwrap() error {
	return e.err
}

// WriteError reports a registry resource that could not be written.
type WriteError struct {
	Contract string
	Path     string
	err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write service definition file %s: %v", e.Path, e.err)
}

func (e *WriteError) Unwrap() error {
	return e.err
}

// IsReadError returns true if err is or wraps a ReadError.
func IsReadError(err error) bool {
	var re *ReadError
	return errors.As(err, &re)
}

// IsWriteError returns true if err is or wraps a WriteError.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}
