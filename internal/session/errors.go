package session

import "fmt"

// InitializationError indicates the source content could not be read.
type InitializationError struct {
	Path string
	Err  error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("cannot initialize session from %s: %v", e.Path, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// CorruptStateError indicates a snapshot that cannot be parsed or carries a
// schema version this build does not understand.
type CorruptStateError struct {
	Path string
	Err  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt state file %s: %v", e.Path, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }
