// Package core wires the engram engine together: configuration, the engine
// context object, and the domain errors shared across packages.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrNotFound indicates that a requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrPersistence indicates that a durable snapshot write failed.
	// Mutations that hit this error roll back their in-memory change
	// before surfacing it.
	ErrPersistence = errors.New("snapshot persistence failed")

	// ErrEmbeddingFailed indicates that embedding generation failed.
	// Semantic indexing treats this as "indexing skipped", never as a
	// failure of the originating write.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// EngineError wraps errors with operation context.
//
// It records which operation failed so messages stay useful once the
// error has crossed a few package boundaries.
//
// Error() returns: "engram: <Op>: <Err>"
type EngineError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engram: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError creates a new EngineError wrapping the given error.
//
// If err is nil, returns nil, allowing unconditional wrapping at return
// sites:
//
//	return NewEngineError("Remember", err)
func NewEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{
		Op:  op,
		Err: err,
	}
}
