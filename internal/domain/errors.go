package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for orders that do not exist or belong to another user.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidOrder is the sentinel every ValidationError unwraps to.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrPersistence is the sentinel every PersistenceError matches.
	ErrPersistence = errors.New("order store unavailable")
)

// ValidationError describes a rejected field of a create request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidOrder }

// PersistenceError wraps a failure of the backing store. The wrapped error is
// for logs only and must not reach clients.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("order store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
