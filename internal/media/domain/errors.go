package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrConflict          = errors.New("conflict")
	ErrInvalidArgument   = errors.New("invalid argument")

	// ErrStoreUnavailable marks failures of the job record store. The worker
	// does not ack the delivery, so the queue redelivers once the store is back.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrTransportUnavailable marks failures of the queue, lock, event bus or
	// artifact transport.
	ErrTransportUnavailable = errors.New("transport unavailable")
)

// ProcessingError is a terminal codec or tooling failure for a single job.
type ProcessingError struct {
	Op  string
	Err error
}

func NewProcessingError(op string, err error) *ProcessingError {
	return &ProcessingError{Op: op, Err: err}
}

func (e *ProcessingError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// IsProcessingError reports whether err carries a *ProcessingError.
func IsProcessingError(err error) bool {
	var pe *ProcessingError
	return errors.As(err, &pe)
}
