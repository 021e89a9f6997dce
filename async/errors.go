package async

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	// ErrInvalidTask is returned when operating on a nil or zero-value Task,
	// Stream or Promise.
	ErrInvalidTask = errors.New("async: invalid task")

	// ErrContinuationRegistered is returned by Then when a continuation was
	// already registered on the Task.
	ErrContinuationRegistered = errors.New("async: continuation already registered")

	// ErrAlreadyResolved is returned when a Promise is completed twice.
	ErrAlreadyResolved = errors.New("async: promise already resolved")

	// ErrExecutorClosed is returned when work is added after Shutdown.
	ErrExecutorClosed = errors.New("async: executor closed")
)

// PanicError carries a value recovered from a panicking Task, Stream or
// Executor body together with the goroutine stack at the time of recovery.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("async: panic recovered: %v", p.Value)
}

func newPanicError(r any) *PanicError {
	return &PanicError{Value: r, Stack: debug.Stack()}
}
