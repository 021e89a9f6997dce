package async

import (
	"context"
	"sync/atomic"
)

// Promise is a single-assignment cell. The Task it exposes resolves when the
// Promise is resolved or rejected; awaiting that Task never runs a body of its
// own.
type Promise[T any] struct {
	task    *Task[T]
	settled atomic.Bool
}

// NewPromise returns an unresolved Promise.
func NewPromise[T any]() *Promise[T] {
	t := &Task[T]{done: make(chan struct{})}
	t.state.Store(int32(StateRunning))
	return &Promise[T]{task: t}
}

// Task returns the Task completed by this Promise.
func (p *Promise[T]) Task() *Task[T] {
	if p == nil {
		return nil
	}
	return p.task
}

// Resolve completes the Promise with v. Only the first Resolve or Reject
// succeeds; later calls return ErrAlreadyResolved.
func (p *Promise[T]) Resolve(v T) error {
	return p.settle(v, nil)
}

// Reject completes the Promise with err.
func (p *Promise[T]) Reject(err error) error {
	var zero T
	return p.settle(zero, err)
}

// Settled reports whether the Promise has been resolved or rejected.
func (p *Promise[T]) Settled() bool {
	return p != nil && p.settled.Load()
}

// Await is shorthand for p.Task().Await(ctx).
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	return p.Task().Await(ctx)
}

func (p *Promise[T]) settle(v T, err error) error {
	if p == nil || p.task == nil {
		return ErrInvalidTask
	}
	if !p.settled.CompareAndSwap(false, true) {
		return ErrAlreadyResolved
	}
	p.task.complete(v, err)
	return nil
}
