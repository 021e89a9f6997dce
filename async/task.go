package async

import (
	"context"
	"sync"
	"sync/atomic"
)

// State describes where a Task is in its lifecycle.
type State int32

const (
	// StatePending means the Task has not been driven yet.
	StatePending State = iota
	// StateRunning means the body is executing.
	StateRunning
	// StateSuspended means the body is parked awaiting a nested Task.
	StateSuspended
	// StateReady means the Task resolved with a value.
	StateReady
	// StateFailed means the Task resolved with an error.
	StateFailed
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Task is a one-shot asynchronous computation producing a T or an error.
//
// A Task resolves exactly once. The stored outcome is immutable afterwards and
// can be read any number of times. At most one continuation may be attached
// with Then. All methods are safe for concurrent use.
type Task[T any] struct {
	fn    func(ctx context.Context) (T, error)
	state atomic.Int32
	done  chan struct{}

	value T
	err   error

	mu      sync.Mutex
	cont    func(T, error)
	hasCont bool
}

// NewTask returns a lazy Task wrapping fn. The body does not run until the
// Task is awaited, started or given a continuation.
func NewTask[T any](fn func(ctx context.Context) (T, error)) *Task[T] {
	if fn == nil {
		return Failed[T](ErrInvalidTask)
	}
	return &Task[T]{fn: fn, done: make(chan struct{})}
}

// Go returns a Task whose body is already running on a new goroutine.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Task[T] {
	return NewTask(fn).Start(ctx)
}

// Resolved returns a Task already resolved with v.
func Resolved[T any](v T) *Task[T] {
	t := &Task[T]{done: make(chan struct{})}
	t.state.Store(int32(StateRunning))
	t.complete(v, nil)
	return t
}

// Failed returns a Task already resolved with err.
func Failed[T any](err error) *Task[T] {
	var zero T
	t := &Task[T]{done: make(chan struct{})}
	t.state.Store(int32(StateRunning))
	t.complete(zero, err)
	return t
}

func (t *Task[T]) valid() bool { return t != nil && t.done != nil }

// State reports the current lifecycle state.
func (t *Task[T]) State() State {
	if !t.valid() {
		return StateFailed
	}
	return State(t.state.Load())
}

// Ready reports whether the Task has resolved, so awaiting it will not block.
func (t *Task[T]) Ready() bool {
	if !t.valid() {
		return false
	}
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed once the Task has resolved.
func (t *Task[T]) Done() <-chan struct{} {
	if !t.valid() {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return t.done
}

// Err returns the stored error without blocking. It is nil while the Task is
// unresolved.
func (t *Task[T]) Err() error {
	if !t.valid() {
		return ErrInvalidTask
	}
	if !t.Ready() {
		return nil
	}
	return t.err
}

// Start drives the Task on a new goroutine if nobody is driving it yet and
// returns the Task for chaining.
func (t *Task[T]) Start(ctx context.Context) *Task[T] {
	if !t.valid() {
		return t
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if t.state.CompareAndSwap(int32(StatePending), int32(StateRunning)) {
		go t.run(ctx)
	}
	return t
}

// Then registers fn as the single continuation of the Task and starts driving
// it in the background. fn runs once, after the outcome is stored and Done is
// closed. If the Task already resolved, fn runs immediately on the caller.
func (t *Task[T]) Then(fn func(T, error)) error {
	if !t.valid() || fn == nil {
		return ErrInvalidTask
	}

	t.mu.Lock()
	if t.hasCont {
		t.mu.Unlock()
		return ErrContinuationRegistered
	}
	t.hasCont = true
	select {
	case <-t.done:
		t.mu.Unlock()
		fn(t.value, t.err)
		return nil
	default:
	}
	t.cont = fn
	t.mu.Unlock()

	t.Start(context.Background())

	return nil
}

// Await returns the outcome of the Task. A pending Task is driven inline on
// the calling goroutine with ctx; otherwise Await blocks until the Task
// resolves or ctx is done. When called from inside another Task's body the
// outer Task reports StateSuspended until Await returns.
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	var zero T
	if !t.valid() {
		return zero, ErrInvalidTask
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if t.Ready() {
		return t.value, t.err
	}

	if f := frameFrom(ctx); f != nil && f != frame(t) {
		f.suspend()
		defer f.resume()
	}

	if t.state.CompareAndSwap(int32(StatePending), int32(StateRunning)) {
		t.run(ctx)
		return t.value, t.err
	}

	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Get blocks until the Task resolves, driving it on the calling goroutine if
// needed. It must not be called from a continuation of the same Task.
func (t *Task[T]) Get() (T, error) {
	return t.Await(context.Background())
}

func (t *Task[T]) run(ctx context.Context) {
	var (
		v   T
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = newPanicError(r)
			}
		}()
		v, err = t.fn(withFrame(ctx, t))
	}()
	t.complete(v, err)
}

// complete stores the outcome, closes done and then runs the continuation.
// The write of value and err happens before the close, so every goroutine
// woken through done observes them.
func (t *Task[T]) complete(v T, err error) {
	t.value, t.err = v, err
	if err != nil {
		t.state.Store(int32(StateFailed))
	} else {
		t.state.Store(int32(StateReady))
	}

	t.mu.Lock()
	close(t.done)
	cont := t.cont
	t.cont = nil
	t.mu.Unlock()

	if cont != nil {
		cont(v, err)
	}
}

func (t *Task[T]) suspend() {
	t.state.CompareAndSwap(int32(StateRunning), int32(StateSuspended))
}

func (t *Task[T]) resume() {
	t.state.CompareAndSwap(int32(StateSuspended), int32(StateRunning))
}

// frame is the part of a running Task visible to nested awaits.
type frame interface {
	suspend()
	resume()
}

type frameKey struct{}

func withFrame(ctx context.Context, f frame) context.Context {
	return context.WithValue(ctx, frameKey{}, f)
}

func frameFrom(ctx context.Context) frame {
	f, _ := ctx.Value(frameKey{}).(frame)
	return f
}

// Map returns a lazy Task applying fn to the value of t once it resolves.
// Errors from t are passed through without calling fn.
func Map[T, U any](t *Task[T], fn func(T) (U, error)) *Task[U] {
	return NewTask(func(ctx context.Context) (U, error) {
		v, err := t.Await(ctx)
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(v)
	})
}

// All returns a lazy Task that starts every task concurrently and collects
// their values in argument order. The first error in argument order wins.
func All[T any](tasks ...*Task[T]) *Task[[]T] {
	return NewTask(func(ctx context.Context) ([]T, error) {
		for _, t := range tasks {
			t.Start(ctx)
		}
		out := make([]T, len(tasks))
		for i, t := range tasks {
			v, err := t.Await(ctx)
			if err != nil {
				return out[:i], err
			}
			out[i] = v
		}
		return out, nil
	})
}
