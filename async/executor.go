package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/coagent/logging"
)

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// MaxConcurrent bounds the number of work items running at once. Add
	// blocks while the limit is reached. Zero means unlimited.
	MaxConcurrent int

	// Logger receives one error line per failed work item.
	Logger logging.Logger
}

// Executor runs background work that the caller does not join individually.
// Unlike a detached goroutine, every item is tracked: failures and panics are
// logged and collected, Wait joins all outstanding work and Shutdown cancels
// the context handed to each item.
type Executor struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
	logger logging.Logger

	// gmu orders group.Go calls in Add before the group.Wait in Shutdown.
	gmu    sync.RWMutex
	closed atomic.Bool

	mu   sync.Mutex
	errs []error
}

// NewExecutor returns an Executor whose work runs under a context derived
// from ctx.
func NewExecutor(ctx context.Context, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if ctx == nil {
		ctx = context.Background()
	}

	ctx, cancel := context.WithCancel(ctx)

	e := &Executor{
		ctx:    ctx,
		cancel: cancel,
		logger: logging.OrNoOp(opts.Logger),
	}

	if opts.MaxConcurrent > 0 {
		e.group.SetLimit(opts.MaxConcurrent)
	}

	return e
}

// Add schedules fn. A failing or panicking fn does not affect other work.
func (e *Executor) Add(fn func(ctx context.Context) error) error {
	e.gmu.RLock()
	defer e.gmu.RUnlock()

	if e.closed.Load() {
		return ErrExecutorClosed
	}

	e.group.Go(func() error {
		if err := e.safeRun(fn); err != nil {
			e.logger.Error("executor.work.failed", "error", err.Error())
			e.record(err)
		}
		// Collected above; the group itself never fails.
		return nil
	})

	return nil
}

// Wait blocks until all scheduled work has finished and returns the joined
// errors of every failed item so far.
func (e *Executor) Wait() error {
	_ = e.group.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()

	return errors.Join(e.errs...)
}

// Shutdown rejects new work, cancels the context of running work and waits
// for it to finish.
func (e *Executor) Shutdown() error {
	// Cancel first so an Add blocked on MaxConcurrent gets a free slot.
	e.cancel()

	e.gmu.Lock()
	e.closed.Store(true)
	e.gmu.Unlock()

	return e.Wait()
}

// Context returns the context handed to scheduled work.
func (e *Executor) Context() context.Context { return e.ctx }

func (e *Executor) safeRun(fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()
	return fn(e.ctx)
}

func (e *Executor) record(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

// Spawn schedules fn on the executor and returns a Task for its result. The
// body always runs on the executor, never on a goroutine awaiting the Task.
func Spawn[T any](e *Executor, fn func(ctx context.Context) (T, error)) *Task[T] {
	if e == nil || fn == nil {
		return Failed[T](ErrInvalidTask)
	}

	t := NewTask(fn)
	t.state.Store(int32(StateRunning))

	if err := e.Add(func(ctx context.Context) error {
		t.run(ctx)
		return t.err
	}); err != nil {
		var zero T
		t.complete(zero, err)
	}

	return t
}
