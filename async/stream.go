package async

import (
	"context"
	"iter"
	"sync"
)

// Item is the outcome of a single pull from a Stream. OK is false once the
// stream is exhausted.
type Item[T any] struct {
	Value T
	OK    bool
}

// Stream is a lazy, forward-only, non-restartable sequence of values produced
// by a body that suspends at every yield. The body runs only while a consumer
// pulls; it resumes exactly when the next value is requested.
//
// Once the body returns, fails or the Stream is closed, the Stream is terminal
// and every further pull reports "no value" without re-entering the body.
type Stream[T any] struct {
	ctx  context.Context
	body func(ctx context.Context, yield func(T) bool) error

	mu       sync.Mutex
	pull     func() (T, error, bool)
	stop     func()
	terminal bool
	err      error
}

// NewStream returns a Stream driven by body. The body receives ctx and must
// stop producing when yield returns false.
func NewStream[T any](ctx context.Context, body func(ctx context.Context, yield func(T) bool) error) *Stream[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Stream[T]{ctx: ctx, body: body}
}

// FromSlice returns a Stream over a fixed set of values.
func FromSlice[T any](values []T) *Stream[T] {
	return NewStream(context.Background(), func(_ context.Context, yield func(T) bool) error {
		for _, v := range values {
			if !yield(v) {
				return nil
			}
		}
		return nil
	})
}

// FromChannel adapts a producer goroutine that reports values on one channel
// and a terminal error on another. values must be closed by the producer when
// it finishes; errs may be closed or left open once values is closed.
func FromChannel[T any](ctx context.Context, values <-chan T, errs <-chan error) *Stream[T] {
	return NewStream(ctx, func(ctx context.Context, yield func(T) bool) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case err, ok := <-errs:
				if ok && err != nil {
					return err
				}
				if !ok {
					errs = nil
				}
			case v, ok := <-values:
				if !ok {
					return drainErr(errs)
				}
				if !yield(v) {
					return nil
				}
			}
		}
	})
}

func drainErr(errs <-chan error) error {
	if errs == nil {
		return nil
	}
	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

// Next pulls the next value. It returns ok=false once the stream is exhausted.
// An error raised by the body is returned exactly once; the stream is
// terminal afterwards.
func (s *Stream[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if s == nil || s.body == nil {
		return zero, false, ErrInvalidTask
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal {
		return zero, false, nil
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			s.closeLocked(err)
			return zero, false, err
		}
	}
	if s.pull == nil {
		s.pull, s.stop = iter.Pull2(s.seq())
	}

	v, err, ok := s.pull()
	if !ok {
		s.closeLocked(nil)
		return zero, false, nil
	}
	if err != nil {
		s.closeLocked(err)
		return zero, false, err
	}

	return v, true, nil
}

// NextTask returns the next pull as a lazy Task, resolving to an Item whose
// OK field is false at the end of the stream.
func (s *Stream[T]) NextTask() *Task[Item[T]] {
	return NewTask(func(ctx context.Context) (Item[T], error) {
		v, ok, err := s.Next(ctx)
		return Item[T]{Value: v, OK: ok}, err
	})
}

// Seq returns the remaining values as an iterator for use with range. Pulling
// stops at the first error, which is then available from Err.
func (s *Stream[T]) Seq(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, ok, err := s.Next(ctx)
			if err != nil || !ok {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Err returns the error that terminated the stream, if any.
func (s *Stream[T]) Err() error {
	if s == nil {
		return ErrInvalidTask
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done reports whether the stream is terminal.
func (s *Stream[T]) Done() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

// Close releases the body and makes the stream terminal. It is idempotent.
func (s *Stream[T]) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.terminal {
		s.closeLocked(nil)
	}
}

func (s *Stream[T]) closeLocked(err error) {
	s.terminal = true
	if err != nil && s.err == nil {
		s.err = err
	}
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	s.pull = nil
}

func (s *Stream[T]) seq() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		err := s.runBody(func(v T) bool { return yield(v, nil) })
		if err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

func (s *Stream[T]) runBody(yield func(T) bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()
	return s.body(s.ctx, yield)
}

// CollectAll drains the stream synchronously and returns every value in yield
// order. It is meant for tests and batch callers; interactive consumers should
// call Next in a loop and render each value as it arrives.
func CollectAll[T any](ctx context.Context, s *Stream[T]) ([]T, error) {
	var out []T
	for {
		v, ok, err := s.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}
