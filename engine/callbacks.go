package engine

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/logging"
)

// CallbackType names a point in the invocation lifecycle.
type CallbackType string

const (
	// CallbackBeforeAgent runs before the agent starts; an error aborts the
	// invocation.
	CallbackBeforeAgent CallbackType = "before_agent"
	// CallbackAfterAgent runs after a successful run; errors are logged.
	CallbackAfterAgent CallbackType = "after_agent"
	// CallbackOnError runs after a failed run; errors are logged.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext describes the invocation a callback fires for. Callbacks
// of one invocation share it, so Metadata can carry values between them.
type CallbackContext struct {
	InvocationID string
	AgentName    string
	Input        string
	StartedAt    time.Time

	Result *core.Result // after_agent only
	Err    error        // on_error only

	Metadata map[string]any
}

// Elapsed is the time since the invocation started.
func (c *CallbackContext) Elapsed() time.Duration { return time.Since(c.StartedAt) }

// Callback observes one lifecycle point.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, cbCtx *CallbackContext) error
}

type funcCallback struct {
	typ CallbackType
	fn  func(ctx context.Context, cbCtx *CallbackContext) error
}

func (c funcCallback) Type() CallbackType { return c.typ }

func (c funcCallback) Execute(ctx context.Context, cbCtx *CallbackContext) error {
	return c.fn(ctx, cbCtx)
}

// NewFunctionCallback wraps fn as a Callback of type typ.
func NewFunctionCallback(typ CallbackType, fn func(ctx context.Context, cbCtx *CallbackContext) error) Callback {
	return funcCallback{typ: typ, fn: fn}
}

// NewLoggingCallback logs "engine.callback.<type>" with the invocation id,
// agent name and elapsed time, plus the error or iteration count.
func NewLoggingCallback(typ CallbackType, logger logging.Logger) Callback {
	logger = logging.OrNoOp(logger)
	return NewFunctionCallback(typ, func(_ context.Context, c *CallbackContext) error {
		args := []any{"invocation_id", c.InvocationID, "agent", c.AgentName}
		if !c.StartedAt.IsZero() {
			args = append(args, "elapsed", c.Elapsed())
		}
		switch {
		case c.Err != nil:
			args = append(args, "error", c.Err.Error())
		case c.Result != nil:
			args = append(args, "iterations", c.Result.Iterations)
		}
		logger.Info("engine.callback."+string(typ), args...)
		return nil
	})
}

// callbackSet runs callbacks per type in registration order.
type callbackSet struct {
	mu     sync.RWMutex
	byType map[CallbackType][]Callback
}

func (s *callbackSet) add(cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byType == nil {
		s.byType = make(map[CallbackType][]Callback)
	}
	s.byType[cb.Type()] = append(s.byType[cb.Type()], cb)
}

// run stops at the first error.
func (s *callbackSet) run(ctx context.Context, typ CallbackType, cbCtx *CallbackContext) error {
	s.mu.RLock()
	cbs := slices.Clone(s.byType[typ])
	s.mu.RUnlock()

	for _, cb := range cbs {
		if err := cb.Execute(ctx, cbCtx); err != nil {
			return err
		}
	}
	return nil
}
