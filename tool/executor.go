package tool

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/internal/util"
	"github.com/hupe1980/coagent/logging"
)

// ExecutorOptions configure an Executor.
type ExecutorOptions struct {
	MaxParallel   int  // 0 or <1 => no explicit limit (len(calls))
	PreserveOrder bool // if true, outcomes are returned in call order
	Logger        logging.Logger
}

// Outcome is the response to exactly one function call.
type Outcome struct {
	Call     core.FunctionCall
	Result   Result
	Err      error
	Duration time.Duration
}

// Content renders the outcome as a tool-role message for the conversation.
func (o Outcome) Content() core.Content {
	var response any = o.Result.Content
	if o.Result.Content == "" && o.Result.Data != nil {
		response = o.Result.Data
	}
	return core.NewFunctionResponseContent(o.Call, response, o.Err)
}

// Executor runs function calls requested by a model against a Registry.
//
// Guarantees:
//   - exactly one Outcome per incoming call, also when ctx is cancelled
//   - panics in tools are recovered into *async.PanicError
//   - unknown tools and malformed arguments yield *ToolError outcomes
type Executor struct {
	registry *Registry
	opts     ExecutorOptions
	logger   logging.Logger
}

// NewExecutor constructs an executor over registry.
func NewExecutor(registry *Registry, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Executor{registry: registry, opts: opts, logger: logging.OrNoOp(opts.Logger)}
}

// Registry returns the tools the executor dispatches to.
func (e *Executor) Registry() *Registry { return e.registry }

// ExecuteCall returns a lazy Task that looks up, validates and runs one call.
func (e *Executor) ExecuteCall(ctx context.Context, call core.FunctionCall) *async.Task[Result] {
	impl, err := e.registry.Get(call.Name)
	if err != nil {
		return async.Failed[Result](err)
	}

	args, err := util.ParseArguments(call.Arguments)
	if err != nil {
		return async.Failed[Result](&ToolError{
			Tool:    call.Name,
			Message: err.Error(),
			Code:    CodeValidation,
			cause:   err,
		})
	}

	return Invoke(ctx, impl, args)
}

// Execute runs calls, in parallel when there is more than one, and returns
// one Outcome per call. Without PreserveOrder outcomes are in completion order.
func (e *Executor) Execute(ctx context.Context, calls []core.FunctionCall) []Outcome {
	n := len(calls)
	if n == 0 {
		return nil
	}

	// Fast path: single call, execute inline.
	if n == 1 {
		return []Outcome{e.run(ctx, calls[0])}
	}

	maxPar := e.opts.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	var (
		mu       sync.Mutex
		ordered  = make([]Outcome, n)
		finished = make([]Outcome, 0, n)
		g        errgroup.Group
	)
	g.SetLimit(maxPar)

	batchStart := time.Now()
	for i, call := range calls {
		g.Go(func() error {
			o := e.run(ctx, call)
			mu.Lock()
			ordered[i] = o
			finished = append(finished, o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	e.logger.Debug(
		"tool.batch.complete",
		"count", n,
		"parallelism", maxPar,
		"preserve_order", e.opts.PreserveOrder,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	if e.opts.PreserveOrder {
		return ordered
	}
	return finished
}

func (e *Executor) run(ctx context.Context, call core.FunctionCall) Outcome {
	if err := ctx.Err(); err != nil {
		return Outcome{Call: call, Err: err}
	}

	start := time.Now()
	res, err := e.ExecuteCall(ctx, call).Await(ctx)
	dur := time.Since(start)

	var pe *async.PanicError
	if errors.As(err, &pe) {
		e.logger.Error("tool.function.panic", "function", call.Name, "recover", pe.Value)
	}

	e.logger.Info(
		"tool.function.executed",
		"function", call.Name,
		"function_call_id", call.ID,
		"duration_ms", dur.Milliseconds(),
		"error", err != nil,
	)

	return Outcome{Call: call, Result: res, Err: err, Duration: dur}
}
