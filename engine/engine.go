package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/logging"
)

var (
	// ErrAgentNotFound is returned when invoking an unregistered agent.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrInvocationNotFound is returned when stopping an unknown invocation.
	ErrInvocationNotFound = errors.New("invocation not found")
	// ErrTooManyInvocations is returned when the concurrency limit is reached
	// and BlockOnLimit is false.
	ErrTooManyInvocations = errors.New("too many concurrent invocations")
	// ErrEngineClosed is returned after Shutdown.
	ErrEngineClosed = errors.New("engine closed")
)

var _ core.Engine = (*Engine)(nil)

// Config defines tuning parameters for the Engine's operational behavior.
type Config struct {
	// MaxConcurrentInvocations limits the number of agent invocations that
	// can execute simultaneously. Set to 0 for unlimited.
	MaxConcurrentInvocations int

	// BlockOnLimit makes Invoke wait for a free slot instead of failing with
	// ErrTooManyInvocations.
	BlockOnLimit bool
}

// DefaultConfig provides default configuration values.
var DefaultConfig = Config{
	MaxConcurrentInvocations: 10,
}

// Options configures an Engine instance using the functional options pattern.
type Options struct {
	// Config contains operational parameters for the engine behavior.
	Config Config

	// Executor runs invocations. The engine creates and owns one when nil.
	Executor *async.Executor

	// Callbacks are registered before the engine is returned.
	Callbacks []Callback

	// Logger defaults to a NoOp logger if nil.
	Logger logging.Logger
}

// Engine orchestrates agent execution: it keeps a registry of named agents,
// runs each invocation as a Task on a supervised executor, bounds the number
// of concurrent invocations and makes every invocation individually
// cancellable.
//
//	e := engine.New()
//	e.Register(assistant)
//
//	id, task, err := e.Invoke(ctx, "assistant", "What is 6*7?")
//	if err != nil {
//	    return err
//	}
//	res, err := task.Await(ctx)
type Engine struct {
	config    Config
	logger    logging.Logger
	exec      *async.Executor
	ownsExec  bool
	callbacks callbackSet
	sem       chan struct{}
	closed    atomic.Bool

	mu     sync.RWMutex
	agents map[string]core.Agent

	invocationsMu     sync.Mutex
	activeInvocations map[string]context.CancelFunc
}

// New creates a new Engine with sensible defaults.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	e := &Engine{
		config:            opts.Config,
		logger:            logging.OrNoOp(opts.Logger),
		exec:              opts.Executor,
		agents:            make(map[string]core.Agent),
		activeInvocations: make(map[string]context.CancelFunc),
	}

	if e.exec == nil {
		e.exec = async.NewExecutor(context.Background(), func(o *async.ExecutorOptions) {
			o.Logger = e.logger
		})
		e.ownsExec = true
	}

	if n := opts.Config.MaxConcurrentInvocations; n > 0 {
		e.sem = make(chan struct{}, n)
	}

	for _, cb := range opts.Callbacks {
		e.callbacks.add(cb)
	}

	return e
}

// Register adds an agent to the registry under its name, replacing any agent
// registered under the same name.
func (e *Engine) Register(a core.Agent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agents[a.Name()] = a
	e.logger.Debug("engine.agent.registered", "agent", a.Name())
}

// GetAgent retrieves a registered agent by name.
func (e *Engine) GetAgent(name string) (core.Agent, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.agents[name]
	return a, ok
}

// Agents returns the sorted names of all registered agents.
func (e *Engine) Agents() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.agents))
	for n := range e.agents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RegisterCallback adds a lifecycle callback.
func (e *Engine) RegisterCallback(cb Callback) { e.callbacks.add(cb) }

// Invoke starts agentName on input and returns the invocation id with a Task
// resolving to the agent's Result. The invocation runs on the engine's
// executor whether or not the Task is awaited.
func (e *Engine) Invoke(ctx context.Context, agentName, input string) (string, *async.Task[core.Result], error) {
	if e.closed.Load() {
		return "", nil, ErrEngineClosed
	}

	a, ok := e.GetAgent(agentName)
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentName)
	}

	if err := e.acquire(ctx); err != nil {
		return "", nil, err
	}

	invocationID := uuid.NewString()
	invocationCtx, cancel := context.WithCancel(ctx)

	e.invocationsMu.Lock()
	e.activeInvocations[invocationID] = cancel
	e.invocationsMu.Unlock()

	cleanup := func() {
		cancel()
		e.invocationsMu.Lock()
		delete(e.activeInvocations, invocationID)
		e.invocationsMu.Unlock()
		e.release()
	}

	promise := async.NewPromise[core.Result]()
	if err := e.exec.Add(func(execCtx context.Context) error {
		defer cleanup()

		runCtx, stop := merge(invocationCtx, execCtx)
		defer stop()

		res, err := e.run(runCtx, invocationID, a, input)
		if err != nil {
			_ = promise.Reject(err)
		} else {
			_ = promise.Resolve(res)
		}
		// Failures are reported through the Task and the on_error callbacks.
		return nil
	}); err != nil {
		cleanup()
		return "", nil, err
	}

	e.logger.Debug("engine.invocation.started", "invocation_id", invocationID, "agent", agentName)

	return invocationID, promise.Task(), nil
}

// InvokeSync executes an agent to completion, blocking the caller.
func (e *Engine) InvokeSync(ctx context.Context, agentName, input string) (string, core.Result, error) {
	invocationID, task, err := e.Invoke(ctx, agentName, input)
	if err != nil {
		return "", core.Result{}, err
	}
	res, err := async.BlockingWaitContext(ctx, task)
	return invocationID, res, err
}

// StopInvocation cancels a running invocation.
func (e *Engine) StopInvocation(invocationID string) error {
	e.invocationsMu.Lock()
	cancel, exists := e.activeInvocations[invocationID]
	e.invocationsMu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrInvocationNotFound, invocationID)
	}

	cancel()
	e.logger.Info("engine.invocation.stopped", "invocation_id", invocationID)
	return nil
}

// ActiveInvocations returns the number of invocations still running.
func (e *Engine) ActiveInvocations() int {
	e.invocationsMu.Lock()
	defer e.invocationsMu.Unlock()
	return len(e.activeInvocations)
}

// Shutdown rejects new invocations, cancels running ones, stops every
// registered agent and waits for the executor to drain.
func (e *Engine) Shutdown() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.invocationsMu.Lock()
	for _, cancel := range e.activeInvocations {
		cancel()
	}
	e.invocationsMu.Unlock()

	e.mu.RLock()
	for _, a := range e.agents {
		a.Stop()
	}
	e.mu.RUnlock()

	e.logger.Info("engine.shutdown")

	if e.ownsExec {
		return e.exec.Shutdown()
	}
	return nil
}

func (e *Engine) run(ctx context.Context, invocationID string, a core.Agent, input string) (core.Result, error) {
	cbCtx := &CallbackContext{
		InvocationID: invocationID,
		AgentName:    a.Name(),
		Input:        input,
		StartedAt:    time.Now(),
		Metadata:     map[string]any{},
	}

	if err := e.callbacks.run(ctx, CallbackBeforeAgent, cbCtx); err != nil {
		err = fmt.Errorf("before agent callback: %w", err)
		e.fail(ctx, cbCtx, err)
		return core.Result{}, err
	}

	res, err := a.Run(ctx, input).Await(ctx)
	if err != nil {
		err = fmt.Errorf("agent %s: %w", a.Name(), err)
		e.fail(ctx, cbCtx, err)
		return core.Result{}, err
	}

	cbCtx.Result = &res
	if err := e.callbacks.run(ctx, CallbackAfterAgent, cbCtx); err != nil {
		e.logger.Warn("engine.callback.failed", "type", string(CallbackAfterAgent), "invocation_id", invocationID, "error", err.Error())
	}

	e.logger.Info(
		"engine.invocation.completed",
		"invocation_id", invocationID,
		"agent", a.Name(),
		"duration_ms", cbCtx.Elapsed().Milliseconds(),
	)
	return res, nil
}

func (e *Engine) fail(ctx context.Context, cbCtx *CallbackContext, err error) {
	e.logger.Error("engine.invocation.failed", "invocation_id", cbCtx.InvocationID, "agent", cbCtx.AgentName, "error", err.Error())

	cbCtx.Err = err
	if cbErr := e.callbacks.run(context.WithoutCancel(ctx), CallbackOnError, cbCtx); cbErr != nil {
		e.logger.Warn("engine.callback.failed", "type", string(CallbackOnError), "invocation_id", cbCtx.InvocationID, "error", cbErr.Error())
	}
}

func (e *Engine) acquire(ctx context.Context) error {
	if e.sem == nil {
		return nil
	}
	if e.config.BlockOnLimit {
		select {
		case e.sem <- struct{}{}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case e.sem <- struct{}{}:
		return nil
	default:
		return ErrTooManyInvocations
	}
}

func (e *Engine) release() {
	if e.sem != nil {
		<-e.sem
	}
}

func merge(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
