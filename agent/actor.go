package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/internal/util"
)

var (
	// ErrAgentStopped is returned for work submitted to, or still queued in,
	// a stopped agent.
	ErrAgentStopped = errors.New("agent stopped")
	// ErrQueueFull is returned when the inbox has no room left.
	ErrQueueFull = errors.New("agent queue full")
	// ErrMaxIterations fails a task that did not produce an answer in time.
	ErrMaxIterations = errors.New("max iterations reached")
	// ErrMaxConsecutiveErrors fails a task after too many errors in a row.
	ErrMaxConsecutiveErrors = errors.New("too many consecutive errors")
	// ErrFeedbackPending is returned when a feedback wait is already outstanding.
	ErrFeedbackPending = errors.New("feedback already pending")
)

var _ core.Agent = (*ActorAgent)(nil)

type request struct {
	id      string
	ctx     context.Context
	task    string
	promise *async.Promise[core.Result]
}

// ActorAgent processes tasks one at a time on a dedicated worker goroutine.
//
// Tasks are queued in a bounded FIFO inbox. For each task the worker renders
// the agent prompt, then alternates model turns and tool calls until the
// model answers. With HumanFeedback enabled every tool call is approved
// through WaitForFeedback first. A failed task is reported through the hooks
// and the worker moves on to the next one.
//
// Stop is cooperative: the task in flight runs to completion, queued tasks
// fail with ErrAgentStopped and the worker exits.
type ActorAgent struct {
	BaseAgent

	actx *Context
	opts ActorOptions
	exec *async.Executor
	own  bool

	inbox chan request

	qmu       sync.RWMutex // Held for writing while the stop flag flips
	stopFlag  atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
	done      chan struct{}

	feedback feedbackSlot
}

// NewActorAgent creates an actor using actx for model and tool access. The
// worker is started lazily by Start, Submit or Run.
func NewActorAgent(name string, actx *Context, optFns ...func(o *ActorOptions)) *ActorAgent {
	opts := defaultActorOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.AgentPrompt == "" {
		opts.AgentPrompt = DefaultAgentPrompt
	}
	if opts.MaxConsecutiveErrors <= 0 {
		opts.MaxConsecutiveErrors = 3
	}
	if opts.RunInterval <= 0 {
		opts.RunInterval = 100 * time.Millisecond
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Logger == nil {
		opts.Logger = actx.Logger()
	}

	a := &ActorAgent{
		BaseAgent: NewBaseAgent(name, opts.Description, opts.Logger),
		actx:      actx,
		opts:      opts,
		exec:      opts.Executor,
		inbox:     make(chan request, opts.QueueSize),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	if a.exec == nil {
		a.exec = async.NewExecutor(context.Background(), func(o *async.ExecutorOptions) {
			o.Logger = a.Logger()
		})
		a.own = true
	}
	a.SetHooks(opts.Hooks)

	return a
}

// Context returns the agent's model and tool context.
func (a *ActorAgent) Context() *Context { return a.actx }

// AgentPrompt returns the template used to frame each task.
func (a *ActorAgent) AgentPrompt() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.opts.AgentPrompt
}

// SetAgentPrompt replaces the template used to frame each task.
func (a *ActorAgent) SetAgentPrompt(p string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opts.AgentPrompt = p
}

// Start launches the worker goroutine. Calling it again is a no-op.
func (a *ActorAgent) Start() {
	a.startOnce.Do(func() {
		a.Logger().Debug("actor.started", "agent", a.Name())
		go a.loop()
	})
}

// Submit queues task without waiting for its result.
func (a *ActorAgent) Submit(task string) error {
	return a.enqueue(request{
		id:      core.NewID(),
		ctx:     context.Background(),
		task:    task,
		promise: async.NewPromise[core.Result](),
	})
}

// Run queues task and returns a Task resolved by the worker once the task
// has been processed.
func (a *ActorAgent) Run(ctx context.Context, task string) *async.Task[core.Result] {
	if ctx == nil {
		ctx = context.Background()
	}
	p := async.NewPromise[core.Result]()
	if err := a.enqueue(request{id: core.NewID(), ctx: ctx, task: task, promise: p}); err != nil {
		return async.Failed[core.Result](err)
	}
	return p.Task()
}

// RunAsync queues task and delivers its outcome to cb from the agent's
// executor.
func (a *ActorAgent) RunAsync(ctx context.Context, task string, cb func(core.Result, error)) error {
	t := a.Run(ctx, task)
	return a.exec.Add(func(execCtx context.Context) error {
		res, err := bind(ctx, t.Await).Await(execCtx)
		if cb != nil {
			cb(res, err)
		}
		return err
	})
}

func (a *ActorAgent) enqueue(req request) error {
	a.Start()

	a.qmu.RLock()
	defer a.qmu.RUnlock()

	if a.stopFlag.Load() {
		return ErrAgentStopped
	}

	select {
	case a.inbox <- req:
		a.Logger().Debug("actor.task.queued", "agent", a.Name(), "task_id", req.id, "queued", len(a.inbox))
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop sets the stop flag and wakes the worker. The task in flight completes;
// queued tasks and an outstanding feedback wait fail with ErrAgentStopped.
func (a *ActorAgent) Stop() {
	a.stopOnce.Do(func() {
		a.qmu.Lock()
		a.stopFlag.Store(true)
		a.qmu.Unlock()
		close(a.stopCh)

		// Never started: nothing else will drain the inbox.
		a.startOnce.Do(func() {
			a.drain()
			close(a.done)
		})

		a.feedback.close()

		a.SetState(core.StateStopped)
		a.LogStatus("stopped")
	})
}

// Done is closed once the worker goroutine has exited.
func (a *ActorAgent) Done() <-chan struct{} { return a.done }

// Wait blocks until the worker has exited after Stop and, when the agent owns
// its executor, until pending RunAsync callbacks have run.
func (a *ActorAgent) Wait(ctx context.Context) error {
	select {
	case <-a.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if !a.own {
		return nil
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.exec.Wait() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *ActorAgent) loop() {
	defer close(a.done)

	ticker := time.NewTicker(a.opts.RunInterval)
	defer ticker.Stop()

	for {
		if a.stopFlag.Load() {
			a.drain()
			a.Logger().Debug("actor.stopped", "agent", a.Name())
			return
		}

		select {
		case req := <-a.inbox:
			if a.stopFlag.Load() {
				_ = req.promise.Reject(ErrAgentStopped)
				continue
			}
			a.process(req)
		case <-a.stopCh:
		case <-ticker.C:
		}
	}
}

func (a *ActorAgent) drain() {
	for {
		select {
		case req := <-a.inbox:
			_ = req.promise.Reject(ErrAgentStopped)
		default:
			return
		}
	}
}

func (a *ActorAgent) process(req request) {
	if err := req.ctx.Err(); err != nil {
		_ = req.promise.Reject(err)
		return
	}

	start := time.Now()
	a.SetState(core.StateRunning)
	a.LogStatus("processing task " + req.id)

	result, err := async.NewTask(func(ctx context.Context) (core.Result, error) {
		return a.execute(ctx, req.task)
	}).Await(req.ctx)
	if err != nil {
		a.SetState(core.StateFailed)
		a.Logger().Error("actor.task.failed", "agent", a.Name(), "task_id", req.id, "error", err.Error())
		a.EmitError(err)
		a.LogStatus("failed: " + err.Error())
		_ = req.promise.Reject(err)
		return
	}

	a.SetState(core.StateCompleted)
	a.Logger().Info(
		"actor.task.completed",
		"agent", a.Name(),
		"task_id", req.id,
		"iterations", result.Iterations,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	a.EmitResponse(result.Answer)
	_ = req.promise.Resolve(result)
}

func (a *ActorAgent) execute(ctx context.Context, task string) (core.Result, error) {
	prompt, err := util.RenderTemplate(a.AgentPrompt(), map[string]any{
		"name":        a.Name(),
		"description": a.Description(),
		"tools":       toolList(a.actx),
		"task":        task,
	})
	if err != nil {
		return core.Result{}, fmt.Errorf("agent prompt: %w", err)
	}

	if !a.opts.KeepHistory {
		if err := a.actx.ResetConversation(); err != nil {
			return core.Result{}, err
		}
	}

	limiter := core.NewIterationLimiter(a.opts.MaxIterations)
	runner := &toolRunner{
		agent:   &a.BaseAgent,
		actx:    a.actx,
		event:   "actor",
		task:    task,
		review:  newReview(&a.BaseAgent, a.opts.HumanFeedback, a.opts.HumanInTheLoop, a.WaitForFeedback),
		maxErrs: a.opts.MaxConsecutiveErrors,
	}

	input := prompt
	for {
		if err := ctx.Err(); err != nil {
			return core.Result{}, err
		}
		if err := limiter.Increment(); err != nil {
			return core.Result{}, fmt.Errorf("%w: %w", ErrMaxIterations, err)
		}

		resp, err := a.actx.ChatWithTools(ctx, input).Await(ctx)
		input = ""
		if err != nil {
			if ctx.Err() != nil {
				return core.Result{}, ctx.Err()
			}
			runner.record(core.NewStep("model call").Fail(err))
			if ferr := runner.failed(err); ferr != nil {
				return core.Result{}, ferr
			}
			continue
		}
		runner.succeeded()

		calls := resp.ToolCalls()
		if len(calls) == 0 {
			answer := resp.Text()
			runner.record(core.NewStep("answer").Complete(answer))
			return core.Result{Answer: answer, Steps: runner.steps, Iterations: limiter.Count()}, nil
		}

		if err := runner.turn(ctx, calls); err != nil {
			return core.Result{}, err
		}
	}
}

// toolList describes the tools of actx for prompt templates.
func toolList(actx *Context) []map[string]any {
	defs := actx.Tools().Definitions()
	out := make([]map[string]any, 0, len(defs))
	for _, d := range defs {
		out = append(out, map[string]any{"name": d.Function.Name, "description": d.Function.Description})
	}
	return out
}

// WaitForFeedback returns a lazy Task that, once driven, parks the agent in
// WAITING, notifies OnFeedbackRequest and resolves with the next text passed
// to ProvideFeedback. The previous state is restored afterwards. Cancelling
// ctx or stopping the agent fails the wait.
func (a *ActorAgent) WaitForFeedback(ctx context.Context, message string, details map[string]any) *async.Task[string] {
	return bind(ctx, func(ctx context.Context) (string, error) {
		return a.feedback.wait(ctx, &a.BaseAgent, message, details)
	})
}

// ProvideFeedback hands text to the outstanding WaitForFeedback. Without one
// the text is dropped, a warning is logged and false is returned.
func (a *ActorAgent) ProvideFeedback(text string) bool {
	if !a.feedback.provide(text) {
		a.Logger().Warn("actor.feedback.dropped", "agent", a.Name())
		return false
	}

	a.Logger().Debug("actor.feedback.received", "agent", a.Name())
	return true
}
