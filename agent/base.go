package agent

import (
	"fmt"
	"sync"

	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/logging"
	"github.com/hupe1980/coagent/tool"
)

// Hooks are optional observers of an agent. They run synchronously on the
// goroutine processing the task, so they must not block for long.
type Hooks struct {
	OnStep            func(description string, result any)
	OnStatus          func(status string)
	OnToolUsed        func(name string, params map[string]any, result tool.Result)
	OnResponse        func(answer string)
	OnError           func(err error)
	OnFeedbackRequest func(message string, context map[string]any)
	OnStateChange     func(from, to core.State)
}

// BaseAgent bundles identity, lifecycle state and hook plumbing shared by
// concrete agents. Embed it and supply Run and Stop to satisfy core.Agent.
// All exported methods are goroutine-safe.
type BaseAgent struct {
	name        string
	description string
	logger      logging.Logger

	mu    sync.RWMutex
	state core.State
	hooks Hooks
}

// NewBaseAgent constructs a BaseAgent in state READY.
func NewBaseAgent(name, description string, logger logging.Logger) BaseAgent {
	if description == "" {
		description = fmt.Sprintf("Agent %s", name)
	}
	return BaseAgent{
		name:        name,
		description: description,
		logger:      logging.OrNoOp(logger),
		state:       core.StateReady,
	}
}

// Name returns the human-readable name for this agent.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a description of this agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// Logger returns the agent logger.
func (b *BaseAgent) Logger() logging.Logger { return b.logger }

// State returns the current lifecycle state.
func (b *BaseAgent) State() core.State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// SetState transitions the agent to s and notifies OnStateChange. STOPPED
// is final: later transitions are ignored.
func (b *BaseAgent) SetState(s core.State) {
	b.mu.Lock()
	from := b.state
	if from == s || from == core.StateStopped {
		b.mu.Unlock()
		return
	}
	b.state = s
	hook := b.hooks.OnStateChange
	b.mu.Unlock()

	b.logger.Debug("agent.state.changed", "agent", b.name, "from", from.String(), "to", s.String())
	if hook != nil {
		hook(from, s)
	}
}

// SetHooks replaces all hooks at once.
func (b *BaseAgent) SetHooks(h Hooks) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = h
}

// OnStep sets the hook receiving each completed step.
func (b *BaseAgent) OnStep(fn func(description string, result any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks.OnStep = fn
}

// OnStatus sets the hook receiving human-readable status updates.
func (b *BaseAgent) OnStatus(fn func(status string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks.OnStatus = fn
}

// OnToolUsed sets the hook receiving every executed tool call.
func (b *BaseAgent) OnToolUsed(fn func(name string, params map[string]any, result tool.Result)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks.OnToolUsed = fn
}

// OnResponse sets the hook receiving each final answer.
func (b *BaseAgent) OnResponse(fn func(answer string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks.OnResponse = fn
}

// OnError sets the hook receiving task failures.
func (b *BaseAgent) OnError(fn func(err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks.OnError = fn
}

// OnFeedbackRequest sets the hook notified when the agent waits for feedback.
func (b *BaseAgent) OnFeedbackRequest(fn func(message string, context map[string]any)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks.OnFeedbackRequest = fn
}

// OnStateChange sets the hook receiving lifecycle transitions.
func (b *BaseAgent) OnStateChange(fn func(from, to core.State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks.OnStateChange = fn
}

func (b *BaseAgent) snapshot() Hooks {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.hooks
}

// EmitStep reports a step to OnStep.
func (b *BaseAgent) EmitStep(step core.Step) {
	b.logger.Debug("agent.step", "agent", b.name, "step", step.Description, "status", string(step.Status))
	if fn := b.snapshot().OnStep; fn != nil {
		fn(step.Description, step.Result)
	}
}

// LogStatus logs status and reports it to OnStatus.
func (b *BaseAgent) LogStatus(status string) {
	b.logger.Info("agent.status", "agent", b.name, "status", status)
	if fn := b.snapshot().OnStatus; fn != nil {
		fn(status)
	}
}

// EmitToolUsed reports a tool execution to OnToolUsed.
func (b *BaseAgent) EmitToolUsed(name string, params map[string]any, result tool.Result) {
	if fn := b.snapshot().OnToolUsed; fn != nil {
		fn(name, params, result)
	}
}

// EmitResponse reports a final answer to OnResponse.
func (b *BaseAgent) EmitResponse(answer string) {
	if fn := b.snapshot().OnResponse; fn != nil {
		fn(answer)
	}
}

// EmitError reports a failure to OnError.
func (b *BaseAgent) EmitError(err error) {
	if fn := b.snapshot().OnError; fn != nil {
		fn(err)
	}
}

func (b *BaseAgent) emitFeedbackRequest(message string, context map[string]any) {
	if fn := b.snapshot().OnFeedbackRequest; fn != nil {
		fn(message, context)
	}
}
