// Package coagent provides a high-level façade over the engine for composing
// LLM-driven agents. Most applications interact with this package by:
//  1. Creating a Coagent via New()
//  2. Registering one or more agents (actor agents, workflows, custom)
//  3. Invoking agents asynchronously (Invoke) or synchronously (InvokeSync)
//
// The façade delegates orchestration to engine.Engine while keeping setup and
// usage ergonomics concise.
package coagent

import (
	"context"

	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/engine"
	"github.com/hupe1980/coagent/logging"
)

// Options configures the Coagent instance.
type Options struct {
	// EngineConfig bounds concurrent invocations.
	EngineConfig engine.Config

	// Executor runs invocations; the engine creates one when nil.
	Executor *async.Executor

	// Callbacks observe every invocation.
	Callbacks []engine.Callback

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Coagent is the high-level façade aggregating the underlying engine.
type Coagent struct {
	opts   Options
	engine *engine.Engine
}

// New creates a new Coagent instance with optional overrides.
func New(optFns ...func(o *Options)) *Coagent {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	e := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Executor = opts.Executor
		o.Callbacks = opts.Callbacks
		o.Logger = opts.Logger
	})

	return &Coagent{opts: opts, engine: e}
}

// RegisterAgent adds (or replaces) an agent in the engine registry.
func (c *Coagent) RegisterAgent(a core.Agent) { c.engine.Register(a) }

// Agents returns the names of all registered agents.
func (c *Coagent) Agents() []string { return c.engine.Agents() }

// Invoke starts an agent invocation and returns its id with a Task resolving
// to the agent's Result.
func (c *Coagent) Invoke(ctx context.Context, agentName, input string) (string, *async.Task[core.Result], error) {
	return c.engine.Invoke(ctx, agentName, input)
}

// InvokeSync runs an agent to completion and returns its Result.
func (c *Coagent) InvokeSync(ctx context.Context, agentName, input string) (string, core.Result, error) {
	return c.engine.InvokeSync(ctx, agentName, input)
}

// StopInvocation cancels a running invocation.
func (c *Coagent) StopInvocation(invocationID string) error {
	return c.engine.StopInvocation(invocationID)
}

// Shutdown cancels running invocations, stops all agents and waits for
// outstanding work.
func (c *Coagent) Shutdown() error { return c.engine.Shutdown() }

// Engine exposes the underlying engine.
func (c *Coagent) Engine() *engine.Engine { return c.engine }
