package core

import (
	"context"

	"github.com/hupe1980/coagent/async"
)

// Engine coordinates agent execution.
//
// A concrete implementation is responsible for:
//   - Registering available agents (by name) via Register
//   - Starting invocations that resolve asynchronously (Invoke)
//   - Synchronous convenience execution (InvokeSync) for non-async call sites
//
// Implementations SHOULD propagate context cancellation to the agent and make
// every invocation individually stoppable by its id.
type Engine interface {
	// Register makes an agent available for later invocation by name.
	Register(a Agent)

	// Invoke starts an agent invocation and returns its id together with a
	// Task resolving to the agent's Result.
	Invoke(ctx context.Context, agentName, input string) (string, *async.Task[Result], error)

	// InvokeSync executes an agent to completion, blocking the caller.
	InvokeSync(ctx context.Context, agentName, input string) (string, Result, error)

	// StopInvocation cancels a running invocation.
	StopInvocation(invocationID string) error
}
