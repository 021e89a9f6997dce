package core

import (
	"context"

	"github.com/hupe1980/coagent/async"
)

// Agent defines the interface shared by actor agents and workflows.
//
// Run accepts a task and returns a Task handle that resolves with the final
// Result. Implementations decide where the work happens (a dedicated worker
// goroutine, an executor or inline when the handle is awaited) but must:
//   - Resolve the returned Task exactly once
//   - Respect ctx cancellation at their suspension points
//   - Keep serving later runs after a failed one, until Stop is called
type Agent interface {
	Name() string
	Description() string
	Run(ctx context.Context, input string) *async.Task[Result]
	Stop()
}

// AgentInfo carries identifying details about an agent used in logs and results.
// Name is the external identifier; Type categorizes implementation (e.g. "actor", "chain").
type AgentInfo struct{ Name, Type string }
