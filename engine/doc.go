// Package engine implements the invocation layer for coagent.
//
// The Engine keeps a registry of named core.Agent values and runs each
// invocation as an async Task on a supervised executor:
//
//   - Invoke returns an invocation id and a Task resolving to the Result
//   - InvokeSync blocks until the Result is available
//   - StopInvocation cancels one invocation by id
//   - Shutdown cancels everything, stops all agents and drains the executor
//
// Config.MaxConcurrentInvocations bounds concurrent invocations. When the
// limit is reached Invoke fails with ErrTooManyInvocations, or waits for a
// free slot when Config.BlockOnLimit is set.
//
// Callbacks observe the lifecycle of every invocation. A before_agent
// callback returning an error aborts the invocation; errors from after_agent
// and on_error callbacks are logged.
package engine
