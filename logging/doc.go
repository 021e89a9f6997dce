// Package logging defines the Logger interface injected into every coagent
// component, plus its implementations:
//
//   - StructuredLogger, a log/slog logger whose level can change at runtime
//   - NoOpLogger, the fallback when no logger is configured (see OrNoOp)
//   - Recorder, a capturing sink for tests
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	actx := agent.NewContext(m, func(o *agent.ContextOptions) { o.Logger = logger })
//
// Nothing holds a process-wide logger.
package logging
