// Package core provides the foundational domain types and interfaces shared by
// coagent's agents, workflows, tools and models:
//
//   - Agent (anything that turns a task into an asynchronous Result)
//   - Content / Part (role based conversation segments incl. function calls)
//   - Step and Result (progress records and terminal outcomes)
//   - State (agent lifecycle)
//   - Memory (typed key/value facts, conversation and search)
//   - IterationLimiter (bounded loops)
//
// The package intentionally keeps implementation concerns (the actor worker,
// providers, stores) out of scope, exposing small interfaces to enable custom
// backends and extensions.
package core
