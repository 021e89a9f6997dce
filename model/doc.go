// Package model defines the provider‑agnostic abstractions for talking to
// language models from coagent agents.
//
// Providers (see the openai and anthropic subpackages) implement Model and
// stream Response chunks over a channel pair. Callers that only need the
// final answer use Collect; agents expose the same channels as an
// async.Stream for incremental rendering.
//
// MockModel serves tests and examples: it can echo prompts, return canned
// answers per prompt or replay a script of turns including tool calls and
// failures, and it records every Request it receives.
package model
