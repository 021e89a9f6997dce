package testutil

import (
	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/model"
)

// ResponseBuilder provides a fluent helper for constructing model responses in tests.
// Example:
//
//	resp := NewResponseBuilder().Text("checking").ToolCall("calculator", `{"expression":"1+1"}`).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type ResponseBuilder struct {
	id           string
	partial      bool
	textParts    []string
	funcCalls    []core.FunctionCall
	finishReason string
	usage        *model.TokenUsage
}

// NewResponseBuilder creates a builder for a final assistant response.
func NewResponseBuilder() *ResponseBuilder { return &ResponseBuilder{} }

// ID sets the provider response id (chainable).
func (b *ResponseBuilder) ID(id string) *ResponseBuilder { b.id = id; return b }

// Partial marks the response as a streaming chunk (chainable).
func (b *ResponseBuilder) Partial() *ResponseBuilder { b.partial = true; return b }

// Text appends a text part (chainable).
func (b *ResponseBuilder) Text(t string) *ResponseBuilder {
	b.textParts = append(b.textParts, t)
	return b
}

// ToolCall appends a function call part with a generated id (chainable).
func (b *ResponseBuilder) ToolCall(name, args string) *ResponseBuilder {
	return b.ToolCallWithID(core.NewID(), name, args)
}

// ToolCallWithID appends a function call part with a fixed id (chainable).
func (b *ResponseBuilder) ToolCallWithID(id, name, args string) *ResponseBuilder {
	b.funcCalls = append(b.funcCalls, core.FunctionCall{ID: id, Name: name, Arguments: args})
	return b
}

// FinishReason overrides the derived finish reason (chainable).
func (b *ResponseBuilder) FinishReason(r string) *ResponseBuilder { b.finishReason = r; return b }

// Usage attaches token usage (chainable).
func (b *ResponseBuilder) Usage(prompt, completion int) *ResponseBuilder {
	b.usage = &model.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
	return b
}

// Build constructs the model.Response value. Without an explicit finish
// reason, responses carrying tool calls finish with "tool_calls" and all
// others with "stop"; partial chunks have none.
func (b *ResponseBuilder) Build() model.Response {
	parts := make([]core.Part, 0, len(b.textParts)+len(b.funcCalls))
	for _, t := range b.textParts {
		parts = append(parts, core.TextPart{Text: t})
	}
	for _, fc := range b.funcCalls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: fc})
	}

	reason := b.finishReason
	if reason == "" && !b.partial {
		reason = "stop"
		if len(b.funcCalls) > 0 {
			reason = "tool_calls"
		}
	}

	return model.Response{
		ID:           b.id,
		Partial:      b.partial,
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: reason,
		Usage:        b.usage,
	}
}

// ScriptedModel returns a MockModel that replays turns in order.
func ScriptedModel(turns ...model.Response) *model.MockModel {
	m := model.NewMockModel("scripted", "mock")
	for _, t := range turns {
		m.AddTurn(t)
	}
	return m
}
