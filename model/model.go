package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/coagent/core"
)

// ErrNoResponse is returned by Collect when a model closed its stream
// without emitting any content.
var ErrNoResponse = errors.New("model returned no response")

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Options tunes a single generation. Zero values leave the provider default.
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Request captures the normalized model input produced by agents and workflows.
type Request struct {
	Instructions string           `json:"instructions"` // System prompt
	Contents     []core.Content   `json:"contents"`     // Conversation converted to provider messages
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
	Options      Options          `json:"options,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model. Tool calls are
// carried as core.FunctionCallPart entries in Content.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"` // Indicates if this is a partial response
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Text returns the concatenated text of the response content.
func (r Response) Text() string { return r.Content.Text() }

// ToolCalls returns the function calls requested by the model.
func (r Response) ToolCalls() []core.FunctionCall { return r.Content.FunctionCalls() }

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by agents & workflows to drive generation.
//
// Generate returns a response channel and an error channel. Implementations
// emit zero or more partial responses followed by one final response, then
// close both channels. At most one error is sent.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Collect drains the channels returned by Generate and returns the final
// response. When a provider only emitted partial chunks, their text is
// merged into a synthesized final response.
func Collect(ctx context.Context, respCh <-chan Response, errCh <-chan error) (Response, error) {
	var (
		final    Response
		hasFinal bool
		partial  strings.Builder
	)

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if r.Partial {
				partial.WriteString(r.Text())
				continue
			}
			final, hasFinal = r, true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}

	if hasFinal {
		return final, nil
	}
	if partial.Len() > 0 {
		return Response{
			Content:      core.NewTextContent(core.RoleAssistant, partial.String()),
			FinishReason: "stop",
		}, nil
	}
	return Response{}, ErrNoResponse
}

// mockTurn is one scripted reply of a MockModel.
type mockTurn struct {
	resp Response
	err  error
}

// MockModel is a lightweight in‑memory Model useful for tests & examples.
//
// Scripted turns (AddTurn, AddToolCall, AddError) are consumed in order, one
// per Generate call. Once the script is exhausted the model answers with the
// canned response registered for the last user text, or echoes it.
type MockModel struct {
	info Info

	mu        sync.Mutex
	responses map[string]string
	script    []mockTurn
	requests  []Request
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// AddTurn appends a scripted response.
func (m *MockModel) AddTurn(resp Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockTurn{resp: resp})
}

// AddText appends a scripted final text response.
func (m *MockModel) AddText(text string) {
	m.AddTurn(Response{
		Content:      core.NewTextContent(core.RoleAssistant, text),
		FinishReason: "stop",
	})
}

// AddToolCall appends a scripted turn requesting a single tool call.
func (m *MockModel) AddToolCall(name, args string) {
	m.AddTurn(Response{
		Content: core.Content{
			Role: core.RoleAssistant,
			Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        core.NewID(),
				Name:      name,
				Arguments: args,
			}}},
		},
		FinishReason: "tool_calls",
	})
}

// AddError appends a scripted turn that fails with err.
func (m *MockModel) AddError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, mockTurn{err: err})
}

// Requests returns a copy of the requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Generate implements Model; emits optional streaming char chunks then final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	turn, scripted := m.next(req)

	go func() {
		defer close(respCh)
		defer close(errCh)

		if scripted && turn.err != nil {
			errCh <- turn.err
			return
		}

		full := turn.resp
		if !scripted {
			if len(req.Contents) == 0 {
				errCh <- fmt.Errorf("no contents provided")
				return
			}
			full = m.echo(req.Contents[len(req.Contents)-1].Text())
		}

		if req.Stream && len(full.ToolCalls()) == 0 {
			for _, r := range full.Text() {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Content: core.NewTextContent(core.RoleAssistant, string(r)),
				}:
				}
			}
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- full:
		}
	}()
	return respCh, errCh
}

func (m *MockModel) next(req Request) (mockTurn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.script) == 0 {
		return mockTurn{}, false
	}
	turn := m.script[0]
	m.script = m.script[1:]
	return turn, true
}

func (m *MockModel) echo(input string) Response {
	m.mu.Lock()
	full := m.responses[input]
	m.mu.Unlock()
	if full == "" {
		full = fmt.Sprintf("Mock response to: %s", input)
	}
	return Response{
		Content:      core.NewTextContent(core.RoleAssistant, full),
		FinishReason: "stop",
	}
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
