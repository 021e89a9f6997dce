// Package tool implements the function / tool calling subsystem that lets agents
// invoke structured capabilities (APIs, computations, side‑effects) with schema
// validated arguments, consistent error handling and metadata for LLM guidance.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/internal/util"
	"github.com/hupe1980/coagent/model"
)

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
)

// ErrToolNotFound is matched (errors.Is) by lookups of unregistered tools.
var ErrToolNotFound = errors.New("tool not found")

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tools are registered with agents to enable function calling, allowing
// agents to perform actions beyond text generation such as API calls,
// calculations or any other programmatic operations.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Honor ctx cancellation for long running work
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description is provided to the LLM to help it decide when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool synchronously with decoded arguments.
	Call(ctx context.Context, args map[string]any) (Result, error)
}

// AsyncTool is implemented by tools whose work is natively asynchronous.
// Invoke prefers CallAsync over Call when available.
type AsyncTool interface {
	Tool
	CallAsync(ctx context.Context, args map[string]any) *async.Task[Result]
}

// Result is the outcome of a tool call. Content is the text handed back to
// the model; Data optionally keeps the structured value.
type Result struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
	Data    any    `json:"data,omitempty"`
}

// NewResult wraps v into a successful Result. Strings are used verbatim;
// other values are rendered as JSON.
func NewResult(v any) Result {
	return Result{Success: true, Content: render(v), Data: v}
}

func render(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// Invoke returns a Task for calling t with args. Synchronous tools are
// wrapped lazily, so the call happens when the Task is driven.
func Invoke(ctx context.Context, t Tool, args map[string]any) *async.Task[Result] {
	if t == nil {
		return async.Failed[Result](&ToolError{Message: "nil tool", Code: CodeNotFound, cause: ErrToolNotFound})
	}
	if at, ok := t.(AsyncTool); ok {
		return at.CallAsync(ctx, args)
	}
	return async.NewTask(func(ctx context.Context) (Result, error) {
		return t.Call(ctx, args)
	})
}

// Definition converts a tool into the declaration sent to models.
func Definition(t Tool) model.ToolDefinition {
	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool lookup or execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details

	cause error
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *ToolError) Unwrap() error { return e.cause }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

func notFound(name string) *ToolError {
	return &ToolError{
		Tool:    name,
		Message: "tool is not registered",
		Code:    CodeNotFound,
		cause:   ErrToolNotFound,
	}
}
