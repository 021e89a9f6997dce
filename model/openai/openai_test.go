package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/model"
)

func toolTurn() []core.Content {
	call := core.FunctionCall{ID: "call_1", Name: "calculator", Arguments: `{"expression":"2+2"}`}
	return []core.Content{
		core.NewTextContent(core.RoleUser, "what is 2+2?"),
		{Role: core.RoleAssistant, Parts: []core.Part{core.FunctionCallPart{FunctionCall: call}}},
		core.NewFunctionResponseContent(call, map[string]any{"value": 4}, nil),
	}
}

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages(model.Request{
		Instructions: "be brief",
		Contents:     toolTurn(),
	})

	require.Len(t, msgs, 4)
	require.NotNil(t, msgs[0].OfSystem)
	require.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "calculator", msgs[2].OfAssistant.ToolCalls[0].Function.Name)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "call_1", msgs[3].OfTool.ToolCallID)
}

func TestSerializeResponse(t *testing.T) {
	assert.Equal(t, "plain", serializeResponse(core.FunctionResponse{Response: "plain"}))
	assert.Equal(t, `{"value":4}`, serializeResponse(core.FunctionResponse{Response: map[string]any{"value": 4}}))
	assert.Equal(t, "error: boom", serializeResponse(core.FunctionResponse{Error: "boom"}))
}

func TestBuildParams_RequestOptionsOverride(t *testing.T) {
	m := &Model{opts: defaultOptions()}

	params := m.buildParams(model.Request{
		Options: model.Options{Temperature: 0.1, MaxTokens: 50},
		Tools: []model.ToolDefinition{{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        "calculator",
				Description: "evaluates arithmetic",
				Parameters:  map[string]any{"type": "object"},
			},
		}},
	}, nil)

	assert.Equal(t, 0.1, params.Temperature.Value)
	assert.Equal(t, int64(50), params.MaxCompletionTokens.Value)
	require.Len(t, params.Tools, 1)
	assert.Equal(t, "calculator", params.Tools[0].Function.Name)
}

func TestFinalParts_OrderedByIndex(t *testing.T) {
	parts := finalParts("thinking", map[int64]*pendingCall{
		1: {id: "b", name: "second"},
		0: {id: "a", name: "first"},
	})
	require.Len(t, parts, 3)
	assert.Equal(t, core.TextPart{Text: "thinking"}, parts[0])
	assert.Equal(t, "first", parts[1].(core.FunctionCallPart).FunctionCall.Name)
	assert.Equal(t, "second", parts[2].(core.FunctionCallPart).FunctionCall.Name)
}

func TestInfo(t *testing.T) {
	m := NewModel(func(o *Options) {
		o.Model = "gpt-4o"
		o.APIKey = "test"
	})
	assert.Equal(t, model.Info{Name: "gpt-4o", Provider: "openai", SupportsTools: true}, m.Info())
}
