package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseBuilder(t *testing.T) {
	resp := NewResponseBuilder().Text("checking").ToolCallWithID("c1", "calculator", `{}`).Usage(3, 4).Build()
	assert.Equal(t, "checking", resp.Text())
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, "c1", resp.ToolCalls()[0].ID)
	assert.Equal(t, 7, resp.Usage.TotalTokens)

	chunk := NewResponseBuilder().Partial().Text("ch").Build()
	assert.True(t, chunk.Partial)
	assert.Empty(t, chunk.FinishReason)

	assert.Equal(t, "stop", NewResponseBuilder().Text("done").Build().FinishReason)
}
