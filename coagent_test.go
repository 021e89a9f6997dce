package coagent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/coagent/agent"
	"github.com/hupe1980/coagent/engine"
	"github.com/hupe1980/coagent/model"
	"github.com/hupe1980/coagent/tool"
	"github.com/hupe1980/coagent/workflow"
)

func TestCoagent_InvokeActorAndWorkflow(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.AddToolCall("calculator", `{"expression":"6*7"}`)
	m.AddText("The answer is 42")

	actx := agent.NewContext(m, func(o *agent.ContextOptions) {
		o.Tools = []tool.Tool{tool.NewCalculatorTool()}
	})

	c := New(func(o *Options) { o.EngineConfig = engine.Config{MaxConcurrentInvocations: 2} })
	defer func() { _ = c.Shutdown() }()

	c.RegisterAgent(agent.NewActorAgent("assistant", actx))
	c.RegisterAgent(workflow.NewChain("shout", actx, []workflow.Step{{PromptTemplate: "{{input}}"}}))
	assert.Equal(t, []string{"assistant", "shout"}, c.Agents())

	id, task, err := c.Invoke(context.Background(), "assistant", "What is 6*7?")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	res, err := task.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "The answer is 42", res.Answer)
	require.NotEmpty(t, res.Steps)
	assert.Equal(t, "42", res.Steps[0].Result)

	_, res, err = c.InvokeSync(context.Background(), "shout", "hey")
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: hey", res.Answer)

	assert.ErrorIs(t, c.StopInvocation("missing"), engine.ErrInvocationNotFound)
	assert.NotNil(t, c.Engine())
}
