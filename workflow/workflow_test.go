package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/coagent/agent"
	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/model"
)

// funcCompleter answers prompts with a function and records them.
type funcCompleter struct {
	mu      sync.Mutex
	prompts []string
	fn      func(prompt string) (string, error)
}

func complete(fn func(prompt string) (string, error)) *funcCompleter {
	return &funcCompleter{fn: fn}
}

func (f *funcCompleter) Complete(_ context.Context, prompt string) *async.Task[model.Response] {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	out, err := f.fn(prompt)
	if err != nil {
		return async.Failed[model.Response](err)
	}
	return async.Resolved(model.Response{Content: core.NewTextContent(core.RoleAssistant, out)})
}

func (f *funcCompleter) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// stubAgent answers with a fixed prefix and records its inputs.
type stubAgent struct {
	name   string
	mu     sync.Mutex
	inputs []string
}

func (s *stubAgent) Name() string        { return s.name }
func (s *stubAgent) Description() string { return "stub " + s.name }
func (s *stubAgent) Stop()               {}

func (s *stubAgent) Run(_ context.Context, input string) *async.Task[core.Result] {
	s.mu.Lock()
	s.inputs = append(s.inputs, input)
	s.mu.Unlock()
	return async.Resolved(core.Result{Answer: s.name + " did " + input})
}

func TestWorkflowsImplementAgent(t *testing.T) {
	llm := complete(func(p string) (string, error) { return p, nil })
	for _, a := range []core.Agent{
		NewChain("c", llm, nil),
		NewParallel("p", llm, nil),
		NewRouter("r", llm, nil),
		NewEvaluator("e", llm),
		NewOrchestrator("o", llm, nil),
	} {
		assert.NotEmpty(t, a.Name())
		assert.Equal(t, "Agent "+a.Name(), a.Description())
	}
}

func TestWorkflow_StopRejectsRuns(t *testing.T) {
	c := NewChain("c", complete(func(p string) (string, error) { return p, nil }), []Step{{PromptTemplate: "{{input}}"}})
	c.Stop()

	_, err := c.Run(context.Background(), "x").Await(context.Background())
	assert.ErrorIs(t, err, agent.ErrAgentStopped)
	assert.Equal(t, core.StateStopped, c.State())
}

func TestWorkflow_RunsOnAgentContext(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.AddResponse("Topic: Go", "Go is a language")
	actx := agent.NewContext(m)

	c := NewChain("c", actx, []Step{
		{Name: "facts", PromptTemplate: "Topic: {{input}}"},
		{Name: "echo", PromptTemplate: "{{response}}!"},
	})

	res, err := async.BlockingWait(c.Run(context.Background(), "Go"))
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: Go is a language!", res.Answer)
	assert.Empty(t, actx.Messages(), "workflow completions are stateless")
}
