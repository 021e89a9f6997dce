package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/internal/testutil"
	"github.com/hupe1980/coagent/tool"
)

type mockTool struct {
	mock.Mock
}

func (m *mockTool) Name() string { return m.Called().String(0) }

func (m *mockTool) Description() string { return m.Called().String(0) }

func (m *mockTool) Parameters() map[string]any {
	return m.Called().Get(0).(map[string]any)
}

func (m *mockTool) Call(ctx context.Context, args map[string]any) (tool.Result, error) {
	ret := m.Called(ctx, args)
	return ret.Get(0).(tool.Result), ret.Error(1)
}

func newMockTool(name string) *mockTool {
	mt := &mockTool{}
	mt.On("Name").Return(name).Maybe()
	mt.On("Description").Return("Looks things up").Maybe()
	mt.On("Parameters").Return(map[string]any{"type": "object", "properties": map[string]any{}}).Maybe()
	return mt
}

func TestActorAgent_SeveralToolCallsInOneTurn(t *testing.T) {
	lookup := newMockTool("lookup")
	lookup.On("Call", mock.Anything, map[string]any{"topic": "Y"}).
		Return(tool.Result{Success: true, Content: "Y found"}, nil).Once()

	m := testutil.ScriptedModel(
		testutil.NewResponseBuilder().
			ToolCall("lookup", `{"topic":"Y"}`).
			ToolCall("calculator", `{"expression":"2*21"}`).
			Build(),
		testutil.NewResponseBuilder().Text("Y and 42").Build(),
	)
	a := newActor(t, m, []tool.Tool{lookup, tool.NewCalculatorTool()})

	var used []string
	a.OnToolUsed(func(name string, _ map[string]any, _ tool.Result) { used = append(used, name) })

	res, err := async.BlockingWait(a.Run(context.Background(), "combine"))
	require.NoError(t, err)
	lookup.AssertExpectations(t)

	assert.Equal(t, "Y and 42", res.Answer)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, []string{"lookup", "calculator"}, used)
	require.Len(t, res.Steps, 3)
	assert.Equal(t, "Y found", res.Steps[0].Result)
	assert.Equal(t, "42", res.Steps[1].Result)
	assert.Equal(t, core.StepCompleted, res.Steps[2].Status)

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	frs := reqs[1].Contents[len(reqs[1].Contents)-1].FunctionResponses()
	require.Len(t, frs, 1)
	assert.Equal(t, "42", frs[0].Response)
}

func TestActorAgent_ToolErrorIsReportedToModel(t *testing.T) {
	flaky := newMockTool("flaky")
	flaky.On("Call", mock.Anything, mock.Anything).
		Return(tool.Result{}, assert.AnError).Once()

	m := testutil.ScriptedModel(
		testutil.NewResponseBuilder().ToolCall("flaky", `{}`).Build(),
		testutil.NewResponseBuilder().Text("recovered").Build(),
	)
	a := newActor(t, m, []tool.Tool{flaky})

	res, err := async.BlockingWait(a.Run(context.Background(), "try"))
	require.NoError(t, err)
	flaky.AssertExpectations(t)

	assert.Equal(t, "recovered", res.Answer)
	assert.Equal(t, core.StepFailed, res.Steps[0].Status)

	last := m.Requests()[1].Contents
	frs := last[len(last)-1].FunctionResponses()
	require.Len(t, frs, 1)
	assert.NotEmpty(t, frs[0].Error)
}
