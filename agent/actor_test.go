package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/logging"
	"github.com/hupe1980/coagent/model"
	"github.com/hupe1980/coagent/tool"
)

func newActor(t *testing.T, m model.Model, tools []tool.Tool, optFns ...func(o *ActorOptions)) *ActorAgent {
	t.Helper()
	actx := NewContext(m, func(o *ContextOptions) {
		o.Tools = tools
		o.Timeout = 5 * time.Second
	})
	a := NewActorAgent("tester", actx, optFns...)
	t.Cleanup(a.Stop)
	return a
}

func researchTool(calls *int, mu *sync.Mutex) tool.Tool {
	return tool.NewFunctionTool("research", "Looks up a topic", map[string]any{
		"type":       "object",
		"properties": map[string]any{"topic": map[string]any{"type": "string"}},
		"required":   []string{"topic"},
	}, func(_ context.Context, args map[string]any) (any, error) {
		if mu != nil {
			mu.Lock()
			*calls++
			mu.Unlock()
		}
		return args["topic"].(string) + " is a topic", nil
	})
}

func TestActorAgent_ProcessesInFIFOOrder(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	a := newActor(t, m, nil, func(o *ActorOptions) { o.AgentPrompt = "{{task}}" })

	var (
		mu      sync.Mutex
		answers []string
	)
	a.OnResponse(func(answer string) {
		mu.Lock()
		defer mu.Unlock()
		answers = append(answers, answer)
	})

	require.NoError(t, a.Submit("a"))
	require.NoError(t, a.Submit("b"))
	res, err := async.BlockingWait(a.Run(context.Background(), "c"))
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: c", res.Answer)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Mock response to: a", "Mock response to: b", "Mock response to: c"}, answers)
}

func TestActorAgent_EndToEndWithTool(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.AddToolCall("research", `{"topic":"X"}`)
	m.AddText("X summary")

	var (
		calls int
		cmu   sync.Mutex
	)
	a := newActor(t, m, []tool.Tool{researchTool(&calls, &cmu)})

	var (
		mu          sync.Mutex
		transitions []string
		stepResults []any
		toolParams  map[string]any
	)
	a.OnStateChange(func(from, to core.State) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, from.String()+"->"+to.String())
	})
	a.OnStep(func(description string, result any) {
		mu.Lock()
		defer mu.Unlock()
		stepResults = append(stepResults, result)
	})
	a.OnToolUsed(func(name string, params map[string]any, result tool.Result) {
		mu.Lock()
		defer mu.Unlock()
		toolParams = params
	})

	require.Equal(t, core.StateReady, a.State())

	res, err := a.Run(context.Background(), "topic=X").Await(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "X summary", res.Answer)
	assert.Equal(t, 2, res.Iterations)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "tool research", res.Steps[0].Description)
	assert.Equal(t, "X summary", res.Map()["answer"])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"READY->RUNNING", "RUNNING->COMPLETED"}, transitions)
	assert.Contains(t, stepResults, "X is a topic")
	assert.Equal(t, "X", toolParams["topic"])
	assert.Equal(t, 1, calls)

	// The rendered agent prompt mentions the tool and the task.
	first := m.Requests()[0]
	prompt := first.Contents[0].Text()
	assert.Contains(t, prompt, "- research: Looks up a topic")
	assert.Contains(t, prompt, "Task: topic=X")
	require.Len(t, first.Tools, 1)

	// The tool response is fed back before the final turn.
	second := m.Requests()[1]
	last := second.Contents[len(second.Contents)-1]
	assert.Equal(t, core.RoleTool, last.Role)
	assert.Equal(t, "X is a topic", last.FunctionResponses()[0].Response)
}

func TestActorAgent_StopExitsWithinRunInterval(t *testing.T) {
	a := newActor(t, model.NewMockModel("mock", "mock"), nil, func(o *ActorOptions) {
		o.RunInterval = 50 * time.Millisecond
	})
	a.Start()

	start := time.Now()
	a.Stop()

	select {
	case <-a.Done():
	case <-time.After(50*time.Millisecond + 500*time.Millisecond):
		t.Fatal("worker did not exit after Stop")
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, core.StateStopped, a.State())

	assert.ErrorIs(t, a.Submit("late"), ErrAgentStopped)
	_, err := a.Run(context.Background(), "late").Await(context.Background())
	assert.ErrorIs(t, err, ErrAgentStopped)

	// Idempotent.
	a.Stop()
	require.NoError(t, a.Wait(context.Background()))
}

func TestActorAgent_StopWithoutStart(t *testing.T) {
	a := newActor(t, model.NewMockModel("mock", "mock"), nil)
	a.Stop()

	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed")
	}
}

func TestActorAgent_QueueFullAndDrainOnStop(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	blocking := tool.NewFunctionTool("block", "Blocks until released", nil, func(ctx context.Context, _ map[string]any) (any, error) {
		started <- struct{}{}
		<-release
		return "released", nil
	})

	m := model.NewMockModel("mock", "mock")
	m.AddToolCall("block", `{}`)
	m.AddText("first done")

	a := newActor(t, m, []tool.Tool{blocking}, func(o *ActorOptions) { o.QueueSize = 1 })

	first := a.Run(context.Background(), "first")
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("tool never started")
	}

	second := a.Run(context.Background(), "second")
	assert.ErrorIs(t, a.Submit("third"), ErrQueueFull)

	a.Stop()
	close(release)

	res, err := first.Await(context.Background())
	require.NoError(t, err, "in-flight task completes after Stop")
	assert.Equal(t, "first done", res.Answer)

	_, err = second.Await(context.Background())
	assert.ErrorIs(t, err, ErrAgentStopped)
}

func TestActorAgent_FailureDoesNotStopWorker(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	boom := errors.New("boom")
	m.AddError(boom)
	m.AddError(boom)

	rec := logging.NewRecorder()
	a := newActor(t, m, nil, func(o *ActorOptions) {
		o.MaxConsecutiveErrors = 2
		o.AgentPrompt = "{{task}}"
		o.Logger = rec
	})

	var (
		mu       sync.Mutex
		errs     []error
		statuses []string
	)
	a.OnError(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	})
	a.OnStatus(func(s string) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, s)
	})

	_, err := a.Run(context.Background(), "fails").Await(context.Background())
	require.ErrorIs(t, err, ErrMaxConsecutiveErrors)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, core.StateFailed, a.State())

	res, err := a.Run(context.Background(), "works").Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: works", res.Answer)
	assert.Equal(t, core.StateCompleted, a.State())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errs, 1)
	assert.Equal(t, 1, rec.Count("actor.task.failed"))

	var failed bool
	for _, s := range statuses {
		if strings.HasPrefix(s, "failed: ") {
			failed = true
		}
	}
	assert.True(t, failed, "expected failed status, got %v", statuses)
}

func TestActorAgent_MaxIterations(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	for i := 0; i < 3; i++ {
		m.AddToolCall("research", `{"topic":"loop"}`)
	}

	a := newActor(t, m, []tool.Tool{researchTool(nil, nil)}, func(o *ActorOptions) { o.MaxIterations = 2 })

	_, err := a.Run(context.Background(), "loop forever").Await(context.Background())
	require.ErrorIs(t, err, ErrMaxIterations)
	assert.ErrorIs(t, err, core.ErrLimitExceeded)
}

func TestActorAgent_FeedbackRejectsToolCall(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.AddToolCall("research", `{"topic":"X"}`)
	m.AddText("skipped research")

	var (
		calls int
		cmu   sync.Mutex
	)
	a := newActor(t, m, []tool.Tool{researchTool(&calls, &cmu)}, func(o *ActorOptions) { o.HumanFeedback = true })

	var waitingSeen bool
	a.OnFeedbackRequest(func(message string, details map[string]any) {
		waitingSeen = a.State() == core.StateWaiting
		assert.Equal(t, "research", details["tool"])
		assert.True(t, a.ProvideFeedback("no thanks"))
	})

	res, err := a.Run(context.Background(), "topic=X").Await(context.Background())
	require.NoError(t, err)

	assert.True(t, waitingSeen)
	assert.Equal(t, "skipped research", res.Answer)
	assert.Equal(t, 0, calls)
	require.NotEmpty(t, res.Steps)
	assert.Equal(t, core.StepRejected, res.Steps[0].Status)

	second := m.Requests()[1]
	fr := second.Contents[len(second.Contents)-1].FunctionResponses()
	require.Len(t, fr, 1)
	assert.Contains(t, fr[0].Error, "rejected")
}

func TestActorAgent_FeedbackApprovesToolCall(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	m.AddToolCall("research", `{"topic":"Y"}`)
	m.AddText("done")

	var (
		calls int
		cmu   sync.Mutex
	)
	a := newActor(t, m, []tool.Tool{researchTool(&calls, &cmu)}, func(o *ActorOptions) { o.HumanFeedback = true })

	requests := make(chan string, 1)
	a.OnFeedbackRequest(func(message string, _ map[string]any) { requests <- message })

	task := a.Run(context.Background(), "topic=Y")

	select {
	case msg := <-requests:
		assert.Contains(t, msg, "research")
	case <-time.After(2 * time.Second):
		t.Fatal("no feedback request")
	}
	require.True(t, a.ProvideFeedback("yes"))

	res, err := task.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", res.Answer)
	assert.Equal(t, 1, calls)
}

func TestActorAgent_WaitForFeedback(t *testing.T) {
	rec := logging.NewRecorder()
	a := newActor(t, model.NewMockModel("mock", "mock"), nil, func(o *ActorOptions) { o.Logger = rec })

	assert.False(t, a.ProvideFeedback("nobody listens"))
	assert.Equal(t, 1, rec.Count("actor.feedback.dropped"))

	asked := make(chan struct{})
	a.OnFeedbackRequest(func(string, map[string]any) { close(asked) })

	wait := a.WaitForFeedback(context.Background(), "continue?", nil).Start(context.Background())
	<-asked
	assert.Equal(t, core.StateWaiting, a.State())
	require.True(t, a.ProvideFeedback("yes"))

	reply, err := wait.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "yes", reply)
	assert.Equal(t, core.StateReady, a.State())

	// The slot is single-use.
	assert.False(t, a.ProvideFeedback("again"))
}

func TestActorAgent_WaitForFeedbackCancelled(t *testing.T) {
	a := newActor(t, model.NewMockModel("mock", "mock"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := a.WaitForFeedback(ctx, "anyone?", nil).Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, a.ProvideFeedback("too late"))
}

func TestActorAgent_StopFailsFeedbackWait(t *testing.T) {
	a := newActor(t, model.NewMockModel("mock", "mock"), nil)

	asked := make(chan struct{})
	a.OnFeedbackRequest(func(string, map[string]any) { close(asked) })

	wait := a.WaitForFeedback(context.Background(), "continue?", nil).Start(context.Background())
	<-asked
	a.Stop()

	_, err := wait.Await(context.Background())
	assert.ErrorIs(t, err, ErrAgentStopped)
}

func TestActorAgent_RunAsync(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	a := newActor(t, m, nil, func(o *ActorOptions) { o.AgentPrompt = "{{task}}" })

	got := make(chan string, 1)
	require.NoError(t, a.RunAsync(context.Background(), "ping", func(res core.Result, err error) {
		assert.NoError(t, err)
		got <- res.Answer
	}))

	select {
	case answer := <-got:
		assert.Equal(t, "Mock response to: ping", answer)
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}

	a.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, a.Wait(ctx))
}
