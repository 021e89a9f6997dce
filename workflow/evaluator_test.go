package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluator_ImprovesUntilThreshold(t *testing.T) {
	llm := complete(func(p string) (string, error) {
		switch {
		case strings.HasPrefix(p, "Evaluate") && strings.Contains(p, "draft1"):
			return `{"score": 0.4, "feedback": "more detail"}`, nil
		case strings.HasPrefix(p, "Evaluate"):
			return "Looks good. Score: 9", nil
		case strings.HasPrefix(p, "Improve"):
			return "draft2", nil
		default:
			return "draft1", nil
		}
	})

	e := NewEvaluator("refine", llm)
	res, err := e.Run(context.Background(), "write a haiku").Await(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "draft2", res.Answer)
	assert.Equal(t, 2, res.Iterations)
	assert.InDelta(t, 0.9, res.Data["score"], 1e-9)

	prompts := llm.Prompts()
	require.Len(t, prompts, 4) // generate, evaluate, optimize, evaluate
	assert.Contains(t, prompts[2], "Feedback: more detail")
}

func TestEvaluator_KeepsBestWhenBudgetRunsOut(t *testing.T) {
	scores := map[string]string{"v1": "0.6", "v2": "0.3", "v3": "0.5"}
	next := map[string]string{"v1": "v2", "v2": "v3"}

	llm := complete(func(p string) (string, error) {
		for v, s := range scores {
			if strings.HasPrefix(p, "Evaluate") && strings.Contains(p, "\n"+v+"\n") {
				return "score: " + s, nil
			}
			if strings.HasPrefix(p, "Improve") && strings.Contains(p, "\n"+v+"\n") {
				return next[v], nil
			}
		}
		return "v1", nil
	})

	e := NewEvaluator("refine", llm, func(o *EvaluatorOptions) { o.MaxIterations = 3 })
	res, err := e.Run(context.Background(), "task").Await(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "v1", res.Answer)
	assert.Equal(t, 3, res.Iterations)
	assert.InDelta(t, 0.6, res.Data["score"], 1e-9)
}

func TestParseEvaluation(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		score    float64
		feedback string
		wantErr  bool
	}{
		{name: "json", in: `{"score": 0.75, "feedback": "tighten"}`, score: 0.75, feedback: "tighten"},
		{name: "json in prose", in: "Here you go: {\"score\": 0.5, \"feedback\": \"ok\"} thanks", score: 0.5, feedback: "ok"},
		{name: "fenced yaml", in: "```yaml\nscore: 0.9\nfeedback: fine\n```", score: 0.9, feedback: "fine"},
		{name: "ten point scale", in: "Score = 7", score: 0.7},
		{name: "percent", in: `{"score": 85}`, score: 0.85},
		{name: "garbage", in: "no idea", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvaluation(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.score, got.Score, 1e-9)
			if tt.feedback != "" {
				assert.Equal(t, tt.feedback, got.Feedback)
			}
		})
	}
}
