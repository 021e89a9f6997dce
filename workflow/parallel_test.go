package workflow

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallel_SectioningAggregatesInOrder(t *testing.T) {
	llm := complete(func(p string) (string, error) { return strings.ToUpper(p), nil })

	p := NewParallel("review", llm, []Section{
		{Name: "security", Prompt: "security of {{input}}"},
		{Name: "style", Prompt: "style of {{input}}"},
		{Name: "tests", Prompt: "tests of {{input}}"},
	}, func(o *ParallelOptions) { o.MaxConcurrency = 2 })

	res, err := p.Run(context.Background(), "pr").Await(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "## security\n\nSECURITY OF PR\n\n## style\n\nSTYLE OF PR\n\n## tests\n\nTESTS OF PR", res.Answer)
	assert.Len(t, res.Steps, 3)
	assert.Equal(t, "STYLE OF PR", res.Data["style"])
}

func TestParallel_CustomAggregator(t *testing.T) {
	llm := complete(func(p string) (string, error) { return p, nil })
	p := NewParallel("n", llm, []Section{{Name: "a", Prompt: "1"}, {Name: "b", Prompt: "2"}}, func(o *ParallelOptions) {
		o.Aggregator = func(outputs []Output) (string, error) {
			parts := make([]string, len(outputs))
			for i, o := range outputs {
				parts[i] = o.Text
			}
			return strings.Join(parts, "+"), nil
		}
	})

	res, err := p.Run(context.Background(), "").Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1+2", res.Answer)
}

func TestParallel_VotingMajority(t *testing.T) {
	answers := []string{"Yes", "yes.", "No"}
	var n atomic.Int32
	llm := complete(func(string) (string, error) {
		return answers[int(n.Add(1)-1)%len(answers)], nil
	})

	v := NewVoting("judge", llm, "Is {{input}} safe?", 3)
	res, err := v.Run(context.Background(), "this").Await(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "yes", normalizeVote(res.Answer))
	assert.InDelta(t, 2.0/3.0, res.Data["agreement"], 1e-9)
	for _, p := range llm.Prompts() {
		assert.Equal(t, "Is this safe?", p)
	}
}

func TestParallel_VotingNoConsensus(t *testing.T) {
	answers := []string{"a", "b", "c", "d"}
	var n atomic.Int32
	llm := complete(func(string) (string, error) {
		return answers[int(n.Add(1)-1)%len(answers)], nil
	})

	v := NewVoting("judge", llm, "pick", 4, func(o *ParallelOptions) { o.VotingThreshold = 0.5 })
	_, err := v.Run(context.Background(), "").Await(context.Background())
	assert.ErrorIs(t, err, ErrNoConsensus)
}

func TestParallel_SectionFailureFailsRun(t *testing.T) {
	llm := complete(func(p string) (string, error) {
		if p == "bad" {
			return "", assert.AnError
		}
		return p, nil
	})
	p := NewParallel("n", llm, []Section{{Name: "ok", Prompt: "good"}, {Name: "broken", Prompt: "bad"}})

	_, err := p.Run(context.Background(), "").Await(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "section broken")
}

func TestParallel_VotingWithoutVotes(t *testing.T) {
	llm := complete(func(p string) (string, error) { return p, nil })

	for _, votes := range []int{0, -1, -5} {
		var v *Parallel
		require.NotPanics(t, func() { v = NewVoting("judge", llm, "pick", votes) })

		_, err := v.Run(context.Background(), "").Await(context.Background())
		assert.ErrorIs(t, err, ErrNoSteps)
	}
	assert.Empty(t, llm.Prompts())
}
