package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/coagent/core"
)

func TestChain_PassesResponseForward(t *testing.T) {
	llm := complete(func(p string) (string, error) { return "<" + p + ">", nil })

	var seen []string
	c := NewChain("writer", llm, []Step{
		{Name: "outline", PromptTemplate: "outline {{input}}"},
		{Name: "draft", PromptTemplate: "draft from {{response}}"},
	}).AddStep(Step{Name: "final", PromptTemplate: "{{outline}} | {{.response}}", Transform: func(s string) (string, error) {
		return strings.ToUpper(s), nil
	}})
	c.OnStep(func(description string, _ any) { seen = append(seen, description) })

	res, err := c.Run(context.Background(), "X").Await(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"outline X", "draft from <outline X>", "<outline X> | <draft from <outline X>>"}, llm.Prompts())
	assert.Equal(t, "<<OUTLINE X> | <DRAFT FROM <OUTLINE X>>>", res.Answer)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, "<outline X>", res.Data["outline"])
	assert.Equal(t, []string{"outline", "draft", "final"}, seen)
	assert.Equal(t, core.StateCompleted, c.State())
}

func TestChain_ValidationStops(t *testing.T) {
	llm := complete(func(p string) (string, error) { return "short", nil })
	reject := errors.New("too short")

	c := NewChain("validated", llm, []Step{
		{Name: "first", PromptTemplate: "{{input}}", Validate: func(out string) error {
			if len(out) < 10 {
				return reject
			}
			return nil
		}},
		{Name: "never", PromptTemplate: "{{response}}"},
	})

	_, err := c.Run(context.Background(), "x").Await(context.Background())
	require.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, reject)
	assert.Len(t, llm.Prompts(), 1)
	assert.Equal(t, core.StateFailed, c.State())
}

func TestChain_ModelError(t *testing.T) {
	boom := errors.New("boom")
	c := NewChain("failing", complete(func(string) (string, error) { return "", boom }), []Step{{Name: "a", PromptTemplate: "x"}})

	var hookErr error
	c.OnError(func(err error) { hookErr = err })

	_, err := c.Run(context.Background(), "x").Await(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, hookErr, boom)
}

func TestChain_NoSteps(t *testing.T) {
	_, err := NewChain("empty", complete(nil), nil).Run(context.Background(), "x").Await(context.Background())
	assert.ErrorIs(t, err, ErrNoSteps)
}
