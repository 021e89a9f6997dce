package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/internal/util"
	"github.com/hupe1980/coagent/logging"
)

// ErrValidation is wrapped when a chain step rejects its output.
var ErrValidation = errors.New("step output rejected")

// Step is one prompt in a Chain.
//
// PromptTemplate is rendered with the keys input (the run input), response
// (the previous step's output) and the name of every completed step.
type Step struct {
	Name           string
	PromptTemplate string
	// Validate stops the chain when it returns an error.
	Validate func(output string) error
	// Transform rewrites the output before it is passed on.
	Transform func(output string) (string, error)
}

// ChainOptions configure a Chain.
type ChainOptions struct {
	Description string
	Logger      logging.Logger
}

// Chain runs prompts in order, feeding each output into the next prompt.
type Chain struct {
	base
	steps []Step
}

// NewChain creates a prompt chain.
func NewChain(name string, llm Completer, steps []Step, optFns ...func(o *ChainOptions)) *Chain {
	opts := ChainOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Chain{
		base:  newBase(name, opts.Description, llm, opts.Logger),
		steps: steps,
	}
}

// AddStep appends a step and returns the chain.
func (c *Chain) AddStep(s Step) *Chain {
	c.steps = append(c.steps, s)
	return c
}

// Run implements core.Agent.
func (c *Chain) Run(ctx context.Context, input string) *async.Task[core.Result] {
	return c.run(ctx, "chain", func(ctx context.Context) (core.Result, error) {
		if len(c.steps) == 0 {
			return core.Result{}, ErrNoSteps
		}

		state := map[string]any{"input": input, "response": input}
		outputs := make(map[string]any, len(c.steps))
		steps := make([]core.Step, 0, len(c.steps))

		for i, s := range c.steps {
			name := s.Name
			if name == "" {
				name = fmt.Sprintf("step_%d", i+1)
			}
			c.LogStatus("running step " + name)

			prompt, err := util.RenderTemplate(s.PromptTemplate, state)
			if err != nil {
				return core.Result{}, fmt.Errorf("step %s: %w", name, err)
			}

			out, err := c.complete(ctx, prompt)
			if err != nil {
				return core.Result{}, fmt.Errorf("step %s: %w", name, err)
			}

			if s.Validate != nil {
				if err := s.Validate(out); err != nil {
					c.EmitStep(core.NewStep(name).Fail(err))
					return core.Result{}, fmt.Errorf("step %s: %w: %w", name, ErrValidation, err)
				}
			}
			if s.Transform != nil {
				if out, err = s.Transform(out); err != nil {
					return core.Result{}, fmt.Errorf("step %s: transform: %w", name, err)
				}
			}

			step := core.NewStep(name).Complete(out)
			steps = append(steps, step)
			c.EmitStep(step)

			state["response"] = out
			state[name] = out
			outputs[name] = out
		}

		return core.Result{
			Answer:     state["response"].(string),
			Steps:      steps,
			Iterations: len(steps),
			Data:       outputs,
		}, nil
	})
}
