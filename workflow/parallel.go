package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/internal/util"
	"github.com/hupe1980/coagent/logging"
)

// ErrNoConsensus is returned by a voting run when no answer reaches the
// voting threshold.
var ErrNoConsensus = errors.New("no consensus among votes")

// Mode selects how a Parallel workflow combines its outputs.
type Mode int

const (
	// Sectioning runs distinct prompts and aggregates all outputs.
	Sectioning Mode = iota
	// Voting runs the same question several times and keeps the majority.
	Voting
)

// Section is one concurrently executed prompt. Prompt is rendered with the
// key input.
type Section struct {
	Name   string
	Prompt string
}

// Output is the result of one section.
type Output struct {
	Section string
	Text    string
}

// ParallelOptions configure a Parallel workflow.
type ParallelOptions struct {
	Mode Mode
	// Aggregator combines sectioning outputs. Defaults to markdown headers.
	Aggregator func(outputs []Output) (string, error)
	// VotingThreshold is the share of votes the winning answer needs.
	VotingThreshold float64
	// MaxConcurrency bounds simultaneous model calls. Zero means unlimited.
	MaxConcurrency int
	Description    string
	Logger         logging.Logger
}

// Parallel fans prompts out to the model concurrently.
type Parallel struct {
	base
	sections []Section
	opts     ParallelOptions
}

// NewParallel creates a parallel workflow over sections.
func NewParallel(name string, llm Completer, sections []Section, optFns ...func(o *ParallelOptions)) *Parallel {
	opts := ParallelOptions{
		VotingThreshold: 0.5,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Aggregator == nil {
		opts.Aggregator = joinSections
	}
	return &Parallel{
		base:     newBase(name, opts.Description, llm, opts.Logger),
		sections: sections,
		opts:     opts,
	}
}

// NewVoting creates a Voting workflow asking prompt votes times. A workflow
// with no votes fails with ErrNoSteps when run.
func NewVoting(name string, llm Completer, prompt string, votes int, optFns ...func(o *ParallelOptions)) *Parallel {
	if votes < 0 {
		votes = 0
	}
	sections := make([]Section, votes)
	for i := range sections {
		sections[i] = Section{Name: fmt.Sprintf("vote_%d", i+1), Prompt: prompt}
	}
	return NewParallel(name, llm, sections, append([]func(o *ParallelOptions){func(o *ParallelOptions) {
		o.Mode = Voting
	}}, optFns...)...)
}

// Run implements core.Agent.
func (p *Parallel) Run(ctx context.Context, input string) *async.Task[core.Result] {
	kind := "sectioning"
	if p.opts.Mode == Voting {
		kind = "voting"
	}

	return p.run(ctx, kind, func(ctx context.Context) (core.Result, error) {
		if len(p.sections) == 0 {
			return core.Result{}, ErrNoSteps
		}

		outputs, err := p.fanOut(ctx, input)
		if err != nil {
			return core.Result{}, err
		}

		steps := make([]core.Step, len(outputs))
		for i, o := range outputs {
			steps[i] = core.NewStep(o.Section).Complete(o.Text)
			p.EmitStep(steps[i])
		}

		if p.opts.Mode == Voting {
			return p.tally(outputs, steps)
		}

		answer, err := p.opts.Aggregator(outputs)
		if err != nil {
			return core.Result{}, fmt.Errorf("aggregate: %w", err)
		}

		data := make(map[string]any, len(outputs))
		for _, o := range outputs {
			data[o.Section] = o.Text
		}
		return core.Result{Answer: answer, Steps: steps, Iterations: 1, Data: data}, nil
	})
}

func (p *Parallel) fanOut(ctx context.Context, input string) ([]Output, error) {
	outputs := make([]Output, len(p.sections))

	g, gctx := errgroup.WithContext(ctx)
	if p.opts.MaxConcurrency > 0 {
		g.SetLimit(p.opts.MaxConcurrency)
	}

	for i, s := range p.sections {
		g.Go(func() error {
			prompt, err := util.RenderTemplate(s.Prompt, map[string]any{"input": input})
			if err != nil {
				return fmt.Errorf("section %s: %w", s.Name, err)
			}
			text, err := p.complete(gctx, prompt)
			if err != nil {
				return fmt.Errorf("section %s: %w", s.Name, err)
			}
			outputs[i] = Output{Section: s.Name, Text: text}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

func (p *Parallel) tally(outputs []Output, steps []core.Step) (core.Result, error) {
	counts := make(map[string]int, len(outputs))
	first := make(map[string]string, len(outputs))
	var order []string

	for _, o := range outputs {
		key := normalizeVote(o.Text)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
			first[key] = strings.TrimSpace(o.Text)
		}
		counts[key]++
	}

	winner := order[0]
	for _, k := range order[1:] {
		if counts[k] > counts[winner] {
			winner = k
		}
	}

	share := float64(counts[winner]) / float64(len(outputs))
	p.Logger().Debug("workflow.voting.tally", "workflow", p.Name(), "votes", len(outputs), "agreement", share)

	if share < p.opts.VotingThreshold {
		return core.Result{}, fmt.Errorf("%w: best answer has %.0f%% of votes", ErrNoConsensus, share*100)
	}

	votes := make(map[string]int, len(counts))
	for k, n := range counts {
		votes[first[k]] = n
	}

	return core.Result{
		Answer:     first[winner],
		Steps:      steps,
		Iterations: 1,
		Data:       map[string]any{"votes": votes, "agreement": share},
	}, nil
}

func normalizeVote(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), ".!"))
}

func joinSections(outputs []Output) (string, error) {
	var b strings.Builder
	for i, o := range outputs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n%s", o.Section, o.Text)
	}
	return b.String(), nil
}
