package workflow

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/internal/util"
	"github.com/hupe1980/coagent/logging"
)

// Prompts used by an Evaluator unless overridden.
const (
	DefaultGeneratorPrompt = `{{input}}`

	DefaultEvaluatorPrompt = `Evaluate how well the response below answers the task.

Task: {{input}}

Response:
{{response}}

Reply with JSON: {"score": <0.0 to 1.0>, "feedback": "<what to improve>"}`

	DefaultOptimizerPrompt = `Improve the response to the task using the feedback.

Task: {{input}}

Previous response:
{{response}}

Feedback: {{feedback}}

Return only the improved response.`
)

// Evaluation is the parsed judgement of one response.
type Evaluation struct {
	Score    float64 `json:"score" yaml:"score"`
	Feedback string  `json:"feedback" yaml:"feedback"`
}

// EvaluatorOptions configure an Evaluator.
type EvaluatorOptions struct {
	GeneratorPrompt string
	EvaluatorPrompt string
	OptimizerPrompt string
	// MaxIterations bounds evaluate/optimize rounds.
	MaxIterations int
	// ImprovementThreshold ends the loop once a response scores at least this.
	ImprovementThreshold float64
	Description          string
	Logger               logging.Logger
}

// Evaluator generates a response and refines it until the model's own
// evaluation is good enough. The best scoring response wins.
type Evaluator struct {
	base
	opts EvaluatorOptions
}

// NewEvaluator creates an evaluator/optimizer loop.
func NewEvaluator(name string, llm Completer, optFns ...func(o *EvaluatorOptions)) *Evaluator {
	opts := EvaluatorOptions{
		GeneratorPrompt:      DefaultGeneratorPrompt,
		EvaluatorPrompt:      DefaultEvaluatorPrompt,
		OptimizerPrompt:      DefaultOptimizerPrompt,
		MaxIterations:        3,
		ImprovementThreshold: 0.8,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 1
	}
	return &Evaluator{
		base: newBase(name, opts.Description, llm, opts.Logger),
		opts: opts,
	}
}

// Run implements core.Agent.
func (e *Evaluator) Run(ctx context.Context, input string) *async.Task[core.Result] {
	return e.run(ctx, "evaluator", func(ctx context.Context) (core.Result, error) {
		state := map[string]any{"input": input}

		response, err := e.prompt(ctx, e.opts.GeneratorPrompt, state)
		if err != nil {
			return core.Result{}, fmt.Errorf("generate: %w", err)
		}

		var (
			steps     []core.Step
			best      = response
			bestEval  = Evaluation{Score: -1}
			iteration int
		)

		for iteration = 1; iteration <= e.opts.MaxIterations; iteration++ {
			state["response"] = response

			raw, err := e.prompt(ctx, e.opts.EvaluatorPrompt, state)
			if err != nil {
				return core.Result{}, fmt.Errorf("evaluate: %w", err)
			}
			eval, err := ParseEvaluation(raw)
			if err != nil {
				e.Logger().Warn("workflow.evaluator.unparsable", "workflow", e.Name(), "iteration", iteration)
				eval = Evaluation{Feedback: raw}
			}

			step := core.NewStep(fmt.Sprintf("evaluation %d", iteration)).Complete(eval)
			steps = append(steps, step)
			e.EmitStep(step)

			if eval.Score > bestEval.Score {
				best, bestEval = response, eval
			}
			if eval.Score >= e.opts.ImprovementThreshold || iteration == e.opts.MaxIterations {
				break
			}

			state["feedback"] = eval.Feedback
			response, err = e.prompt(ctx, e.opts.OptimizerPrompt, state)
			if err != nil {
				return core.Result{}, fmt.Errorf("optimize: %w", err)
			}
		}

		return core.Result{
			Answer:     best,
			Steps:      steps,
			Iterations: iteration,
			Data:       map[string]any{"score": bestEval.Score, "feedback": bestEval.Feedback},
		}, nil
	})
}

func (e *Evaluator) prompt(ctx context.Context, tmpl string, state map[string]any) (string, error) {
	prompt, err := util.RenderTemplate(tmpl, state)
	if err != nil {
		return "", err
	}
	return e.complete(ctx, prompt)
}

var scorePattern = regexp.MustCompile(`(?i)score["']?\s*[:=]\s*([0-9]*\.?[0-9]+)`)

// ParseEvaluation extracts score and feedback from evaluator output given as
// JSON, YAML or prose containing "score: N". Scores on a 10 or 100 point
// scale are normalized to 0..1.
func ParseEvaluation(text string) (Evaluation, error) {
	var parsed struct {
		Score    *float64 `json:"score" yaml:"score"`
		Feedback string   `json:"feedback" yaml:"feedback"`
	}

	eval := Evaluation{}
	if err := decodeStructured(text, &parsed); err == nil && parsed.Score != nil {
		eval = Evaluation{Score: *parsed.Score, Feedback: parsed.Feedback}
	} else if m := scorePattern.FindStringSubmatch(text); m != nil {
		score, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Evaluation{}, err
		}
		eval = Evaluation{Score: score, Feedback: text}
	} else {
		return Evaluation{}, errUnparsable
	}

	switch {
	case eval.Score > 10:
		eval.Score /= 100
	case eval.Score > 1:
		eval.Score /= 10
	}
	return eval, nil
}
