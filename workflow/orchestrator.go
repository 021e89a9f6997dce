package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/internal/util"
	"github.com/hupe1980/coagent/logging"
)

// ErrEmptyPlan is returned when the planner yields no subtasks.
var ErrEmptyPlan = errors.New("planner returned no subtasks")

// Prompts used by an Orchestrator unless overridden.
const (
	DefaultPlannerPrompt = `Break the task below into independent subtasks.
{{if .workers}}Assign each subtask to one of these workers:
{{range .workers}}- {{.name}}: {{.description}}
{{end}}{{end}}
Task: {{input}}

Reply with a JSON array: [{"worker": "<name>", "task": "<subtask>"}]`

	DefaultSynthesizerPrompt = `Combine the subtask results into one answer to the task.

Task: {{input}}

Results:
{{range .results}}### {{.worker}}: {{.task}}
{{.output}}

{{end}}`
)

// Worker is a named agent the orchestrator can delegate subtasks to.
type Worker struct {
	Name        string
	Description string
	Agent       core.Agent
}

// Subtask is one planned unit of work.
type Subtask struct {
	Worker string `json:"worker" yaml:"worker"`
	Task   string `json:"task" yaml:"task"`
}

// OrchestratorOptions configure an Orchestrator.
type OrchestratorOptions struct {
	PlannerPrompt     string
	SynthesizerPrompt string
	// MaxConcurrency bounds simultaneously running workers when the
	// orchestrator creates its own executor.
	MaxConcurrency int
	// Executor runs the workers. A per-run executor is used when nil.
	Executor    *async.Executor
	Description string
	Logger      logging.Logger
}

// Orchestrator plans subtasks with the model, fans them out to workers and
// synthesizes their results. Subtasks naming an unknown worker, or none, are
// answered by the model directly.
type Orchestrator struct {
	base
	workers map[string]Worker
	order   []string
	opts    OrchestratorOptions
}

// NewOrchestrator creates an orchestrator over workers.
func NewOrchestrator(name string, llm Completer, workers []Worker, optFns ...func(o *OrchestratorOptions)) *Orchestrator {
	opts := OrchestratorOptions{
		PlannerPrompt:     DefaultPlannerPrompt,
		SynthesizerPrompt: DefaultSynthesizerPrompt,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	o := &Orchestrator{
		base:    newBase(name, opts.Description, llm, opts.Logger),
		workers: make(map[string]Worker, len(workers)),
		opts:    opts,
	}
	for _, w := range workers {
		o.workers[w.Name] = w
		o.order = append(o.order, w.Name)
	}
	return o
}

// Run implements core.Agent.
func (o *Orchestrator) Run(ctx context.Context, input string) *async.Task[core.Result] {
	return o.run(ctx, "orchestrator", func(ctx context.Context) (core.Result, error) {
		plan, err := o.plan(ctx, input)
		if err != nil {
			return core.Result{}, err
		}
		o.LogStatus(fmt.Sprintf("planned %d subtasks", len(plan)))

		exec := o.opts.Executor
		if exec == nil {
			exec = async.NewExecutor(ctx, func(eo *async.ExecutorOptions) {
				eo.MaxConcurrent = o.opts.MaxConcurrency
				eo.Logger = o.Logger()
			})
			defer func() { _ = exec.Shutdown() }()
		}

		tasks := make([]*async.Task[string], len(plan))
		for i, st := range plan {
			tasks[i] = async.Spawn(exec, func(execCtx context.Context) (string, error) {
				wctx, cancel := mergeContext(ctx, execCtx)
				defer cancel()
				return o.delegate(wctx, st)
			})
		}

		results := make([]map[string]any, len(plan))
		steps := make([]core.Step, 0, len(plan)+1)
		for i, t := range tasks {
			out, err := t.Await(ctx)
			if err != nil {
				return core.Result{}, fmt.Errorf("subtask %d (%s): %w", i+1, plan[i].Worker, err)
			}
			results[i] = map[string]any{"worker": plan[i].Worker, "task": plan[i].Task, "output": out}

			step := core.NewStep(fmt.Sprintf("%s: %s", plan[i].Worker, plan[i].Task)).Complete(out)
			steps = append(steps, step)
			o.EmitStep(step)
		}

		prompt, err := util.RenderTemplate(o.opts.SynthesizerPrompt, map[string]any{"input": input, "results": results})
		if err != nil {
			return core.Result{}, fmt.Errorf("synthesizer prompt: %w", err)
		}
		answer, err := o.complete(ctx, prompt)
		if err != nil {
			return core.Result{}, fmt.Errorf("synthesize: %w", err)
		}

		synth := core.NewStep("synthesize").Complete(answer)
		steps = append(steps, synth)
		o.EmitStep(synth)

		return core.Result{
			Answer:     answer,
			Steps:      steps,
			Iterations: 1,
			Data:       map[string]any{"subtasks": len(plan)},
		}, nil
	})
}

func (o *Orchestrator) plan(ctx context.Context, input string) ([]Subtask, error) {
	list := make([]map[string]any, 0, len(o.order))
	for _, name := range o.order {
		list = append(list, map[string]any{"name": name, "description": o.workers[name].Description})
	}

	prompt, err := util.RenderTemplate(o.opts.PlannerPrompt, map[string]any{"input": input, "workers": list})
	if err != nil {
		return nil, fmt.Errorf("planner prompt: %w", err)
	}
	raw, err := o.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	plan, err := ParsePlan(raw)
	if err != nil {
		return nil, err
	}
	o.EmitStep(core.NewStep("plan").Complete(plan))
	return plan, nil
}

func (o *Orchestrator) delegate(ctx context.Context, st Subtask) (string, error) {
	if w, ok := o.workers[st.Worker]; ok && w.Agent != nil {
		res, err := w.Agent.Run(ctx, st.Task).Await(ctx)
		if err != nil {
			return "", err
		}
		return res.Answer, nil
	}
	return o.complete(ctx, st.Task)
}

// ParsePlan decodes planner output: a JSON or YAML list of subtasks, an
// object holding one under "subtasks", or a bulleted list of plain tasks.
func ParsePlan(text string) ([]Subtask, error) {
	var plan []Subtask
	if err := decodeStructured(text, &plan); err != nil || len(plan) == 0 {
		var wrapped struct {
			Subtasks []Subtask `json:"subtasks" yaml:"subtasks"`
		}
		if err := decodeStructured(text, &wrapped); err == nil {
			plan = wrapped.Subtasks
		}
	}

	if len(plan) == 0 {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789.)"))
			if line != "" {
				plan = append(plan, Subtask{Task: line})
			}
		}
	}

	out := plan[:0]
	for _, st := range plan {
		if strings.TrimSpace(st.Task) != "" {
			out = append(out, st)
		}
	}
	if len(out) == 0 {
		return nil, ErrEmptyPlan
	}
	return out, nil
}
