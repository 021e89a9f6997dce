package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/internal/util"
	"github.com/hupe1980/coagent/logging"
)

// ErrAgentBusy is returned when a run is started while another one is in
// flight.
var ErrAgentBusy = errors.New("agent busy")

// PlanningStrategy selects how an AutonomousAgent works towards an answer.
type PlanningStrategy int

const (
	// ZeroShot answers through the native tool-calling loop without planning.
	ZeroShot PlanningStrategy = iota
	// TreeOfThought proposes several approaches, picks the most promising
	// one and follows it.
	TreeOfThought
	// PlanAndExecute writes a plan first and then works through it step by
	// step before composing the answer.
	PlanAndExecute
	// Reflexion answers, critiques the answer and revises it.
	Reflexion
	// ReAct interleaves Thought, Action and Observation in plain text.
	ReAct
)

var strategyNames = map[PlanningStrategy]string{
	ZeroShot:       "zero_shot",
	TreeOfThought:  "tree_of_thought",
	PlanAndExecute: "plan_and_execute",
	Reflexion:      "reflexion",
	ReAct:          "react",
}

func (s PlanningStrategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("PlanningStrategy(%d)", int(s))
}

// ParsePlanningStrategy maps a name such as "react" or "plan-and-execute" to
// its strategy.
func ParsePlanningStrategy(name string) (PlanningStrategy, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for s, n := range strategyNames {
		if n == key {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown planning strategy %q", name)
}

// DefaultAutonomousPrompt frames every task of an AutonomousAgent. It is
// rendered with the keys name, description, tools and task.
const DefaultAutonomousPrompt = `You are {{name}}, an autonomous assistant. {{description}}
Break the problem into manageable steps and work through them systematically.
{{if .tools}}
Available tools:
{{range .tools}}- {{.name}}: {{.description}}
{{end}}{{end}}
Task: {{task}}`

// AutonomousOptions configure an AutonomousAgent.
type AutonomousOptions struct {
	Description string
	AgentPrompt string
	Strategy    PlanningStrategy

	// MaxIterations bounds model calls per run across all phases. Zero means
	// unlimited.
	MaxIterations        int
	MaxConsecutiveErrors int
	// Thoughts is the number of approaches TreeOfThought proposes.
	Thoughts int
	// MaxReflections bounds the critique rounds of Reflexion.
	MaxReflections int

	HumanFeedback  bool
	HumanInTheLoop HumanInTheLoopFunc

	Logger logging.Logger
	Hooks  Hooks
}

func defaultAutonomousOptions() AutonomousOptions {
	return AutonomousOptions{
		AgentPrompt:          DefaultAutonomousPrompt,
		Strategy:             ReAct,
		MaxIterations:        15,
		MaxConsecutiveErrors: 3,
		Thoughts:             3,
		MaxReflections:       2,
	}
}

var _ core.Agent = (*AutonomousAgent)(nil)

// AutonomousAgent plans and executes a task on its own using one of several
// planning strategies. Unlike ActorAgent it has no inbox: Run drives one task
// at a time on the goroutine awaiting it.
type AutonomousAgent struct {
	BaseAgent

	actx *Context
	opts AutonomousOptions

	running  atomic.Bool
	stopCtx  context.Context
	stop     context.CancelFunc
	feedback feedbackSlot

	smu      sync.RWMutex
	strategy PlanningStrategy
	steps    []core.Step
	onStep   func(core.Step)
}

// NewAutonomousAgent creates an agent working through actx.
func NewAutonomousAgent(name string, actx *Context, optFns ...func(o *AutonomousOptions)) *AutonomousAgent {
	opts := defaultAutonomousOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.AgentPrompt == "" {
		opts.AgentPrompt = DefaultAutonomousPrompt
	}
	if opts.MaxConsecutiveErrors <= 0 {
		opts.MaxConsecutiveErrors = 3
	}
	if opts.Thoughts <= 0 {
		opts.Thoughts = 3
	}
	if opts.MaxReflections < 0 {
		opts.MaxReflections = 0
	}
	if opts.Logger == nil {
		opts.Logger = actx.Logger()
	}

	stopCtx, stop := context.WithCancel(context.Background())
	a := &AutonomousAgent{
		BaseAgent: NewBaseAgent(name, opts.Description, opts.Logger),
		actx:      actx,
		opts:      opts,
		stopCtx:   stopCtx,
		stop:      stop,
		strategy:  opts.Strategy,
	}
	a.SetHooks(opts.Hooks)
	return a
}

// Context returns the agent's model and tool context.
func (a *AutonomousAgent) Context() *Context { return a.actx }

// PlanningStrategy returns the strategy used by the next run.
func (a *AutonomousAgent) PlanningStrategy() PlanningStrategy {
	a.smu.RLock()
	defer a.smu.RUnlock()
	return a.strategy
}

// SetPlanningStrategy changes the strategy used by the next run.
func (a *AutonomousAgent) SetPlanningStrategy(s PlanningStrategy) {
	a.smu.Lock()
	defer a.smu.Unlock()
	a.strategy = s
}

// SetAgentPrompt replaces the template framing each task.
func (a *AutonomousAgent) SetAgentPrompt(p string) {
	a.smu.Lock()
	defer a.smu.Unlock()
	a.opts.AgentPrompt = p
}

// SetStepCallback sets a callback receiving every step as it is recorded.
func (a *AutonomousAgent) SetStepCallback(fn func(core.Step)) {
	a.smu.Lock()
	defer a.smu.Unlock()
	a.onStep = fn
}

// Steps returns the steps recorded by the current or last run.
func (a *AutonomousAgent) Steps() []core.Step {
	a.smu.RLock()
	defer a.smu.RUnlock()
	out := make([]core.Step, len(a.steps))
	copy(out, a.steps)
	return out
}

// Stop cancels the run in flight and rejects later ones.
func (a *AutonomousAgent) Stop() {
	a.stop()
	a.feedback.close()
	a.SetState(core.StateStopped)
	a.LogStatus("stopped")
}

// WaitForFeedback parks the agent in WAITING until ProvideFeedback answers.
func (a *AutonomousAgent) WaitForFeedback(ctx context.Context, message string, details map[string]any) *async.Task[string] {
	return bind(ctx, func(ctx context.Context) (string, error) {
		return a.feedback.wait(ctx, &a.BaseAgent, message, details)
	})
}

// ProvideFeedback answers the outstanding WaitForFeedback, if any.
func (a *AutonomousAgent) ProvideFeedback(text string) bool {
	if !a.feedback.provide(text) {
		a.Logger().Warn("autonomous.feedback.dropped", "agent", a.Name())
		return false
	}
	return true
}

// Run returns a lazy Task working on task with the current strategy. The
// conversation is reset at the start of every run.
func (a *AutonomousAgent) Run(ctx context.Context, task string) *async.Task[core.Result] {
	return bind(ctx, func(ctx context.Context) (core.Result, error) {
		if a.stopCtx.Err() != nil {
			return core.Result{}, ErrAgentStopped
		}
		if !a.running.CompareAndSwap(false, true) {
			return core.Result{}, ErrAgentBusy
		}
		defer a.running.Store(false)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		defer context.AfterFunc(a.stopCtx, cancel)()

		strategy := a.PlanningStrategy()
		start := time.Now()
		a.SetState(core.StateRunning)
		a.LogStatus("running " + strategy.String())

		res, err := a.execute(ctx, strategy, task)
		if err != nil {
			if a.stopCtx.Err() != nil {
				err = ErrAgentStopped
			}
			a.SetState(core.StateFailed)
			a.Logger().Error("autonomous.run.failed", "agent", a.Name(), "strategy", strategy.String(), "error", err.Error())
			a.EmitError(err)
			a.LogStatus("failed: " + err.Error())
			return core.Result{}, err
		}

		a.SetState(core.StateCompleted)
		a.Logger().Info(
			"autonomous.run.completed",
			"agent", a.Name(),
			"strategy", strategy.String(),
			"steps", len(res.Steps),
			"iterations", res.Iterations,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		a.EmitResponse(res.Answer)
		return res, nil
	})
}

// planRun is the state of one task.
type planRun struct {
	*toolRunner
	a       *AutonomousAgent
	limiter *core.IterationLimiter
	frame   string
}

func (a *AutonomousAgent) execute(ctx context.Context, strategy PlanningStrategy, task string) (core.Result, error) {
	a.smu.Lock()
	a.steps = nil
	tmpl := a.opts.AgentPrompt
	a.smu.Unlock()

	frame, err := util.RenderTemplate(tmpl, map[string]any{
		"name":        a.Name(),
		"description": a.Description(),
		"tools":       toolList(a.actx),
		"task":        task,
	})
	if err != nil {
		return core.Result{}, fmt.Errorf("agent prompt: %w", err)
	}
	if err := a.actx.ResetConversation(); err != nil {
		return core.Result{}, err
	}

	r := &planRun{
		toolRunner: &toolRunner{
			agent:   &a.BaseAgent,
			actx:    a.actx,
			event:   "autonomous",
			task:    task,
			review:  newReview(&a.BaseAgent, a.opts.HumanFeedback, a.opts.HumanInTheLoop, a.WaitForFeedback),
			maxErrs: a.opts.MaxConsecutiveErrors,
			onStep:  a.recordStep,
		},
		a:       a,
		limiter: core.NewIterationLimiter(a.opts.MaxIterations),
		frame:   frame,
	}

	var (
		answer string
		data   = map[string]any{"strategy": strategy.String()}
	)
	switch strategy {
	case ZeroShot:
		answer, err = r.toolLoop(ctx, frame)
	case TreeOfThought:
		answer, err = r.treeOfThought(ctx, task, data)
	case PlanAndExecute:
		answer, err = r.planAndExecute(ctx, task, data)
	case Reflexion:
		answer, err = r.reflexion(ctx, task, data)
	case ReAct:
		answer, err = r.react(ctx)
	default:
		err = fmt.Errorf("unknown planning strategy %d", int(strategy))
	}
	if err != nil {
		return core.Result{}, err
	}

	r.record(core.NewStep("answer").Complete(answer))
	return core.Result{Answer: answer, Steps: r.steps, Iterations: r.limiter.Count(), Data: data}, nil
}

func (a *AutonomousAgent) recordStep(s core.Step) {
	a.smu.Lock()
	a.steps = append(a.steps, s)
	cb := a.onStep
	a.smu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// next charges one model call against the iteration budget.
func (r *planRun) next(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.limiter.Increment(); err != nil {
		return fmt.Errorf("%w: %w", ErrMaxIterations, err)
	}
	return nil
}

// chat sends prompt without tools and returns the reply text. Model errors
// count towards MaxConsecutiveErrors and are retried with the same prompt.
func (r *planRun) chat(ctx context.Context, desc, prompt string) (string, error) {
	for {
		if err := r.next(ctx); err != nil {
			return "", err
		}
		resp, err := r.actx.Chat(ctx, prompt).Await(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			r.record(core.NewStep(desc).Fail(err))
			if ferr := r.failed(err); ferr != nil {
				return "", ferr
			}
			continue
		}
		r.succeeded()
		return strings.TrimSpace(resp.Text()), nil
	}
}

// toolLoop sends input with the tools offered and runs tool calls until the
// model replies with text only.
func (r *planRun) toolLoop(ctx context.Context, input string) (string, error) {
	for {
		if err := r.next(ctx); err != nil {
			return "", err
		}

		resp, err := r.actx.ChatWithTools(ctx, input).Await(ctx)
		input = ""
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			r.record(core.NewStep("model call").Fail(err))
			if ferr := r.failed(err); ferr != nil {
				return "", ferr
			}
			continue
		}
		r.succeeded()

		calls := resp.ToolCalls()
		if len(calls) == 0 {
			return strings.TrimSpace(resp.Text()), nil
		}
		if err := r.turn(ctx, calls); err != nil {
			return "", err
		}
	}
}

const planPrompt = `%s

Before acting, write a plan for the task. Reply with a JSON array of short,
concrete steps and nothing else, for example ["look up X", "compare X and Y"].`

const planStepPrompt = `Step %d of %d: %s

Carry out this step using the tools where they help, then report its outcome.`

const synthesizePrompt = `All steps of the plan are done. Using their outcomes, give the final answer to the task: %s`

func (r *planRun) planAndExecute(ctx context.Context, task string, data map[string]any) (string, error) {
	reply, err := r.chat(ctx, "plan", fmt.Sprintf(planPrompt, r.frame))
	if err != nil {
		return "", err
	}
	plan := parseList(reply)
	if len(plan) == 0 {
		r.a.Logger().Warn("autonomous.plan.unparsable", "agent", r.a.Name(), "reply", reply)
		plan = []string{task}
	}
	r.record(core.NewStep("plan").Complete(plan))
	data["plan"] = plan

	for i, step := range plan {
		out, err := r.toolLoop(ctx, fmt.Sprintf(planStepPrompt, i+1, len(plan), step))
		if err != nil {
			return "", fmt.Errorf("plan step %d: %w", i+1, err)
		}
		r.record(core.NewStep(fmt.Sprintf("step %d: %s", i+1, step)).Complete(out))
	}

	return r.chat(ctx, "synthesize", fmt.Sprintf(synthesizePrompt, task))
}

const reactPrompt = `%s

Answer using the following format:

Thought: reason about what to do next
Action: the tool to use, one of [%s]
Action Input: the tool arguments as a JSON object
Observation: the tool result, provided to you

Repeat Thought/Action/Action Input/Observation as needed. When you know the
answer, finish with:

Thought: I now know the final answer
Final Answer: the answer to the task`

var (
	reactThought     = regexp.MustCompile(`(?m)^\s*Thought:\s*(.+)$`)
	reactAction      = regexp.MustCompile(`(?m)^\s*Action:\s*(.+)$`)
	reactActionInput = regexp.MustCompile(`(?s)Action Input:\s*(.*?)\s*(?:\n\s*Observation:|$)`)
	reactFinal       = regexp.MustCompile(`(?s)Final Answer:\s*(.*)$`)
)

// react runs the text protocol: each reply either names an action, whose
// result is sent back as an Observation, or gives the final answer.
func (r *planRun) react(ctx context.Context) (string, error) {
	input := fmt.Sprintf(reactPrompt, r.frame, strings.Join(r.actx.Tools().Names(), ", "))
	for {
		reply, err := r.chat(ctx, "reasoning", input)
		if err != nil {
			return "", err
		}

		if m := reactThought.FindStringSubmatch(reply); m != nil {
			r.record(core.NewStep("thought").Complete(strings.TrimSpace(m[1])))
		}
		if m := reactFinal.FindStringSubmatch(reply); m != nil {
			return strings.TrimSpace(m[1]), nil
		}

		m := reactAction.FindStringSubmatch(reply)
		if m == nil {
			// No protocol markers: the reply is the answer.
			return reply, nil
		}

		name := strings.Trim(strings.TrimSpace(m[1]), "`[]")
		var rawInput string
		if in := reactActionInput.FindStringSubmatch(reply); in != nil {
			rawInput = in[1]
		}
		call := core.FunctionCall{ID: core.NewID(), Name: name, Arguments: r.actionArguments(name, rawInput)}

		output, callErr, fatal := r.invoke(ctx, call)
		if fatal != nil {
			return "", fatal
		}
		if callErr != nil {
			output = "Error: " + callErr.Error()
		}
		input = "Observation: " + output
	}
}

// actionArguments turns a ReAct action input into JSON arguments. Plain text
// is accepted for tools taking a single parameter.
func (r *planRun) actionArguments(name, input string) string {
	input = strings.TrimSpace(strings.Trim(strings.TrimSpace(input), "`"))
	input = strings.TrimPrefix(input, "json")
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "{") {
		return input
	}

	if t, err := r.actx.Tools().Get(name); err == nil {
		if props, ok := t.Parameters()["properties"].(map[string]any); ok && len(props) == 1 {
			for key := range props {
				b, err := json.Marshal(map[string]string{key: strings.Trim(input, `"`)})
				if err == nil {
					return string(b)
				}
			}
		}
	}
	if input == "" {
		return "{}"
	}
	return input
}

const reflectPrompt = `Review your previous answer to the task: %s

If it is complete and correct, reply with DONE only. Otherwise list the
concrete problems to fix.`

const revisePrompt = `Revise your answer to fix these problems:

%s

Reply with the improved answer only.`

func (r *planRun) reflexion(ctx context.Context, task string, data map[string]any) (string, error) {
	answer, err := r.toolLoop(ctx, r.frame)
	if err != nil {
		return "", err
	}
	r.record(core.NewStep("draft").Complete(answer))

	rounds := 0
	for rounds < r.a.opts.MaxReflections {
		critique, err := r.chat(ctx, "reflection", fmt.Sprintf(reflectPrompt, task))
		if err != nil {
			return "", err
		}
		rounds++
		r.record(core.NewStep(fmt.Sprintf("reflection %d", rounds)).Complete(critique))
		if firstWord(critique) == "done" {
			break
		}

		answer, err = r.toolLoop(ctx, fmt.Sprintf(revisePrompt, critique))
		if err != nil {
			return "", err
		}
		r.record(core.NewStep(fmt.Sprintf("revision %d", rounds)).Complete(answer))
	}
	data["reflections"] = rounds
	return answer, nil
}

const thoughtsPrompt = `%s

Propose %d distinct approaches to this task. Reply with a JSON array of
strings, one short description per approach, and nothing else.`

const choosePrompt = `Which of these approaches is most likely to solve the task well?

%s
Reply with the number of the best approach only.`

const followPrompt = `Solve the task following approach %d: %s`

var firstNumber = regexp.MustCompile(`\d+`)

func (r *planRun) treeOfThought(ctx context.Context, task string, data map[string]any) (string, error) {
	reply, err := r.chat(ctx, "approaches", fmt.Sprintf(thoughtsPrompt, r.frame, r.a.opts.Thoughts))
	if err != nil {
		return "", err
	}
	approaches := parseList(reply)
	if len(approaches) > r.a.opts.Thoughts {
		approaches = approaches[:r.a.opts.Thoughts]
	}
	if len(approaches) == 0 {
		r.a.Logger().Warn("autonomous.approaches.unparsable", "agent", r.a.Name(), "reply", reply)
		approaches = []string{task}
	}
	r.record(core.NewStep("approaches").Complete(approaches))
	data["approaches"] = approaches

	chosen := 1
	if len(approaches) > 1 {
		var list strings.Builder
		for i, ap := range approaches {
			fmt.Fprintf(&list, "%d. %s\n", i+1, ap)
		}
		pick, err := r.chat(ctx, "evaluation", fmt.Sprintf(choosePrompt, list.String()))
		if err != nil {
			return "", err
		}
		if n, err := strconv.Atoi(firstNumber.FindString(pick)); err == nil && n >= 1 && n <= len(approaches) {
			chosen = n
		}
	}
	r.record(core.NewStep("choice").Complete(approaches[chosen-1]))
	data["chosen"] = chosen

	return r.toolLoop(ctx, fmt.Sprintf(followPrompt, chosen, approaches[chosen-1]))
}

var (
	listFence = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\n(.*?)```")
	listItem  = regexp.MustCompile(`(?m)^\s*(?:\d+[.)]|[-*])\s+(.+?)\s*$`)
)

// parseList reads a list of strings from model output: a JSON or YAML
// sequence, an object with a "steps" sequence, or numbered or bulleted lines.
func parseList(text string) []string {
	body := strings.TrimSpace(text)
	if m := listFence.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}

	var items []string
	if err := yaml.Unmarshal([]byte(body), &items); err == nil && len(items) > 0 {
		return compact(items)
	}
	var wrapped struct {
		Steps []string `yaml:"steps"`
	}
	if err := yaml.Unmarshal([]byte(body), &wrapped); err == nil && len(wrapped.Steps) > 0 {
		return compact(wrapped.Steps)
	}
	if start, end := strings.Index(body, "["), strings.LastIndex(body, "]"); start >= 0 && end > start {
		if err := yaml.Unmarshal([]byte(body[start:end+1]), &items); err == nil && len(items) > 0 {
			return compact(items)
		}
	}

	for _, m := range listItem.FindAllStringSubmatch(body, -1) {
		items = append(items, m[1])
	}
	return compact(items)
}

func compact(items []string) []string {
	out := items[:0]
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func firstWord(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return !('a' <= r && r <= 'z') })
	if len(words) == 0 {
		return ""
	}
	return words[0]
}
