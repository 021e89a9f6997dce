package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/internal/util"
)

// toolRunner executes the tool calls of one task on behalf of an agent. It
// records steps, counts consecutive failures and asks review, when set,
// before each call.
type toolRunner struct {
	agent  *BaseAgent
	actx   *Context
	event  string // Log event prefix
	task   string
	review reviewFunc

	maxErrs int
	errs    int
	steps   []core.Step
	onStep  func(core.Step)
}

func (r *toolRunner) record(s core.Step) {
	r.steps = append(r.steps, s)
	r.agent.EmitStep(s)
	if r.onStep != nil {
		r.onStep(s)
	}
}

// failed counts err and returns ErrMaxConsecutiveErrors once the limit is hit.
func (r *toolRunner) failed(err error) error {
	r.errs++
	if r.errs >= r.maxErrs {
		return fmt.Errorf("%w: %w", ErrMaxConsecutiveErrors, err)
	}
	return nil
}

func (r *toolRunner) succeeded() { r.errs = 0 }

// invoke reviews and runs one call. callErr is the refusal or tool failure to
// report to the model; fatal aborts the task.
func (r *toolRunner) invoke(ctx context.Context, call core.FunctionCall) (output string, callErr, fatal error) {
	desc := "tool " + call.Name
	args, err := util.ParseArguments(call.Arguments)
	if err != nil {
		r.agent.Logger().Warn(r.event+".tool.args_invalid", "agent", r.agent.Name(), "tool", call.Name, "error", err.Error())
	}

	var note string
	if r.review != nil {
		v, err := r.review(ctx, approvalMessage(call), map[string]any{"tool": call.Name, "arguments": args, "task": r.task})
		if err != nil {
			return "", nil, err
		}
		r.agent.Logger().Debug(r.event+".tool.reviewed", "agent", r.agent.Name(), "tool", call.Name, "approved", v.approved)
		if !v.approved {
			s := core.NewStep(desc)
			s.Status = core.StepRejected
			s.Result = v.reason
			r.record(s)
			return "", fmt.Errorf("call to %s rejected: %s", call.Name, v.reason), nil
		}
		if v.arguments != "" {
			call.Arguments = v.arguments
			args, _ = util.ParseArguments(v.arguments)
		}
		note = v.note
	}

	result, err := r.actx.ExecuteTool(ctx, call).Await(ctx)
	if err != nil {
		r.record(core.NewStep(desc).Fail(err))
		return "", err, r.failed(err)
	}
	r.succeeded()

	r.agent.EmitToolUsed(call.Name, args, result)
	r.record(core.NewStep(desc).Complete(result.Content))

	output = result.Content
	if note != "" {
		output += "\n\nReviewer note: " + note
	}
	return output, nil, nil
}

// turn runs the calls of one model turn in order and appends one function
// response per call to the conversation.
func (r *toolRunner) turn(ctx context.Context, calls []core.FunctionCall) error {
	for _, call := range calls {
		output, callErr, fatal := r.invoke(ctx, call)
		if fatal != nil {
			return fatal
		}

		var content core.Content
		if callErr != nil {
			content = core.NewFunctionResponseContent(call, nil, callErr)
		} else {
			content = core.NewFunctionResponseContent(call, output, nil)
		}
		if err := r.actx.AddMessage(content); err != nil {
			return err
		}
	}
	return nil
}
