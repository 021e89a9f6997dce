package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/coagent/agent"
	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/logging"
	"github.com/hupe1980/coagent/model"
)

// Completer produces a single stateless completion. *agent.Context
// satisfies it through Complete.
type Completer interface {
	Complete(ctx context.Context, prompt string) *async.Task[model.Response]
}

var _ Completer = (*agent.Context)(nil)

// ErrNoSteps is returned when a workflow has nothing to run.
var ErrNoSteps = errors.New("workflow has no steps")

// base carries identity, state and stop handling shared by all workflows.
type base struct {
	agent.BaseAgent
	llm Completer

	stopCtx context.Context
	stop    context.CancelFunc
}

func newBase(name, description string, llm Completer, logger logging.Logger) base {
	stopCtx, stop := context.WithCancel(context.Background())
	return base{
		BaseAgent: agent.NewBaseAgent(name, description, logger),
		llm:       llm,
		stopCtx:   stopCtx,
		stop:      stop,
	}
}

// Stop cancels runs in flight and rejects later ones.
func (b *base) Stop() {
	b.stop()
	b.SetState(core.StateStopped)
}

// run returns a lazy Task executing body under ctx and the workflow's stop
// context, with state tracking and hook reporting around it.
func (b *base) run(ctx context.Context, kind string, body func(ctx context.Context) (core.Result, error)) *async.Task[core.Result] {
	if ctx == nil {
		ctx = context.Background()
	}
	return async.NewTask(func(taskCtx context.Context) (core.Result, error) {
		if b.stopCtx.Err() != nil {
			return core.Result{}, agent.ErrAgentStopped
		}
		if err := ctx.Err(); err != nil {
			return core.Result{}, err
		}

		runCtx, cancel := mergeContext(taskCtx, ctx)
		defer cancel()
		stopWatch := context.AfterFunc(b.stopCtx, cancel)
		defer stopWatch()

		start := time.Now()
		b.SetState(core.StateRunning)
		b.Logger().Debug("workflow.run.start", "workflow", b.Name(), "kind", kind)

		res, err := body(runCtx)
		if err != nil {
			b.SetState(core.StateFailed)
			b.Logger().Error("workflow.run.failed", "workflow", b.Name(), "kind", kind, "error", err.Error())
			b.EmitError(err)
			return core.Result{}, err
		}

		b.SetState(core.StateCompleted)
		b.Logger().Info(
			"workflow.run.completed",
			"workflow", b.Name(),
			"kind", kind,
			"steps", len(res.Steps),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		b.EmitResponse(res.Answer)
		return res, nil
	})
}

// complete runs one prompt through the workflow's model.
func (b *base) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := b.llm.Complete(ctx, prompt).Await(ctx)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// mergeContext derives a context from primary that is also cancelled when
// secondary is done.
func mergeContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(primary)
	if secondary == nil || secondary == primary {
		return ctx, cancel
	}
	stop := context.AfterFunc(secondary, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
