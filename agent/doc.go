// Package agent contains the actor-style agent and the context it works in.
//
// Context bundles a model, a tool registry and a memory with the running
// conversation. Its Chat, ChatWithTools and ExecuteTool methods return lazy
// async Tasks; StreamChat returns an async Stream of text chunks.
//
// ActorAgent owns one worker goroutine and a bounded FIFO inbox. Each task is
// framed with the agent prompt and driven through model turns and tool calls
// until the model answers:
//
//	actx := agent.NewContext(m, func(o *agent.ContextOptions) {
//	    o.Tools = []tool.Tool{tool.NewCalculatorTool()}
//	})
//	a := agent.NewActorAgent("assistant", actx)
//	defer a.Stop()
//
//	res, err := a.Run(ctx, "What is 6*7?").Await(ctx)
//
// Progress is reported through Hooks which run synchronously on the worker.
// With ActorOptions.HumanFeedback enabled the worker parks in WAITING before
// each tool call until ProvideFeedback answers the OnFeedbackRequest hook.
// A HumanInTheLoop function approves calls synchronously instead.
//
// AutonomousAgent has no inbox. Its Run plans the task with a
// PlanningStrategy (ZeroShot, TreeOfThought, PlanAndExecute, Reflexion or
// ReAct) and records every step, available through Steps and a step callback.
package agent
