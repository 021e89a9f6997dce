// Package workflow implements composable LLM workflow patterns as core.Agent
// values:
//
//   - Chain runs prompts in sequence, each seeing the previous response
//   - Parallel fans prompts out concurrently, aggregating sections or votes
//   - Router classifies input and dispatches it to one route
//   - Evaluator generates, scores and refines a response in a loop
//   - Orchestrator plans subtasks, delegates them to workers and synthesizes
//
// Every workflow draws completions from a Completer, usually an
// *agent.Context, and returns its outcome as an async Task:
//
//	chain := workflow.NewChain("summarize", actx, []workflow.Step{
//	    {Name: "facts", PromptTemplate: "List facts about {{input}}"},
//	    {Name: "summary", PromptTemplate: "Summarize: {{response}}"},
//	})
//	res, err := chain.Run(ctx, "Go channels").Await(ctx)
//
// Prompt templates use text/template syntax; the shorthand {{name}} is
// accepted for {{.name}}.
package workflow
