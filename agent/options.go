package agent

import (
	"time"

	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/logging"
)

// DefaultAgentPrompt frames each task the actor receives. It is rendered with
// the keys name, description, tools (a list of name/description maps) and task.
const DefaultAgentPrompt = `You are {{name}}. {{description}}
{{if .tools}}
You can use the following tools:
{{range .tools}}- {{.name}}: {{.description}}
{{end}}{{end}}
Work step by step. Call a tool when it helps, then answer the task directly.

Task: {{task}}`

// ActorOptions configure an ActorAgent.
type ActorOptions struct {
	Description string
	AgentPrompt string

	// MaxIterations bounds model turns per task. Zero means unlimited.
	MaxIterations int
	// MaxConsecutiveErrors fails the task after this many model or tool
	// errors in a row.
	MaxConsecutiveErrors int
	// HumanFeedback asks for approval through WaitForFeedback before each
	// tool call.
	HumanFeedback bool
	// HumanInTheLoop approves tool calls synchronously instead of the
	// WaitForFeedback round trip and implies HumanFeedback. A JSON object in
	// modifications replaces the call arguments; other text reaches the
	// model as a reviewer note next to the tool result.
	HumanInTheLoop HumanInTheLoopFunc

	// RunInterval is how often an idle worker re-checks the stop flag.
	RunInterval time.Duration
	// QueueSize bounds the inbox; Submit fails with ErrQueueFull beyond it.
	QueueSize int
	// KeepHistory carries the conversation over from one task to the next.
	KeepHistory bool

	Logger logging.Logger
	// Executor runs RunAsync callbacks. A private one is created when nil.
	Executor *async.Executor
	Hooks    Hooks
}

func defaultActorOptions() ActorOptions {
	return ActorOptions{
		AgentPrompt:          DefaultAgentPrompt,
		MaxIterations:        10,
		MaxConsecutiveErrors: 3,
		RunInterval:          100 * time.Millisecond,
		QueueSize:            64,
	}
}
