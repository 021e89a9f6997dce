package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/logging"
	"github.com/hupe1980/coagent/memory"
	"github.com/hupe1980/coagent/model"
	"github.com/hupe1980/coagent/tool"
)

// ContextOptions configure a Context.
type ContextOptions struct {
	SystemPrompt     string
	Tools            []tool.Tool
	Memory           core.Memory
	ModelOptions     model.Options
	Timeout          time.Duration // Per model call; 0 disables
	MaxParallelTools int
	Logger           logging.Logger
}

// Context is the working environment of an agent: the model, the tools it
// may call, its memory and the running conversation. Chat and tool methods
// return Tasks so callers decide whether to await inline, chain or run in
// the background.
type Context struct {
	model    model.Model
	tools    *tool.Registry
	toolExec *tool.Executor
	memory   core.Memory
	opts     model.Options
	timeout  time.Duration
	logger   logging.Logger

	mu           sync.RWMutex
	systemPrompt string
}

// NewContext creates a Context around m.
func NewContext(m model.Model, optFns ...func(o *ContextOptions)) *Context {
	opts := ContextOptions{
		Timeout: 30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := logging.OrNoOp(opts.Logger)
	if opts.Memory == nil {
		opts.Memory = memory.NewStore()
	}

	registry := tool.NewRegistry(opts.Tools...)

	return &Context{
		model: m,
		tools: registry,
		toolExec: tool.NewExecutor(registry, func(o *tool.ExecutorOptions) {
			o.MaxParallel = opts.MaxParallelTools
			o.PreserveOrder = true
			o.Logger = logger
		}),
		memory:       opts.Memory,
		opts:         opts.ModelOptions,
		timeout:      opts.Timeout,
		logger:       logger,
		systemPrompt: opts.SystemPrompt,
	}
}

// Model returns the underlying model.
func (c *Context) Model() model.Model { return c.model }

// Tools returns the tool registry.
func (c *Context) Tools() *tool.Registry { return c.tools }

// Memory returns the agent memory.
func (c *Context) Memory() core.Memory { return c.memory }

// Logger returns the context logger.
func (c *Context) Logger() logging.Logger { return c.logger }

// RegisterTool adds t to the registry.
func (c *Context) RegisterTool(t tool.Tool) error { return c.tools.Register(t) }

// SystemPrompt returns the instructions sent with every request.
func (c *Context) SystemPrompt() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.systemPrompt
}

// SetSystemPrompt replaces the instructions sent with every request.
func (c *Context) SetSystemPrompt(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.systemPrompt = p
}

// AddMessage appends content to the conversation.
func (c *Context) AddMessage(content core.Content) error {
	return c.memory.AddMessage(content)
}

// Messages returns the conversation so far.
func (c *Context) Messages() []core.Content {
	msgs, err := c.memory.Messages(0)
	if err != nil {
		c.logger.Warn("agent.context.messages_failed", "error", err.Error())
		return nil
	}
	return msgs
}

// ResetConversation drops the conversation and short-term memory.
func (c *Context) ResetConversation() error {
	return c.memory.Clear(core.ShortTerm)
}

// Chat sends prompt as a user message and returns a Task resolving with the
// model's final response. Both turns are recorded in the conversation.
func (c *Context) Chat(ctx context.Context, prompt string) *async.Task[model.Response] {
	return c.chat(ctx, prompt, false)
}

// ChatWithTools is Chat with the registered tools offered to the model. An
// empty prompt continues the conversation, typically after tool responses
// have been added.
func (c *Context) ChatWithTools(ctx context.Context, prompt string) *async.Task[model.Response] {
	return c.chat(ctx, prompt, true)
}

func (c *Context) chat(ctx context.Context, prompt string, withTools bool) *async.Task[model.Response] {
	return bind(ctx, func(ctx context.Context) (model.Response, error) {
		if prompt != "" {
			if err := c.AddMessage(core.NewTextContent(core.RoleUser, prompt)); err != nil {
				return model.Response{}, err
			}
		}

		req := c.request(c.Messages(), withTools, false)
		resp, err := c.generate(ctx, req)
		if err != nil {
			return model.Response{}, err
		}

		if err := c.AddMessage(resp.Content); err != nil {
			return model.Response{}, err
		}
		return resp, nil
	})
}

// Complete runs a single stateless turn: prompt is sent with the system
// prompt only and nothing is recorded. Workflows use it for independent
// calls that may run concurrently on one Context.
func (c *Context) Complete(ctx context.Context, prompt string) *async.Task[model.Response] {
	return bind(ctx, func(ctx context.Context) (model.Response, error) {
		req := c.request([]core.Content{core.NewTextContent(core.RoleUser, prompt)}, false, false)
		return c.generate(ctx, req)
	})
}

// StreamChat sends prompt and returns a Stream of text chunks as the model
// produces them. The assembled answer is recorded in the conversation once
// the stream is exhausted.
func (c *Context) StreamChat(ctx context.Context, prompt string) *async.Stream[string] {
	return async.NewStream(ctx, func(ctx context.Context, yield func(string) bool) error {
		if err := c.AddMessage(core.NewTextContent(core.RoleUser, prompt)); err != nil {
			return err
		}

		ctx, cancel := c.withTimeout(ctx)
		defer cancel()

		start := time.Now()
		c.logger.Debug("llm.call.start", "model", c.model.Info().Name, "stream", true)

		respCh, errCh := c.model.Generate(ctx, c.request(c.Messages(), false, true))

		var (
			text  strings.Builder
			final *model.Response
		)
		for r := range respCh {
			if !r.Partial {
				final = &r
				continue
			}
			chunk := r.Text()
			if chunk == "" {
				continue
			}
			text.WriteString(chunk)
			if !yield(chunk) {
				return nil
			}
		}
		if err := <-errCh; err != nil {
			c.logger.Error("llm.call.failed", "model", c.model.Info().Name, "error", err.Error())
			return err
		}

		// Providers without incremental output only deliver the final response.
		if text.Len() == 0 && final != nil {
			if chunk := final.Text(); chunk != "" {
				text.WriteString(chunk)
				if !yield(chunk) {
					return nil
				}
			}
		}

		c.logger.Debug("llm.call.completed", "model", c.model.Info().Name, "duration_ms", time.Since(start).Milliseconds())
		return c.AddMessage(core.NewTextContent(core.RoleAssistant, text.String()))
	})
}

// ExecuteTool returns a lazy Task running a single function call.
func (c *Context) ExecuteTool(ctx context.Context, call core.FunctionCall) *async.Task[tool.Result] {
	return c.toolExec.ExecuteCall(ctx, call)
}

// ExecuteTools runs a batch of function calls, in parallel when possible,
// and returns one outcome per call in call order.
func (c *Context) ExecuteTools(ctx context.Context, calls []core.FunctionCall) []tool.Outcome {
	return c.toolExec.Execute(ctx, calls)
}

func (c *Context) request(contents []core.Content, withTools, stream bool) model.Request {
	req := model.Request{
		Instructions: c.SystemPrompt(),
		Contents:     contents,
		Stream:       stream,
		Options:      c.opts,
	}
	if withTools && c.tools.Len() > 0 {
		req.Tools = c.tools.Definitions()
	}
	return req
}

func (c *Context) generate(ctx context.Context, req model.Request) (model.Response, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	c.logger.Debug("llm.call.start", "model", c.model.Info().Name, "tools", len(req.Tools))

	respCh, errCh := c.model.Generate(ctx, req)
	resp, err := model.Collect(ctx, respCh, errCh)
	if err != nil {
		c.logger.Error("llm.call.failed", "model", c.model.Info().Name, "error", err.Error())
		return model.Response{}, err
	}

	c.logger.Debug(
		"llm.call.completed",
		"model", c.model.Info().Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"tool_calls", len(resp.ToolCalls()),
	)
	return resp, nil
}

func (c *Context) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// bind returns a lazy Task whose body is also cancelled when outer is done,
// whichever context ends up driving it.
func bind[T any](outer context.Context, fn func(ctx context.Context) (T, error)) *async.Task[T] {
	return async.NewTask(func(ctx context.Context) (T, error) {
		if outer == nil || outer == ctx {
			return fn(ctx)
		}
		if err := outer.Err(); err != nil {
			var zero T
			return zero, err
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(outer, cancel)
		defer stop()
		return fn(ctx)
	})
}
