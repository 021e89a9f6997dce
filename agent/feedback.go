package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/hupe1980/coagent/async"
	"github.com/hupe1980/coagent/core"
	"github.com/hupe1980/coagent/internal/util"
)

// HumanInTheLoopFunc approves a pending action synchronously. modifications
// is free text from the reviewer: the reason for a refusal, or adjustments
// for an approval.
type HumanInTheLoopFunc func(message string, details map[string]any) (approved bool, modifications string)

// feedbackSlot holds the single outstanding feedback wait of an agent. A
// fresh promise is created per wait, so a reply can never be delivered to a
// later wait.
type feedbackSlot struct {
	mu      sync.Mutex
	pending *async.Promise[string]
	closed  bool
}

// wait parks b in WAITING until provide is called, ctx is done or the slot is
// closed. The state found on entry is restored afterwards.
func (s *feedbackSlot) wait(ctx context.Context, b *BaseAgent, message string, details map[string]any) (string, error) {
	p := async.NewPromise[string]()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrAgentStopped
	}
	if s.pending != nil {
		s.mu.Unlock()
		return "", ErrFeedbackPending
	}
	s.pending = p
	s.mu.Unlock()

	prev := b.State()
	defer func() {
		s.mu.Lock()
		if s.pending == p {
			s.pending = nil
		}
		s.mu.Unlock()
		b.SetState(prev)
	}()

	b.SetState(core.StateWaiting)
	b.LogStatus("waiting for feedback")
	b.emitFeedbackRequest(message, details)

	return p.Await(ctx)
}

// provide resolves the outstanding wait with text. It reports false when
// there is none.
func (s *feedbackSlot) provide(text string) bool {
	s.mu.Lock()
	p := s.pending
	s.pending = nil
	s.mu.Unlock()

	return p != nil && p.Resolve(text) == nil
}

// close fails the outstanding wait and all later ones with ErrAgentStopped.
func (s *feedbackSlot) close() {
	s.mu.Lock()
	s.closed = true
	p := s.pending
	s.pending = nil
	s.mu.Unlock()

	if p != nil {
		_ = p.Reject(ErrAgentStopped)
	}
}

// verdict is a reviewer's decision on one tool call.
type verdict struct {
	approved  bool
	reason    string // Why the call was refused
	arguments string // Replacement arguments, JSON
	note      string // Text passed to the model with the tool result
}

// reviewFunc decides on a tool call before it runs.
type reviewFunc func(ctx context.Context, message string, details map[string]any) (verdict, error)

// newReview returns the reviewer for an agent, or nil when tool calls run
// unreviewed. hitl takes precedence over the asynchronous wait.
func newReview(b *BaseAgent, enabled bool, hitl HumanInTheLoopFunc, wait func(ctx context.Context, message string, details map[string]any) *async.Task[string]) reviewFunc {
	switch {
	case hitl != nil:
		return func(_ context.Context, message string, details map[string]any) (verdict, error) {
			b.SetState(core.StateWaiting)
			b.LogStatus("waiting for approval")
			approved, mods := hitl(message, details)
			b.SetState(core.StateRunning)

			if !approved {
				return verdict{reason: mods}, nil
			}
			if _, ok := argumentOverride(mods); ok {
				return verdict{approved: true, arguments: strings.TrimSpace(mods)}, nil
			}
			return verdict{approved: true, note: strings.TrimSpace(mods)}, nil
		}
	case enabled:
		return func(ctx context.Context, message string, details map[string]any) (verdict, error) {
			reply, err := wait(ctx, message, details).Await(ctx)
			if err != nil {
				return verdict{}, err
			}
			if rejected(reply) {
				return verdict{reason: reply}, nil
			}
			if _, ok := argumentOverride(reply); ok {
				return verdict{approved: true, arguments: strings.TrimSpace(reply)}, nil
			}
			return verdict{approved: true}, nil
		}
	default:
		return nil
	}
}

func approvalMessage(call core.FunctionCall) string {
	return fmt.Sprintf("Approve call to %s with %s?", call.Name, call.Arguments)
}

var rejectWords = map[string]bool{
	"n": true, "no": true, "nope": true,
	"reject": true, "rejected": true,
	"deny": true, "denied": true,
}

// rejected reports whether the first word of reply declines the request.
func rejected(reply string) bool {
	words := strings.FieldsFunc(strings.ToLower(reply), func(r rune) bool { return !unicode.IsLetter(r) })
	return len(words) > 0 && rejectWords[words[0]]
}

// argumentOverride reports whether mods is a JSON object meant to replace a
// call's arguments.
func argumentOverride(mods string) (map[string]any, bool) {
	mods = strings.TrimSpace(mods)
	if !strings.HasPrefix(mods, "{") {
		return nil, false
	}
	args, err := util.ParseArguments(mods)
	if err != nil {
		return nil, false
	}
	return args, true
}
