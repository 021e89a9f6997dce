package core

import (
	"time"

	"github.com/google/uuid"
)

// StepStatus is the outcome label attached to a Step.
type StepStatus string

const (
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepRejected  StepStatus = "rejected"
)

// Step records one unit of progress while an agent processes a task: a model
// turn, a tool invocation or a feedback exchange. Steps are reported through
// the agent's step hook and collected into the final Result.
type Step struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
	Result      any        `json:"result,omitempty"`
	Success     bool       `json:"success"`
	Timestamp   time.Time  `json:"timestamp"`
}

// NewStep creates a running step with a fresh id.
func NewStep(description string) Step {
	return Step{
		ID:          NewID(),
		Description: description,
		Status:      StepRunning,
		Timestamp:   time.Now().UTC(),
	}
}

// Complete marks the step successful with result.
func (s Step) Complete(result any) Step {
	s.Status = StepCompleted
	s.Result = result
	s.Success = true
	return s
}

// Fail marks the step failed with err.
func (s Step) Fail(err error) Step {
	s.Status = StepFailed
	s.Success = false
	if err != nil {
		s.Result = err.Error()
	}
	return s
}

// NewID returns a new random identifier.
func NewID() string {
	return uuid.NewString()
}
