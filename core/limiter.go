package core

import (
	"errors"
	"fmt"
	"sync"
)

// ErrLimitExceeded is wrapped by IterationLimiter.Increment once the budget is spent.
var ErrLimitExceeded = errors.New("limit exceeded")

// IterationLimiter enforces a maximum number of iterations (model turns,
// retries, loop rounds) per run.
type IterationLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewIterationLimiter creates a new limiter with a max number of iterations.
// If max == 0, unlimited iterations are allowed.
func NewIterationLimiter(max int) *IterationLimiter {
	return &IterationLimiter{max: max}
}

// Increment increases the counter and returns an error if the limit is exceeded.
func (il *IterationLimiter) Increment() error {
	il.mu.Lock()
	defer il.mu.Unlock()

	il.count++
	if il.max > 0 && il.count > il.max {
		return fmt.Errorf("exceeded max iterations %d: %w", il.max, ErrLimitExceeded)
	}

	return nil
}

// Count returns the current number of iterations made.
func (il *IterationLimiter) Count() int {
	il.mu.Lock()
	defer il.mu.Unlock()

	return il.count
}

// Remaining returns how many iterations are left before hitting the limit.
func (il *IterationLimiter) Remaining() int {
	il.mu.Lock()
	defer il.mu.Unlock()

	if il.max == 0 {
		return -1 // unlimited
	}

	return il.max - il.count
}

// Reset sets the counter back to zero.
func (il *IterationLimiter) Reset() {
	il.mu.Lock()
	defer il.mu.Unlock()

	il.count = 0
}
