// Package async provides the small asynchronous runtime the rest of coagent is
// built on:
//
//   - Task: a one-shot asynchronous result observed by at most one continuation
//   - Promise: a single-assignment cell that completes a Task from the outside
//   - Stream: a pull-driven, non-restartable sequence of values
//   - Executor: supervised background work with error collection
//   - BlockingWait / CollectAll: bridges for synchronous call sites
//
// Tasks are lazy. A Task created with NewTask does not run until something
// drives it: Await runs the body inline on the caller's goroutine, while Start,
// Then and Go run it on a new goroutine. Whatever drives it, the body runs once
// and its outcome is stored; every later Await returns the same value or error.
//
//	research := async.NewTask(func(ctx context.Context) (string, error) {
//	    facts, err := lookup.Await(ctx) // parent reports StateSuspended meanwhile
//	    if err != nil {
//	        return "", err
//	    }
//	    return summarize(facts), nil
//	})
//	summary, err := async.BlockingWait(research)
//
// Panics inside Task bodies, Stream bodies and Executor work are recovered and
// surface as *PanicError values.
package async
