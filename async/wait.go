package async

import "context"

// BlockingWait drives t to completion on the calling goroutine and returns its
// outcome. It is the bridge for synchronous call sites such as main; it must
// not be called from inside a continuation of t.
func BlockingWait[T any](t *Task[T]) (T, error) {
	return t.Get()
}

// BlockingWaitContext is BlockingWait bounded by ctx.
func BlockingWaitContext[T any](ctx context.Context, t *Task[T]) (T, error) {
	return t.Await(ctx)
}
