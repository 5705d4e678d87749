package governor

import (
	"context"
	"time"

	"github.com/wesm/mailquery/internal/metrics"
)

// TimeoutPolicy bounds the wall-clock time of a named operation.
//
// Enforcement is best effort: when the ceiling passes, Run returns a
// TimeoutError and cancels the context handed to fn, but fn keeps running
// in its goroutine until it notices the cancellation or finishes. Its
// result is discarded.
type TimeoutPolicy struct {
	Operation string
	Timeout   time.Duration
}

// NewTimeoutPolicy returns a policy for op. A non-positive timeout takes the
// default ceiling.
func NewTimeoutPolicy(op string, timeout time.Duration) *TimeoutPolicy {
	if timeout <= 0 {
		timeout = DefaultTimeouts().Default
	}
	return &TimeoutPolicy{Operation: op, Timeout: timeout}
}

// Run calls fn and waits at most p.Timeout for it to return.
func (p *TimeoutPolicy) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := RunValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RunValue is Run for functions that produce a value.
func RunValue[T any](ctx context.Context, p *TimeoutPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so an abandoned fn can still send and exit.
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	timer := time.NewTimer(p.Timeout)
	defer timer.Stop()

	var zero T
	select {
	case r := <-done:
		return r.v, r.err
	case <-timer.C:
		metrics.Timeout(p.Operation)
		return zero, &TimeoutError{Operation: p.Operation, Ceiling: p.Timeout}
	case <-ctx.Done():
		return zero, &cancelledError{cause: context.Cause(ctx)}
	}
}
