package governor

import (
	"context"
	"errors"
)

// CancellationToken is a one-way cancellation flag that long-running loops
// poll between units of work. It is backed by a context so it can also be
// handed to code that only understands context.Context.
type CancellationToken struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// NewCancellationToken returns a token that is also cancelled when parent is.
func NewCancellationToken(parent context.Context) *CancellationToken {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	return &CancellationToken{ctx: ctx, cancel: cancel}
}

// Cancel marks the token cancelled. Later calls are no-ops; the first
// reason wins.
func (t *CancellationToken) Cancel(reason string) {
	if reason == "" {
		t.cancel(ErrCancelled)
		return
	}
	t.cancel(errors.New(reason))
}

// IsCancelled reports whether Cancel was called or the parent context ended.
func (t *CancellationToken) IsCancelled() bool {
	return t.ctx.Err() != nil
}

// Check returns an ErrCancelled error once the token is cancelled.
func (t *CancellationToken) Check() error {
	return CheckCancelled(t.ctx)
}

// Context returns a context that is done when the token is cancelled.
func (t *CancellationToken) Context() context.Context {
	return t.ctx
}

// CheckCancelled returns an error matching ErrCancelled when ctx is done.
// A deadline that expired is reported as cancellation as well; callers
// that need to distinguish can still match context.DeadlineExceeded.
func CheckCancelled(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(ctx)
	if cause == ErrCancelled {
		cause = nil
	}
	return &cancelledError{cause: cause}
}
