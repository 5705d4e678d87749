package mailstore

import (
	"context"

	"golang.org/x/time/rate"
)

// Waiter blocks until the caller may proceed. *rate.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context) error
}

// NewLimiter returns a token bucket allowing rps calls per second with a
// burst of one call per started second, or nil when rps is not positive.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// ThrottledStore gates every call to the wrapped Store through a Waiter.
type ThrottledStore struct {
	inner Store
	wait  Waiter
}

// Throttled wraps s. A nil w returns s unchanged.
func Throttled(s Store, w Waiter) Store {
	if w == nil {
		return s
	}
	// Avoid the typed-nil trap for *rate.Limiter.
	if l, ok := w.(*rate.Limiter); ok && l == nil {
		return s
	}
	return &ThrottledStore{inner: s, wait: w}
}

func (t *ThrottledStore) ListFolders(ctx context.Context) ([]Folder, error) {
	if err := t.wait.Wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.ListFolders(ctx)
}

func (t *ThrottledStore) ListEmails(ctx context.Context, folderPath string) ([]Email, error) {
	if err := t.wait.Wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.ListEmails(ctx, folderPath)
}

func (t *ThrottledStore) GetEmail(ctx context.Context, id string) (*Email, error) {
	if err := t.wait.Wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.GetEmail(ctx, id)
}

func (t *ThrottledStore) MoveEmail(ctx context.Context, id, targetFolder string) (bool, error) {
	if err := t.wait.Wait(ctx); err != nil {
		return false, err
	}
	return t.inner.MoveEmail(ctx, id, targetFolder)
}

// Ping forwards to the wrapped store without waiting, so health checks are
// never starved by throttling.
func (t *ThrottledStore) Ping(ctx context.Context) error {
	return HealthCheck(t.inner)(ctx)
}

// Unwrap returns the wrapped Store.
func (t *ThrottledStore) Unwrap() Store { return t.inner }
