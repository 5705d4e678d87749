package governor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wesm/mailquery/internal/metrics"
)

// ConnectionStatus is the health state tracked by a ConnectionMonitor.
type ConnectionStatus string

const (
	StatusUnknown      ConnectionStatus = "unknown"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusReconnecting ConnectionStatus = "reconnecting"
)

// Connection retry defaults.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// HealthCheck probes the mail store connection. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConnectionMonitor tracks connection health and reconnects with
// exponential backoff. Transitions:
//
//	unknown      -> connected | disconnected  (Check)
//	disconnected -> reconnecting -> connected | disconnected  (Reconnect)
type ConnectionMonitor struct {
	check      HealthCheck
	maxRetries int
	baseDelay  time.Duration
	sleep      SleepFunc
	now        func() time.Time
	logger     *slog.Logger

	mu        sync.Mutex
	status    ConnectionStatus
	lastCheck time.Time
	attempts  int
}

// ConnectionOption configures a ConnectionMonitor.
type ConnectionOption func(*ConnectionMonitor)

// WithMaxRetries sets how many reconnection attempts are made.
func WithMaxRetries(n int) ConnectionOption {
	return func(m *ConnectionMonitor) { m.maxRetries = n }
}

// WithRetryDelay sets the base backoff delay; it doubles after each
// failed attempt.
func WithRetryDelay(d time.Duration) ConnectionOption {
	return func(m *ConnectionMonitor) { m.baseDelay = d }
}

// WithSleep replaces the backoff wait, for tests.
func WithSleep(fn SleepFunc) ConnectionOption {
	return func(m *ConnectionMonitor) { m.sleep = fn }
}

// WithConnectionClock overrides the time source used for LastCheck.
func WithConnectionClock(now func() time.Time) ConnectionOption {
	return func(m *ConnectionMonitor) { m.now = now }
}

// WithConnectionLogger sets the logger.
func WithConnectionLogger(logger *slog.Logger) ConnectionOption {
	return func(m *ConnectionMonitor) { m.logger = logger }
}

// NewConnectionMonitor creates a monitor in the unknown state.
func NewConnectionMonitor(check HealthCheck, opts ...ConnectionOption) *ConnectionMonitor {
	m := &ConnectionMonitor{
		check:      check,
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultRetryDelay,
		sleep:      sleepContext,
		now:        time.Now,
		logger:     slog.Default(),
		status:     StatusUnknown,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.maxRetries < 1 {
		m.maxRetries = 1
	}
	return m
}

func (m *ConnectionMonitor) setStatus(s ConnectionStatus) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Status returns the last observed state.
func (m *ConnectionMonitor) Status() ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Healthy reports whether the last observed state is connected.
func (m *ConnectionMonitor) Healthy() bool {
	return m.Status() == StatusConnected
}

// Check runs the health check once and records the outcome.
func (m *ConnectionMonitor) Check(ctx context.Context) ConnectionStatus {
	err := m.check(ctx)

	m.mu.Lock()
	m.lastCheck = m.now()
	if err != nil {
		m.status = StatusDisconnected
	} else {
		m.status = StatusConnected
	}
	status := m.status
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("connection check failed", "error", err)
	} else {
		m.logger.Debug("connection check ok")
	}
	return status
}

// backoff returns the wait before the given zero-based attempt.
func (m *ConnectionMonitor) backoff(attempt int) time.Duration {
	if attempt == 0 {
		return 0
	}
	return m.baseDelay * time.Duration(1<<(attempt-1))
}

// Reconnect retries the health check up to the configured number of times,
// waiting baseDelay, 2*baseDelay, 4*baseDelay... between attempts. It
// returns a ConnectionError when every attempt fails, or a cancellation
// error if ctx ends while waiting.
func (m *ConnectionMonitor) Reconnect(ctx context.Context) error {
	m.logger.Info("attempting reconnection", "max_retries", m.maxRetries)

	var lastErr error
	for attempt := 0; attempt < m.maxRetries; attempt++ {
		m.mu.Lock()
		m.status = StatusReconnecting
		m.attempts++
		m.mu.Unlock()

		if d := m.backoff(attempt); d > 0 {
			m.logger.Debug("waiting before reconnect", "attempt", attempt+1, "delay", d)
			if err := m.sleep(ctx, d); err != nil {
				m.setStatus(StatusDisconnected)
				return &cancelledError{cause: err}
			}
		}

		lastErr = m.check(ctx)
		m.mu.Lock()
		m.lastCheck = m.now()
		m.mu.Unlock()
		if lastErr == nil {
			m.setStatus(StatusConnected)
			metrics.ConnectionRetry("success")
			m.logger.Info("reconnected", "attempt", attempt+1)
			return nil
		}
		metrics.ConnectionRetry("failure")
		m.logger.Debug("reconnect attempt failed", "attempt", attempt+1, "error", lastErr)
	}

	m.setStatus(StatusDisconnected)
	m.logger.Error("reconnection failed", "attempts", m.maxRetries, "error", lastErr)
	return &ConnectionError{
		Op:  "reconnect",
		Err: fmt.Errorf("gave up after %d attempts: %w", m.maxRetries, lastErr),
	}
}

// EnsureConnected checks health and, if the connection is down, tries to
// reconnect. It then runs fn. When reconnection is exhausted fn is not run
// and the ConnectionError is returned.
func (m *ConnectionMonitor) EnsureConnected(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.Check(ctx) == StatusDisconnected {
		if err := m.Reconnect(ctx); err != nil {
			return err
		}
	}
	return fn(ctx)
}

// ConnectionInfo is a snapshot of monitor state for health endpoints.
type ConnectionInfo struct {
	Status     ConnectionStatus `json:"status"`
	Healthy    bool             `json:"healthy"`
	LastCheck  *time.Time       `json:"last_check,omitempty"`
	Attempts   int              `json:"reconnect_attempts"`
	MaxRetries int              `json:"max_retries"`
	RetryDelay string           `json:"retry_delay"`
}

// Info returns the current state.
func (m *ConnectionMonitor) Info() ConnectionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := ConnectionInfo{
		Status:     m.status,
		Healthy:    m.status == StatusConnected,
		Attempts:   m.attempts,
		MaxRetries: m.maxRetries,
		RetryDelay: m.baseDelay.String(),
	}
	if !m.lastCheck.IsZero() {
		t := m.lastCheck
		info.LastCheck = &t
	}
	return info
}

// RetryPolicy re-runs an operation that fails with a connection error.
// Any other error is returned immediately.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	Sleep      SleepFunc
	Logger     *slog.Logger
}

// NewRetryPolicy returns a policy making up to maxRetries retries after
// the first attempt, waiting a fixed delay between them.
func NewRetryPolicy(maxRetries int, delay time.Duration) *RetryPolicy {
	return &RetryPolicy{MaxRetries: maxRetries, Delay: delay}
}

// Do runs fn, retrying on connection errors.
func (p *RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Retry is Do for functions that produce a value.
func Retry[T any](ctx context.Context, p *RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if !IsConnectionError(err) {
			return zero, err
		}
		if attempt >= p.MaxRetries {
			logger.Error("operation failed after retries", "attempts", attempt+1, "error", err)
			return zero, err
		}
		metrics.ConnectionRetry("failure")
		logger.Warn("connection error, retrying", "attempt", attempt+1, "error", err)
		if serr := sleep(ctx, p.Delay); serr != nil {
			return zero, errors.Join(err, &cancelledError{cause: serr})
		}
	}
}
