package governor

import (
	"log/slog"
	"time"

	"github.com/wesm/mailquery/internal/metrics"
)

// MemoryReader returns the current memory usage of the process in MB.
type MemoryReader func() (float64, error)

// Monitor checks resource usage against a fixed set of Limits.
// Checks are synchronous and only happen when called.
type Monitor struct {
	limits Limits
	memory MemoryReader
	now    func() time.Time
	logger *slog.Logger
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithMemoryReader overrides how memory usage is measured.
func WithMemoryReader(r MemoryReader) MonitorOption {
	return func(m *Monitor) { m.memory = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// WithMonitorLogger sets the logger used to report crossed ceilings.
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = logger }
}

// NewMonitor creates a Monitor for limits. Zero limits take their defaults.
func NewMonitor(limits Limits, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		limits: limits.withDefaults(),
		memory: ResidentMemoryMB,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Limits returns the effective ceilings.
func (m *Monitor) Limits() Limits {
	return m.limits
}

// MemoryUsage returns the current memory usage in MB.
func (m *Monitor) MemoryUsage() (float64, error) {
	return m.memory()
}

// CheckMemory fails with a ResourceExceededError when memory usage is above
// the ceiling. A failure to read memory usage is not treated as exceeding it.
func (m *Monitor) CheckMemory() error {
	used, err := m.memory()
	if err != nil {
		m.logger.Debug("memory usage unavailable", "error", err)
		return nil
	}
	if used > m.limits.MaxMemoryMB {
		return m.exceeded(ResourceMemory, m.limits.MaxMemoryMB, used)
	}
	return nil
}

// CheckTime fails when more than the processing-time ceiling has elapsed
// since start.
func (m *Monitor) CheckTime(start time.Time) error {
	elapsed := m.now().Sub(start)
	if elapsed > m.limits.MaxProcessingTime {
		return m.exceeded(ResourceProcessingTime, m.limits.MaxProcessingTime.Seconds(), elapsed.Seconds())
	}
	return nil
}

// CheckResultCount fails when n is above the result-count ceiling.
func (m *Monitor) CheckResultCount(n int) error {
	if n > m.limits.MaxResultCount {
		return m.exceeded(ResourceResultCount, float64(m.limits.MaxResultCount), float64(n))
	}
	return nil
}

func (m *Monitor) exceeded(r Resource, limit, actual float64) error {
	metrics.ResourceExceeded(string(r))
	m.logger.Warn("resource ceiling crossed", "resource", r, "limit", limit, "actual", actual)
	return &ResourceExceededError{Resource: r, Limit: limit, Actual: actual}
}

// Begin starts a scoped operation whose time checks are measured from now.
func (m *Monitor) Begin() *Operation {
	op := &Operation{monitor: m, start: m.now()}
	if used, err := m.memory(); err == nil {
		op.startMemory = used
	}
	return op
}

// Operation bundles the three checks for use inside a long-running loop.
type Operation struct {
	monitor     *Monitor
	start       time.Time
	startMemory float64
}

// CheckMemory checks memory usage against the ceiling.
func (o *Operation) CheckMemory() error { return o.monitor.CheckMemory() }

// CheckTime checks the time elapsed since the operation began.
func (o *Operation) CheckTime() error { return o.monitor.CheckTime(o.start) }

// CheckResultCount checks n against the result-count ceiling.
func (o *Operation) CheckResultCount(n int) error { return o.monitor.CheckResultCount(n) }

// CheckAll runs the memory, time and result-count checks in that order.
func (o *Operation) CheckAll(n int) error {
	if err := o.CheckMemory(); err != nil {
		return err
	}
	if err := o.CheckTime(); err != nil {
		return err
	}
	return o.CheckResultCount(n)
}

// Elapsed returns the time since the operation began.
func (o *Operation) Elapsed() time.Duration { return o.monitor.now().Sub(o.start) }

// MemoryDelta returns the change in memory usage since the operation began.
func (o *Operation) MemoryDelta() float64 {
	used, err := o.monitor.memory()
	if err != nil {
		return 0
	}
	return used - o.startMemory
}
