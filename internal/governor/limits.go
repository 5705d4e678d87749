// Package governor enforces resource ceilings, timeouts, cancellation and
// connection health around query execution.
package governor

import (
	"fmt"
	"time"
)

// Default ceilings applied when a Limits field is left at zero.
const (
	DefaultMaxMemoryMB       = 1024.0
	DefaultMaxProcessingTime = 300 * time.Second
	DefaultMaxResultCount    = 50000
)

// Limits configures the ceilings for a single logical query.
// A zero field falls back to its default; Limits is treated as immutable
// once handed to a Monitor.
type Limits struct {
	MaxMemoryMB       float64
	MaxProcessingTime time.Duration
	MaxResultCount    int
}

// DefaultLimits returns the stock ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxMemoryMB:       DefaultMaxMemoryMB,
		MaxProcessingTime: DefaultMaxProcessingTime,
		MaxResultCount:    DefaultMaxResultCount,
	}
}

// withDefaults fills zero fields from DefaultLimits.
func (l Limits) withDefaults() Limits {
	if l.MaxMemoryMB <= 0 {
		l.MaxMemoryMB = DefaultMaxMemoryMB
	}
	if l.MaxProcessingTime <= 0 {
		l.MaxProcessingTime = DefaultMaxProcessingTime
	}
	if l.MaxResultCount <= 0 {
		l.MaxResultCount = DefaultMaxResultCount
	}
	return l
}

func (l Limits) String() string {
	return fmt.Sprintf("memory=%.0fMB time=%s results=%d", l.MaxMemoryMB, l.MaxProcessingTime, l.MaxResultCount)
}

// Operation names used to pick a timeout ceiling.
const (
	OpDefault    = "default"
	OpFolderRead = "folder_read"
	OpSearch     = "search"
	OpMove       = "move"
)

// Timeouts holds per-operation wall-clock ceilings.
type Timeouts struct {
	Default    time.Duration
	FolderRead time.Duration
	Search     time.Duration
	Move       time.Duration
}

// DefaultTimeouts returns the stock per-operation ceilings.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Default:    30 * time.Second,
		FolderRead: 60 * time.Second,
		Search:     45 * time.Second,
		Move:       30 * time.Second,
	}
}

// For returns the ceiling for the named operation, falling back to Default
// for unknown names or unset entries.
func (t Timeouts) For(op string) time.Duration {
	var d time.Duration
	switch op {
	case OpFolderRead:
		d = t.FolderRead
	case OpSearch:
		d = t.Search
	case OpMove:
		d = t.Move
	}
	if d <= 0 {
		d = t.Default
	}
	if d <= 0 {
		d = DefaultTimeouts().Default
	}
	return d
}

// Policy returns a TimeoutPolicy for the named operation.
func (t Timeouts) Policy(op string) *TimeoutPolicy {
	return NewTimeoutPolicy(op, t.For(op))
}
