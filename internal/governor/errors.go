package governor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Typed errors below match these via errors.Is.
var (
	ErrResourceExceeded = errors.New("resource limit exceeded")
	ErrTimeout          = errors.New("operation timed out")
	ErrCancelled        = errors.New("operation cancelled")
	ErrConnection       = errors.New("connection failed")
)

// Resource identifies which ceiling was crossed.
type Resource string

const (
	ResourceMemory         Resource = "memory"
	ResourceProcessingTime Resource = "processing_time"
	ResourceResultCount    Resource = "result_count"
)

// ResourceExceededError reports a crossed ceiling together with the
// configured limit and the observed value.
type ResourceExceededError struct {
	Resource Resource
	Limit    float64
	Actual   float64
}

func (e *ResourceExceededError) Error() string {
	switch e.Resource {
	case ResourceMemory:
		return fmt.Sprintf("memory limit exceeded: %.1fMB > %.0fMB", e.Actual, e.Limit)
	case ResourceProcessingTime:
		return fmt.Sprintf("processing time limit exceeded: %.1fs > %.0fs", e.Actual, e.Limit)
	case ResourceResultCount:
		return fmt.Sprintf("result count limit exceeded: %.0f > %.0f", e.Actual, e.Limit)
	default:
		return fmt.Sprintf("%s limit exceeded: %v > %v", e.Resource, e.Actual, e.Limit)
	}
}

func (e *ResourceExceededError) Is(target error) bool { return target == ErrResourceExceeded }

// TimeoutError reports that a guarded operation did not finish within its
// ceiling. The operation itself may still be running.
type TimeoutError struct {
	Operation string
	Ceiling   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Operation, e.Ceiling)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ConnectionError marks a failure talking to the mail store. It is the only
// error class eligible for automatic retry.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connection error: %s", e.Op)
	}
	return fmt.Sprintf("connection error: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// NewConnectionError wraps err as a connection failure for op.
func NewConnectionError(op string, err error) error {
	return &ConnectionError{Op: op, Err: err}
}

// IsConnectionError reports whether err is classified as a connection failure.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection)
}

// cancelledError joins ErrCancelled with the underlying cause so callers can
// match either.
type cancelledError struct {
	cause error
}

func (e *cancelledError) Error() string {
	if e.cause == nil {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("%s: %v", ErrCancelled, e.cause)
}

func (e *cancelledError) Is(target error) bool { return target == ErrCancelled }

func (e *cancelledError) Unwrap() error { return e.cause }

// Category groups errors by how they should be handled.
type Category string

const (
	CategoryTransient Category = "transient"
	CategoryPermanent Category = "permanent"
	CategoryUser      Category = "user_error"
	CategorySystem    Category = "system_error"
)

// userError is implemented by validation errors from other packages so they
// can be classified without an import cycle.
type userError interface {
	UserError() bool
}

// Classify assigns err to a handling category.
func Classify(err error) Category {
	if err == nil {
		return ""
	}
	var ue userError
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrConnection):
		return CategoryTransient
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return CategoryUser
	case errors.As(err, &ue) && ue.UserError():
		return CategoryUser
	case errors.Is(err, ErrResourceExceeded):
		return CategorySystem
	default:
		return CategoryPermanent
	}
}

// Transient reports whether err may succeed if retried by the caller.
func Transient(err error) bool {
	return Classify(err) == CategoryTransient
}

// Suggestion returns a short hint for presenting err to a user.
func Suggestion(err error) string {
	var (
		te *TimeoutError
		re *ResourceExceededError
	)
	switch {
	case errors.As(err, &te):
		return fmt.Sprintf("Operation timed out after %s. Large folders may take longer to process.", te.Ceiling)
	case errors.Is(err, ErrConnection):
		return "Please ensure the mail server is reachable and try again."
	case errors.As(err, &re):
		switch re.Resource {
		case ResourceResultCount:
			return "Narrow the search with more filters or raise limits.max_result_count."
		case ResourceMemory:
			return "Use --stream with a smaller --chunk-size or raise limits.max_memory_mb."
		default:
			return "Narrow the search or raise limits.max_processing_time_seconds."
		}
	case errors.Is(err, ErrCancelled):
		return "The operation was cancelled."
	default:
		return "Use 'mailquery --help' for usage information."
	}
}
