package query

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/wesm/mailquery/internal/governor"
	"github.com/wesm/mailquery/internal/mailstore"
	"github.com/wesm/mailquery/internal/metrics"
)

const (
	// DefaultChunkSize is the chunk size used when none is given.
	DefaultChunkSize = 50
	// LargeResultThreshold is the result count above which consumers show
	// progress while streaming.
	LargeResultThreshold = 1000
)

// ErrStreamConsumed is yielded when a stream is iterated a second time.
var ErrStreamConsumed = errors.New("stream already consumed")

// MemoryChecker is the memory ceiling check run before each chunk.
// *governor.Monitor implements it.
type MemoryChecker interface {
	CheckMemory() error
}

// StreamingPaginator hands out a result set in bounded chunks, checking
// the memory ceiling before each one.
type StreamingPaginator struct {
	checker MemoryChecker
	logger  *slog.Logger
}

// NewStreamingPaginator creates a StreamingPaginator. A nil checker
// disables the memory check.
func NewStreamingPaginator(checker MemoryChecker, logger *slog.Logger) *StreamingPaginator {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamingPaginator{checker: checker, logger: logger}
}

// Stream returns a single-pass sequence of chunks of at most chunkSize
// emails whose concatenation equals emails. Before each chunk the memory
// ceiling and ctx are checked; on failure the error is yielded and the
// sequence ends, leaving earlier chunks valid. Chunks share the backing
// array of emails but have their capacity clipped.
func (s *StreamingPaginator) Stream(ctx context.Context, emails []mailstore.Email, chunkSize int) iter.Seq2[[]mailstore.Email, error] {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	var used atomic.Bool

	return func(yield func([]mailstore.Email, error) bool) {
		if used.Swap(true) {
			yield(nil, ErrStreamConsumed)
			return
		}
		for start := 0; start < len(emails); start += chunkSize {
			if err := governor.CheckCancelled(ctx); err != nil {
				yield(nil, err)
				return
			}
			if s.checker != nil {
				if err := s.checker.CheckMemory(); err != nil {
					s.logger.Warn("stream stopped", "delivered", start, "total", len(emails), "error", err)
					yield(nil, err)
					return
				}
			}
			end := min(start+chunkSize, len(emails))
			metrics.StreamChunk()
			if !yield(emails[start:end:end], nil) {
				return
			}
		}
	}
}

// ShouldReportProgress reports whether a result of total items is large
// enough to show progress. A non-positive threshold uses
// LargeResultThreshold.
func ShouldReportProgress(total, threshold int) bool {
	if threshold <= 0 {
		threshold = LargeResultThreshold
	}
	return total > threshold
}
