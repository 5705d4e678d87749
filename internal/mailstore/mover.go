package mailstore

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// MoveResult is the outcome of moving one message.
type MoveResult struct {
	ID    string `json:"id"`
	Moved bool   `json:"moved"`
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// MoveMany moves each id to target with at most concurrency calls in
// flight. One result is returned per id, in input order; a failed move
// never stops the others. Stores that are not safe for concurrent use
// should be called with concurrency 1.
func MoveMany(ctx context.Context, s Store, ids []string, target string, concurrency int) []MoveResult {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]MoveResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, id := range ids {
		g.Go(func() error {
			moved, err := s.MoveEmail(gctx, id, target)
			results[i] = MoveResult{ID: id, Moved: moved && err == nil, Err: err}
			if err != nil {
				results[i].Error = err.Error()
			}
			// Per-message failures are reported, not propagated.
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// MoveSummary counts successes and failures.
func MoveSummary(results []MoveResult) (moved, failed int) {
	for _, r := range results {
		if r.Moved {
			moved++
		} else {
			failed++
		}
	}
	return moved, failed
}
