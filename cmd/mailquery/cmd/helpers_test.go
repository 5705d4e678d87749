package cmd

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/wesm/mailquery/internal/audit"
	"github.com/wesm/mailquery/internal/config"
	"github.com/wesm/mailquery/internal/governor"
	"github.com/wesm/mailquery/internal/mailstore"
	"github.com/wesm/mailquery/internal/query"
	"github.com/wesm/mailquery/internal/testutil"
)

// useTestConfig installs default settings rooted in a temp dir and a
// discarding logger for the duration of the test.
//
// Tests that call it modify package-level state and must NOT use t.Parallel().
func useTestConfig(t *testing.T) *config.Config {
	t.Helper()
	savedCfg, savedLogger := cfg, logger
	t.Cleanup(func() { cfg, logger = savedCfg, savedLogger })
	cfg = config.Default(t.TempDir())
	logger = slog.New(slog.DiscardHandler)
	return cfg
}

// sampleEngine runs over the sample mailbox with a fixed memory reading.
func sampleEngine(t *testing.T) *query.Engine {
	t.Helper()
	monitor := governor.NewMonitor(governor.Limits{},
		governor.WithMemoryReader(func() (float64, error) { return 1, nil }))
	return query.NewEngine(mailstore.NewSampleStore(testutil.BaseTime),
		query.WithLogger(logger), query.WithMonitor(monitor))
}

// memoryRecorder keeps audit records in memory.
type memoryRecorder struct {
	mu       sync.Mutex
	searches []audit.Search
	perf     []audit.Performance
}

func (m *memoryRecorder) RecordSearch(_ context.Context, s audit.Search) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, s)
	return nil
}

func (m *memoryRecorder) RecordPerformance(_ context.Context, p audit.Performance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.perf = append(m.perf, p)
	return nil
}
