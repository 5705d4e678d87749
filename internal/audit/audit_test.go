package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "audit.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func steppingClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	s.now = steppingClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	criteria := map[string]any{"sender": "alice", "is_unread": true}
	if err := s.RecordSearch(ctx, Search{Operation: "search", User: "tester", Criteria: criteria, ResultCount: 3}); err != nil {
		t.Fatalf("RecordSearch: %v", err)
	}
	if err := s.RecordPerformance(ctx, Performance{Operation: "search", Duration: 1500 * time.Millisecond, MemoryUsedMB: 2.5, ResultCount: 3}); err != nil {
		t.Fatalf("RecordPerformance: %v", err)
	}
	if err := s.RecordSearch(ctx, Search{Operation: "move", User: "tester", Err: errors.New("folder not found")}); err != nil {
		t.Fatalf("RecordSearch: %v", err)
	}

	entries, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	// Newest first.
	failed, perf, search := entries[0], entries[1], entries[2]
	if failed.Operation != "move" || failed.Details["success"] != false || failed.Details["error"] != "folder not found" {
		t.Errorf("failed entry = %+v", failed)
	}
	if perf.Kind != KindPerformance || perf.Details["duration_seconds"] != 1.5 || perf.Details["memory_used_mb"] != 2.5 {
		t.Errorf("performance entry = %+v", perf)
	}
	if search.Kind != KindFilter || search.User != "tester" || search.ResultCount != 3 {
		t.Errorf("search entry = %+v", search)
	}
	filters, ok := search.Details["filters"].(map[string]any)
	if !ok || filters["sender"] != "alice" || filters["is_unread"] != true {
		t.Errorf("filters = %#v", search.Details["filters"])
	}
	if !search.RecordedAt.Equal(time.Date(2025, 6, 1, 9, 0, 1, 0, time.UTC)) {
		t.Errorf("RecordedAt = %v", search.RecordedAt)
	}
	if search.ID == "" || search.ID == perf.ID {
		t.Errorf("ids not unique: %q %q", search.ID, perf.ID)
	}
}

func TestRecentLimit(t *testing.T) {
	s := openTestStore(t)
	s.now = steppingClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	for i := range 5 {
		if err := s.RecordSearch(ctx, Search{Operation: "search", ResultCount: i}); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].ResultCount != 4 || entries[1].ResultCount != 3 {
		t.Errorf("Recent(2) = %+v", entries)
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RecordSearch(context.Background(), Search{Operation: "search"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	entries, err := s.Recent(context.Background(), 0)
	if err != nil || len(entries) != 1 {
		t.Errorf("Recent after reopen = %d entries, %v", len(entries), err)
	}
}

func TestOpenRejectsNonDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	if err := os.WriteFile(path, bytes.Repeat([]byte("not sqlite "), 200), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("Open should fail on a non-database file")
	}
}

type failingRecorder struct{}

func (failingRecorder) RecordSearch(context.Context, Search) error {
	return errors.New("disk full")
}

func (failingRecorder) RecordPerformance(context.Context, Performance) error {
	return errors.New("disk full")
}

func TestBestEffortSwallowsErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	BestEffort(failingRecorder{}, logger).Record(context.Background(),
		Search{Operation: "search"}, Performance{Operation: "search"})

	if got := strings.Count(buf.String(), "disk full"); got != 2 {
		t.Errorf("logged %d failures, want 2:\n%s", got, buf.String())
	}
}

func TestBestEffortWritesBothEntries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	BestEffort(s, nil).Record(ctx,
		Search{Operation: "move", User: "tester", ResultCount: 2},
		Performance{Operation: "move", Duration: time.Second, ResultCount: 2})

	entries, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	if err := r.RecordSearch(context.Background(), Search{}); err != nil {
		t.Error(err)
	}
}
