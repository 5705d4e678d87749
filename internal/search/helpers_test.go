package search

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// fixedNow is a Wednesday afternoon.
var fixedNow = time.Date(2025, 6, 18, 15, 30, 0, 0, time.UTC)

func utcDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func timePtr(v time.Time) *time.Time { return &v }

func parserAt(now time.Time) *DateParser {
	return &DateParser{Now: func() time.Time { return now }}
}

// assertCriteriaEqual compares two Criteria structs.
func assertCriteriaEqual(t *testing.T, got, want *Criteria) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Criteria mismatch (-want +got):\n%s", diff)
	}
}
