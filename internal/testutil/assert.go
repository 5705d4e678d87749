package testutil

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wesm/mailquery/internal/mailstore"
)

// AssertEqualSlices fails the test with a diff when got differs from want.
func AssertEqualSlices[T comparable](t *testing.T, got []T, want ...T) {
	t.Helper()
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("slice mismatch (-want +got):\n%s", diff)
	}
}

// AssertStrings is AssertEqualSlices for strings.
func AssertStrings(t *testing.T, got []string, want ...string) {
	t.Helper()
	AssertEqualSlices(t, got, want...)
}

// AssertIDs checks the ids of emails, in order.
func AssertIDs(t *testing.T, emails []mailstore.Email, want ...string) {
	t.Helper()
	AssertEqualSlices(t, EmailIDs(emails), want...)
}

// MustNoErr fails the test immediately if err is non-nil.
// Use this for setup operations where failure means the test cannot proceed.
func MustNoErr(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}
