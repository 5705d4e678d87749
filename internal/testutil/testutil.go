// Package testutil provides test helpers for mailquery tests.
//
// The package is organized into focused files:
//   - assert.go: assertion helpers (MustNoErr, AssertStrings, AssertIDs)
//   - builders.go: mailstore.Email builders and sample sets
//
// Subpackages email and ptr build raw message headers and criteria
// pointers.
package testutil
