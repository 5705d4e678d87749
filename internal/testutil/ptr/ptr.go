// Package ptr provides pointer and date helpers for building criteria in
// tests.
package ptr

import "time"

// To returns a pointer to v.
func To[T any](v T) *T { return &v }

// Time returns a pointer to t, for Criteria.Since and Criteria.Until.
func Time(t time.Time) *time.Time { return To(t) }

// Date returns midnight UTC of the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

