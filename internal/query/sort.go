package query

import (
	"fmt"
	"slices"
	"strings"

	"github.com/wesm/mailquery/internal/mailstore"
)

// SortField is the message field to sort by.
type SortField string

const (
	SortByReceivedDate SortField = "received_date"
	SortBySubject      SortField = "subject"
	SortBySender       SortField = "sender"
	SortByImportance   SortField = "importance"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortField validates a user-supplied sort field. An empty value is
// accepted and means the default ordering.
func ParseSortField(s string) (SortField, error) {
	f := SortField(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case "", SortByReceivedDate, SortBySubject, SortBySender, SortByImportance:
		return f, nil
	}
	return "", fmt.Errorf("unknown sort field %q (want received_date, subject, sender or importance)", s)
}

// ParseSortOrder validates a user-supplied sort order. Empty means desc.
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return SortDesc, nil
	case SortAsc, SortDesc:
		return o, nil
	}
	return "", fmt.Errorf("unknown sort order %q (want asc or desc)", s)
}

func compareBy(field SortField) func(a, b mailstore.Email) int {
	switch field {
	case SortByReceivedDate:
		return func(a, b mailstore.Email) int { return a.ReceivedAt.Compare(b.ReceivedAt) }
	case SortBySubject:
		return func(a, b mailstore.Email) int {
			return strings.Compare(strings.ToLower(a.Subject), strings.ToLower(b.Subject))
		}
	case SortBySender:
		return func(a, b mailstore.Email) int {
			return strings.Compare(strings.ToLower(a.SenderEmail), strings.ToLower(b.SenderEmail))
		}
	case SortByImportance:
		return func(a, b mailstore.Email) int { return a.Importance.Rank() - b.Importance.Rank() }
	}
	return nil
}

// Sort returns emails ordered by field. An empty field sorts by received
// date, newest first. An unrecognized field returns emails unchanged,
// without error. Equal elements keep their input order. The input slice is
// never modified.
func Sort(emails []mailstore.Email, field SortField, order SortOrder) []mailstore.Email {
	if field == "" {
		field, order = SortByReceivedDate, SortDesc
	}
	cmpFn := compareBy(field)
	if cmpFn == nil {
		return emails
	}
	if order != SortAsc {
		asc := cmpFn
		cmpFn = func(a, b mailstore.Email) int { return asc(b, a) }
	}
	out := slices.Clone(emails)
	slices.SortStableFunc(out, cmpFn)
	return out
}
