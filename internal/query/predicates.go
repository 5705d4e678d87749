package query

import (
	"strings"

	"github.com/wesm/mailquery/internal/mailstore"
	"github.com/wesm/mailquery/internal/search"
)

// Filter names, used as selectivity table keys and in logs.
const (
	FilterSender        = "sender"
	FilterSubject       = "subject"
	FilterFolder        = "folder_path"
	FilterSince         = "since"
	FilterUntil         = "until"
	FilterIsRead        = "is_read"
	FilterIsUnread      = "is_unread"
	FilterHasAttachment = "has_attachment"
	FilterNoAttachment  = "no_attachment"
	FilterImportance    = "importance"
	FilterNotSender     = "not_sender"
	FilterNotSubject    = "not_subject"
)

// Predicate is one independent, stateless per-message test.
type Predicate struct {
	Name  string
	Value string // filter value as given, for selectivity heuristics
	Match func(e *mailstore.Email) bool
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}

// Predicates returns the active predicates of c in a fixed order, which
// is also their tie-break priority. The read-state and attachment pairs
// are exclusive: when both flags of a pair are set only the first (is_read,
// has_attachment) is applied and the other is ignored.
func Predicates(c *search.Criteria) []Predicate {
	var preds []Predicate
	add := func(name, value string, match func(e *mailstore.Email) bool) {
		preds = append(preds, Predicate{Name: name, Value: value, Match: match})
	}

	if c.Sender != "" {
		v := strings.ToLower(c.Sender)
		add(FilterSender, c.Sender, func(e *mailstore.Email) bool {
			return containsFold(e.SenderEmail, v) || containsFold(e.SenderName, v)
		})
	}
	if c.Subject != "" {
		v := strings.ToLower(c.Subject)
		add(FilterSubject, c.Subject, func(e *mailstore.Email) bool {
			return containsFold(e.Subject, v)
		})
	}
	if !c.AllFolders() {
		folder := c.Folder
		add(FilterFolder, folder, func(e *mailstore.Email) bool {
			return e.FolderPath == folder
		})
	}
	if c.Since != nil {
		since := *c.Since
		add(FilterSince, since.String(), func(e *mailstore.Email) bool {
			return !e.ReceivedAt.Before(since)
		})
	}
	if c.Until != nil {
		until := *c.Until
		add(FilterUntil, until.String(), func(e *mailstore.Email) bool {
			return !e.ReceivedAt.After(until)
		})
	}
	switch {
	case c.IsRead:
		add(FilterIsRead, "true", func(e *mailstore.Email) bool { return e.IsRead })
	case c.IsUnread:
		add(FilterIsUnread, "true", func(e *mailstore.Email) bool { return !e.IsRead })
	}
	switch {
	case c.HasAttachment:
		add(FilterHasAttachment, "true", func(e *mailstore.Email) bool { return e.HasAttachments })
	case c.NoAttachment:
		add(FilterNoAttachment, "true", func(e *mailstore.Email) bool { return !e.HasAttachments })
	}
	if c.Importance != "" {
		want := mailstore.NormalizeImportance(c.Importance)
		add(FilterImportance, c.Importance, func(e *mailstore.Email) bool {
			return mailstore.NormalizeImportance(string(e.Importance)) == want
		})
	}
	if c.NotSender != "" {
		v := strings.ToLower(c.NotSender)
		add(FilterNotSender, c.NotSender, func(e *mailstore.Email) bool {
			return !containsFold(e.SenderEmail, v) && !containsFold(e.SenderName, v)
		})
	}
	if c.NotSubject != "" {
		v := strings.ToLower(c.NotSubject)
		add(FilterNotSubject, c.NotSubject, func(e *mailstore.Email) bool {
			return !containsFold(e.Subject, v)
		})
	}
	return preds
}
