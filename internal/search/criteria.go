package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/wesm/mailquery/internal/mailstore"
)

// AllFolders is the folder scope meaning every folder.
const AllFolders = "all"

// ErrInvalidImportance is returned for importance values other than
// high, normal and low.
var ErrInvalidImportance = mailstore.ErrInvalidImportance

// Criteria is the set of optional filters for one search. Zero-valued
// fields are inactive; active ones combine with AND semantics.
// Criteria is built once per query and not modified afterwards.
type Criteria struct {
	Sender        string     `json:"sender,omitempty"`
	Subject       string     `json:"subject,omitempty"`
	Folder        string     `json:"folder,omitempty"`
	Since         *time.Time `json:"since,omitempty"`
	Until         *time.Time `json:"until,omitempty"`
	IsRead        bool       `json:"is_read,omitempty"`
	IsUnread      bool       `json:"is_unread,omitempty"`
	HasAttachment bool       `json:"has_attachment,omitempty"`
	NoAttachment  bool       `json:"no_attachment,omitempty"`
	Importance    string     `json:"importance,omitempty"`
	NotSender     string     `json:"not_sender,omitempty"`
	NotSubject    string     `json:"not_subject,omitempty"`
}

// AllFolders reports whether the search spans every folder.
func (c *Criteria) AllFolders() bool {
	return c.Folder == "" || strings.EqualFold(c.Folder, AllFolders)
}

// IsEmpty reports whether no filter other than folder scope is set.
func (c *Criteria) IsEmpty() bool {
	return c.Sender == "" && c.Subject == "" &&
		c.Since == nil && c.Until == nil &&
		!c.IsRead && !c.IsUnread &&
		!c.HasAttachment && !c.NoAttachment &&
		c.Importance == "" && c.NotSender == "" && c.NotSubject == ""
}

// CriteriaError reports an invalid filter value.
type CriteriaError struct {
	Field string
	Err   error
}

func (e *CriteriaError) Error() string   { return fmt.Sprintf("%s: %v", e.Field, e.Err) }
func (e *CriteriaError) Unwrap() error   { return e.Err }
func (e *CriteriaError) UserError() bool { return true }

// Validate checks the criteria before any store access: the date range
// must be ordered and importance, when set, must be a known level.
func (c *Criteria) Validate() error {
	if err := ValidateDateRange(c.Since, c.Until); err != nil {
		return err
	}
	if c.Importance != "" {
		if _, err := mailstore.ParseImportance(c.Importance); err != nil {
			return &CriteriaError{Field: "importance", Err: err}
		}
	}
	return nil
}

// String summarizes the active filters for logs.
func (c *Criteria) String() string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	flag := func(k string, on bool) {
		if on {
			parts = append(parts, k)
		}
	}
	add("sender", c.Sender)
	add("subject", c.Subject)
	add("folder", c.Folder)
	if c.Since != nil {
		add("since", c.Since.Format(time.RFC3339))
	}
	if c.Until != nil {
		add("until", c.Until.Format(time.RFC3339))
	}
	flag("is_read", c.IsRead)
	flag("is_unread", c.IsUnread)
	flag("has_attachment", c.HasAttachment)
	flag("no_attachment", c.NoAttachment)
	add("importance", c.Importance)
	add("not_sender", c.NotSender)
	add("not_subject", c.NotSubject)
	if len(parts) == 0 {
		return "(none)"
	}
	return strings.Join(parts, " ")
}

// Field names accepted by Parser.Set, as used for CLI flags (with dashes)
// and API query parameters.
const (
	FieldSender        = "sender"
	FieldSubject       = "subject"
	FieldFolder        = "folder"
	FieldSince         = "since"
	FieldUntil         = "until"
	FieldImportance    = "importance"
	FieldNotSender     = "not_sender"
	FieldNotSubject    = "not_subject"
	FieldIsRead        = "is_read"
	FieldIsUnread      = "is_unread"
	FieldHasAttachment = "has_attachment"
	FieldNoAttachment  = "no_attachment"
)

// Fields lists every settable field.
var Fields = []string{
	FieldSender, FieldSubject, FieldFolder, FieldSince, FieldUntil, FieldImportance,
	FieldNotSender, FieldNotSubject, FieldIsRead, FieldIsUnread, FieldHasAttachment, FieldNoAttachment,
}
