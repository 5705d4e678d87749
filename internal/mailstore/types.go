// Package mailstore defines the message and folder records the query engine
// works on, the Store interface it reads them through, and an in-memory
// Store used for tests and demos.
package mailstore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Importance is the sender-assigned priority of a message.
type Importance string

const (
	ImportanceHigh   Importance = "High"
	ImportanceNormal Importance = "Normal"
	ImportanceLow    Importance = "Low"
)

// ErrInvalidImportance is returned for levels other than high, normal and low.
var ErrInvalidImportance = errors.New("invalid importance")

// NormalizeImportance title-cases s without validating it. A Caser keeps
// state between calls, so each call builds its own.
func NormalizeImportance(s string) Importance {
	return Importance(cases.Title(language.Und).String(strings.TrimSpace(s)))
}

// ParseImportance accepts high, normal or low in any case.
func ParseImportance(s string) (Importance, error) {
	imp := NormalizeImportance(s)
	switch imp {
	case ImportanceHigh, ImportanceNormal, ImportanceLow:
		return imp, nil
	}
	return "", fmt.Errorf("%w: %q (want high, normal or low)", ErrInvalidImportance, s)
}

// Rank orders importance levels: High=3, Normal=2, Low=1, anything else 0.
func (i Importance) Rank() int {
	switch i {
	case ImportanceHigh:
		return 3
	case ImportanceNormal:
		return 2
	case ImportanceLow:
		return 1
	default:
		return 0
	}
}

// Email is a message record as handed over by a Store.
type Email struct {
	ID              string     `json:"id"`
	Subject         string     `json:"subject"`
	SenderEmail     string     `json:"sender_email"`
	SenderName      string     `json:"sender_name"`
	Recipients      []string   `json:"recipients"`
	ReceivedAt      time.Time  `json:"received_time"`
	IsRead          bool       `json:"is_read"`
	HasAttachments  bool       `json:"has_attachments"`
	AttachmentCount int        `json:"attachment_count"`
	Importance      Importance `json:"importance"`
	FolderPath      string     `json:"folder_path"`
	Size            int64      `json:"size,omitempty"`
}

// Sender formats the sender as "Name <address>", or just the address when
// there is no display name.
func (e *Email) Sender() string {
	if e.SenderName == "" || e.SenderName == e.SenderEmail {
		return e.SenderEmail
	}
	return fmt.Sprintf("%s <%s>", e.SenderName, e.SenderEmail)
}

// Folder is a mailbox in a hierarchical, "/"-separated tree.
type Folder struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	Parent      string `json:"parent,omitempty"`
	Depth       int    `json:"depth"`
	TotalCount  int    `json:"total_count"`
	UnreadCount int    `json:"unread_count"`
}

// PathSeparator separates folder path components.
const PathSeparator = "/"

// JoinPath returns the path of child name under parent.
func JoinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + PathSeparator + name
}

// BaseName returns the last component of a folder path.
func BaseName(path string) string {
	if i := strings.LastIndex(path, PathSeparator); i >= 0 {
		return path[i+1:]
	}
	return path
}
