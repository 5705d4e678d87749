package testutil

import (
	"fmt"
	"time"

	"github.com/wesm/mailquery/internal/mailstore"
)

// BaseTime is the default received time of built messages.
var BaseTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// EmailBuilder provides a fluent API for constructing mailstore.Email in tests.
type EmailBuilder struct {
	e mailstore.Email
}

// NewEmail creates a builder with sensible defaults.
func NewEmail(id string) *EmailBuilder {
	return &EmailBuilder{
		e: mailstore.Email{
			ID:          id,
			Subject:     "Test Subject",
			SenderEmail: "sender@example.com",
			SenderName:  "Sender",
			Recipients:  []string{"user@example.com"},
			ReceivedAt:  BaseTime,
			Importance:  mailstore.ImportanceNormal,
			FolderPath:  "Inbox",
		},
	}
}

func (b *EmailBuilder) Subject(s string) *EmailBuilder {
	b.e.Subject = s
	return b
}

func (b *EmailBuilder) From(addr, name string) *EmailBuilder {
	b.e.SenderEmail = addr
	b.e.SenderName = name
	return b
}

func (b *EmailBuilder) To(recipients ...string) *EmailBuilder {
	b.e.Recipients = recipients
	return b
}

func (b *EmailBuilder) ReceivedAt(t time.Time) *EmailBuilder {
	b.e.ReceivedAt = t
	return b
}

// DaysAgo sets the received time relative to BaseTime.
func (b *EmailBuilder) DaysAgo(n int) *EmailBuilder {
	b.e.ReceivedAt = BaseTime.AddDate(0, 0, -n)
	return b
}

func (b *EmailBuilder) Read() *EmailBuilder {
	b.e.IsRead = true
	return b
}

func (b *EmailBuilder) Unread() *EmailBuilder {
	b.e.IsRead = false
	return b
}

// Attachments sets the attachment count and flag together.
func (b *EmailBuilder) Attachments(n int) *EmailBuilder {
	b.e.AttachmentCount = n
	b.e.HasAttachments = n > 0
	return b
}

func (b *EmailBuilder) Importance(i mailstore.Importance) *EmailBuilder {
	b.e.Importance = i
	return b
}

func (b *EmailBuilder) Folder(path string) *EmailBuilder {
	b.e.FolderPath = path
	return b
}

func (b *EmailBuilder) Build() mailstore.Email {
	e := b.e
	e.Recipients = append([]string(nil), b.e.Recipients...)
	return e
}

// EmailIDs returns the ids of emails in order.
func EmailIDs(emails []mailstore.Email) []string {
	ids := make([]string, len(emails))
	for i, e := range emails {
		ids[i] = e.ID
	}
	return ids
}

// StoreWith returns a MemoryStore holding emails.
func StoreWith(emails ...mailstore.Email) *mailstore.MemoryStore {
	s := mailstore.NewMemoryStore()
	for _, e := range emails {
		s.AddEmail(e)
	}
	return s
}

// NumberedEmails builds n messages with ids "m0000".."m{n-1}" in folder,
// one minute apart.
func NumberedEmails(n int, folder string) []mailstore.Email {
	out := make([]mailstore.Email, n)
	for i := range out {
		out[i] = NewEmail(fmt.Sprintf("m%04d", i)).
			Folder(folder).
			ReceivedAt(BaseTime.Add(time.Duration(i) * time.Minute)).
			Build()
	}
	return out
}
