package mailstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("not found")

// NotFoundError reports an unknown folder or message.
type NotFoundError struct {
	Kind string // "folder" or "email"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// UserError marks lookups of unknown names as caller mistakes.
func (e *NotFoundError) UserError() bool { return true }

// FolderNotFound returns a NotFoundError for a folder path.
func FolderNotFound(path string) error { return &NotFoundError{Kind: "folder", Key: path} }

// EmailNotFound returns a NotFoundError for a message id.
func EmailNotFound(id string) error { return &NotFoundError{Kind: "email", Key: id} }

// Store is the mail-store collaborator the query engine reads from.
// Implementations represent one logical connection and are not required to
// support concurrent callers unless documented otherwise.
type Store interface {
	// ListFolders returns every folder in enumeration order.
	ListFolders(ctx context.Context) ([]Folder, error)
	// ListEmails returns the messages in one folder, or a NotFoundError.
	ListEmails(ctx context.Context, folderPath string) ([]Email, error)
	// GetEmail returns one message by id, or a NotFoundError.
	GetEmail(ctx context.Context, id string) (*Email, error)
	// MoveEmail moves a message and reports whether it was moved.
	MoveEmail(ctx context.Context, id, targetFolder string) (bool, error)
}

// Pinger is implemented by stores that can probe their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck returns a probe for s: Ping when s supports it, otherwise a
// cheap ListFolders call.
func HealthCheck(s Store) func(ctx context.Context) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping
	}
	return func(ctx context.Context) error {
		_, err := s.ListFolders(ctx)
		return err
	}
}

// Closer is implemented by stores holding a live connection.
type Closer interface {
	Close() error
}
