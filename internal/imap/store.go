package imap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	imap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/wesm/mailquery/internal/governor"
	"github.com/wesm/mailquery/internal/mailstore"
)

// Option is a functional option for Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// mailbox is one LIST entry, keyed in Store by its "/"-separated path.
type mailbox struct {
	name     string // server-side name
	noSelect bool
}

// Store implements mailstore.Store over a single IMAP connection. Calls are
// serialized by a mutex. Dial and I/O failures are reported as
// governor.ConnectionError and drop the connection, so the next call
// reconnects.
type Store struct {
	config   *Config
	password string
	logger   *slog.Logger

	mu        sync.Mutex
	conn      *imapclient.Client
	selected  string             // currently selected mailbox name
	mailboxes map[string]mailbox // nil until the first LIST
	order     []string           // paths in LIST order
}

// New creates a Store. No connection is made until the first call.
func New(cfg *Config, password string, opts ...Option) *Store {
	s := &Store{
		config:   cfg,
		password: password,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ mailstore.Store        = (*Store)(nil)
	_ mailstore.FolderLister = (*Store)(nil)
	_ mailstore.Pinger       = (*Store)(nil)
	_ mailstore.Closer       = (*Store)(nil)
)

// connectLocked establishes and authenticates the IMAP connection.
func (s *Store) connectLocked() error {
	if s.conn != nil {
		return nil
	}

	addr := s.config.Addr()
	s.logger.Debug("connecting to IMAP server", "addr", addr, "tls", s.config.TLS, "starttls", s.config.STARTTLS)

	opts := &imapclient.Options{}
	var (
		conn *imapclient.Client
		err  error
	)
	switch {
	case s.config.TLS:
		conn, err = imapclient.DialTLS(addr, opts)
	case s.config.STARTTLS:
		conn, err = imapclient.DialStartTLS(addr, opts)
	default:
		conn, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return fmt.Errorf("dial IMAP %s: %w", addr, err)
	}

	if err := authenticate(conn, s.config, s.password); err != nil {
		_ = conn.Close()
		return err
	}

	s.conn = conn
	s.selected = ""
	s.logger.Debug("connected and authenticated", "user", s.config.Username)
	return nil
}

// dropLocked discards a broken connection.
func (s *Store) dropLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = nil
	s.selected = ""
}

// withConn runs fn with the active connection, connecting if necessary.
// It holds the mutex for the duration of fn.
func (s *Store) withConn(ctx context.Context, op string, fn func(*imapclient.Client) error) error {
	if err := governor.CheckCancelled(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connectLocked(); err != nil {
		return governor.NewConnectionError("connect", err)
	}
	err := fn(s.conn)
	if err != nil && isConnectionFailure(err) {
		s.logger.Warn("IMAP connection failure", "op", op, "error", err)
		s.dropLocked()
		return governor.NewConnectionError(op, err)
	}
	return err
}

// isConnectionFailure reports whether err came from the transport rather
// than from a server response or a lookup.
func isConnectionFailure(err error) bool {
	var (
		imapErr *imap.Error
		nsErr   *NoSelectError
	)
	switch {
	case errors.As(err, &imapErr),
		errors.As(err, &nsErr),
		errors.Is(err, mailstore.ErrNotFound),
		errors.Is(err, governor.ErrCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// NoSelectError reports a move into a folder that cannot hold messages.
type NoSelectError struct {
	Path string
}

func (e *NoSelectError) Error() string {
	return fmt.Sprintf("folder %s cannot hold messages", e.Path)
}

func (e *NoSelectError) UserError() bool { return true }

// selectLocked selects a mailbox if not already selected.
func (s *Store) selectLocked(name string) error {
	if s.selected == name {
		return nil
	}
	if _, err := s.conn.Select(name, nil).Wait(); err != nil {
		return fmt.Errorf("SELECT %q: %w", name, err)
	}
	s.selected = name
	return nil
}

// mailboxesLocked returns all mailboxes by path, caching the LIST result.
func (s *Store) mailboxesLocked() (map[string]mailbox, error) {
	if s.mailboxes != nil {
		return s.mailboxes, nil
	}

	items, err := s.conn.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("LIST: %w", err)
	}

	s.mailboxes = make(map[string]mailbox, len(items))
	s.order = s.order[:0]
	for _, item := range items {
		path := toPath(item.Mailbox, item.Delim)
		if _, dup := s.mailboxes[path]; dup {
			continue
		}
		s.mailboxes[path] = mailbox{
			name:     item.Mailbox,
			noSelect: hasAttr(item.Attrs, imap.MailboxAttrNoSelect) || hasAttr(item.Attrs, imap.MailboxAttrNonExistent),
		}
		s.order = append(s.order, path)
	}
	s.logger.Debug("listed mailboxes", "count", len(s.order))
	return s.mailboxes, nil
}

// lookupLocked resolves a folder path to its mailbox.
func (s *Store) lookupLocked(path string) (mailbox, error) {
	boxes, err := s.mailboxesLocked()
	if err != nil {
		return mailbox{}, err
	}
	mb, ok := boxes[path]
	if !ok {
		return mailbox{}, mailstore.FolderNotFound(path)
	}
	return mb, nil
}

// ListChildFolders returns the direct children of parent in LIST order,
// with message counts from STATUS.
func (s *Store) ListChildFolders(ctx context.Context, parent string) ([]mailstore.Folder, error) {
	var out []mailstore.Folder
	err := s.withConn(ctx, "list folders", func(conn *imapclient.Client) error {
		if parent != "" {
			if _, err := s.lookupLocked(parent); err != nil {
				return err
			}
		} else if _, err := s.mailboxesLocked(); err != nil {
			return err
		}

		for _, path := range childPaths(s.order, parent) {
			f := mailstore.Folder{Path: path, Name: mailstore.BaseName(path)}
			mb := s.mailboxes[path]
			if !mb.noSelect {
				data, err := conn.Status(mb.name, &imap.StatusOptions{NumMessages: true, NumUnseen: true}).Wait()
				var imapErr *imap.Error
				switch {
				case errors.As(err, &imapErr):
					s.logger.Warn("STATUS failed", "mailbox", mb.name, "error", err)
				case err != nil:
					return fmt.Errorf("STATUS %q: %w", mb.name, err)
				default:
					if data.NumMessages != nil {
						f.TotalCount = int(*data.NumMessages)
					}
					if data.NumUnseen != nil {
						f.UnreadCount = int(*data.NumUnseen)
					}
				}
			}
			out = append(out, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListFolders walks the mailbox tree breadth first.
func (s *Store) ListFolders(ctx context.Context) ([]mailstore.Folder, error) {
	t, err := mailstore.Traverse(ctx, s, s.config.MaxFolderDepth, s.logger)
	if err != nil {
		return nil, err
	}
	return t.Folders, nil
}

// ListEmails returns every message in folderPath.
func (s *Store) ListEmails(ctx context.Context, folderPath string) ([]mailstore.Email, error) {
	var emails []mailstore.Email
	err := s.withConn(ctx, "list emails", func(conn *imapclient.Client) error {
		mb, err := s.lookupLocked(folderPath)
		if err != nil {
			return err
		}
		if mb.noSelect {
			return nil
		}
		if err := s.selectLocked(mb.name); err != nil {
			return err
		}

		data, err := conn.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
		if err != nil {
			return fmt.Errorf("UID SEARCH %q: %w", mb.name, err)
		}
		uids := data.AllUIDs()
		if len(uids) == 0 {
			return nil
		}

		msgs, err := conn.Fetch(imap.UIDSetNum(uids...), fetchOptions()).Collect()
		if err != nil {
			return fmt.Errorf("UID FETCH %q: %w", mb.name, err)
		}
		emails = make([]mailstore.Email, 0, len(msgs))
		for _, buf := range msgs {
			emails = append(emails, toEmail(folderPath, fromBuffer(buf)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return emails, nil
}

// fetchOneLocked fetches a single message from the selected mailbox.
func (s *Store) fetchOneLocked(uid imap.UID, opts *imap.FetchOptions) (*imapclient.FetchMessageBuffer, error) {
	msgs, err := s.conn.Fetch(imap.UIDSetNum(uid), opts).Collect()
	if err != nil {
		return nil, fmt.Errorf("UID FETCH %d: %w", uid, err)
	}
	for _, m := range msgs {
		if m.UID == uid {
			return m, nil
		}
	}
	return nil, nil
}

// GetEmail fetches one message by its "folder|uid" id.
func (s *Store) GetEmail(ctx context.Context, id string) (*mailstore.Email, error) {
	folder, uid, err := parseID(id)
	if err != nil {
		return nil, mailstore.EmailNotFound(id)
	}

	var email *mailstore.Email
	err = s.withConn(ctx, "get email", func(conn *imapclient.Client) error {
		mb, err := s.lookupLocked(folder)
		if err != nil || mb.noSelect {
			return mailstore.EmailNotFound(id)
		}
		if err := s.selectLocked(mb.name); err != nil {
			return err
		}
		buf, err := s.fetchOneLocked(uid, fetchOptions())
		if err != nil {
			return err
		}
		if buf == nil {
			return mailstore.EmailNotFound(id)
		}
		e := toEmail(folder, fromBuffer(buf))
		email = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return email, nil
}

// MoveEmail moves a message with UID MOVE. Moving to its current folder
// succeeds without contacting the server beyond an existence check.
func (s *Store) MoveEmail(ctx context.Context, id, targetFolder string) (bool, error) {
	folder, uid, err := parseID(id)
	if err != nil {
		return false, mailstore.EmailNotFound(id)
	}

	err = s.withConn(ctx, "move email", func(conn *imapclient.Client) error {
		target, err := s.lookupLocked(targetFolder)
		if err != nil {
			return err
		}
		if target.noSelect {
			return &NoSelectError{Path: targetFolder}
		}
		source, err := s.lookupLocked(folder)
		if err != nil || source.noSelect {
			return mailstore.EmailNotFound(id)
		}
		if err := s.selectLocked(source.name); err != nil {
			return err
		}
		buf, err := s.fetchOneLocked(uid, &imap.FetchOptions{UID: true})
		if err != nil {
			return err
		}
		if buf == nil {
			return mailstore.EmailNotFound(id)
		}
		if source.name == target.name {
			return nil
		}
		if _, err := conn.Move(imap.UIDSetNum(uid), target.name).Wait(); err != nil {
			return fmt.Errorf("MOVE to %q: %w", target.name, err)
		}
		s.logger.Debug("moved message", "id", id, "target", targetFolder)
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Ping issues a NOOP.
func (s *Store) Ping(ctx context.Context) error {
	return s.withConn(ctx, "ping", func(conn *imapclient.Client) error {
		return conn.Noop().Wait()
	})
}

// Close logs out and disconnects from the IMAP server.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	conn := s.conn
	s.conn = nil
	s.selected = ""
	return conn.Logout().Wait()
}

// toPath converts a server mailbox name to a "/"-separated folder path.
func toPath(name string, delim rune) string {
	if delim == 0 || delim == '/' {
		return name
	}
	return strings.ReplaceAll(name, string(delim), mailstore.PathSeparator)
}

// childPaths returns the paths in order whose parent is parent.
func childPaths(order []string, parent string) []string {
	var out []string
	for _, p := range order {
		dir := ""
		if i := strings.LastIndex(p, mailstore.PathSeparator); i > 0 {
			dir = p[:i]
		}
		if dir == parent && p != parent {
			out = append(out, p)
		}
	}
	return out
}

// hasAttr checks whether attr is in the attrs list.
func hasAttr(attrs []imap.MailboxAttr, attr imap.MailboxAttr) bool {
	for _, a := range attrs {
		if a == attr {
			return true
		}
	}
	return false
}
