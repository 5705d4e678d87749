package mailstore

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store. Folder counts are derived from the
// stored messages, so unread never exceeds total.
//
// The exported error and call-tracking fields are for tests; set them
// before use or while holding no other reference to the store.
type MemoryStore struct {
	mu sync.Mutex

	// folders in insertion order; a folder's ancestors precede it.
	folders []string
	emails  map[string][]Email

	// MaxDepth bounds the folder walk in ListFolders.
	MaxDepth int
	Logger   *slog.Logger

	// Error injection
	ListFoldersError error
	ListEmailsError  map[string]error // per-folder errors
	GetEmailError    error
	MoveError        error
	PingError        error

	// Call tracking for assertions
	ListFoldersCalls int
	ListEmailsCalls  []string
	GetEmailCalls    []string
	MoveCalls        []MoveCall
	PingCalls        int
}

// MoveCall records one MoveEmail invocation.
type MoveCall struct {
	ID     string
	Target string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		emails:          make(map[string][]Email),
		ListEmailsError: make(map[string]error),
		MaxDepth:        DefaultMaxFolderDepth,
		Logger:          slog.Default(),
	}
}

// AddFolder creates path and any missing ancestors.
func (m *MemoryStore) AddFolder(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addFolderLocked(path)
}

func (m *MemoryStore) addFolderLocked(path string) {
	if _, ok := m.emails[path]; ok {
		return
	}
	if i := strings.LastIndex(path, PathSeparator); i > 0 {
		m.addFolderLocked(path[:i])
	}
	m.folders = append(m.folders, path)
	m.emails[path] = nil
}

// AddEmail stores e in e.FolderPath, creating the folder if needed.
func (m *MemoryStore) AddEmail(e Email) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addFolderLocked(e.FolderPath)
	m.emails[e.FolderPath] = append(m.emails[e.FolderPath], e)
}

func (m *MemoryStore) folderLocked(path string) Folder {
	f := Folder{Path: path, Name: BaseName(path)}
	for _, e := range m.emails[path] {
		f.TotalCount++
		if !e.IsRead {
			f.UnreadCount++
		}
	}
	return f
}

// ListChildFolders returns the direct children of parent in insertion order.
func (m *MemoryStore) ListChildFolders(ctx context.Context, parent string) ([]Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if parent != "" {
		if _, ok := m.emails[parent]; !ok {
			return nil, FolderNotFound(parent)
		}
	}
	var out []Folder
	for _, p := range m.folders {
		dir := ""
		if i := strings.LastIndex(p, PathSeparator); i > 0 {
			dir = p[:i]
		}
		if dir == parent {
			out = append(out, m.folderLocked(p))
		}
	}
	return out, nil
}

// ListFolders walks the folder tree breadth first.
func (m *MemoryStore) ListFolders(ctx context.Context) ([]Folder, error) {
	m.mu.Lock()
	m.ListFoldersCalls++
	injected := m.ListFoldersError
	m.mu.Unlock()
	if injected != nil {
		return nil, injected
	}

	t, err := Traverse(ctx, m, m.MaxDepth, m.Logger)
	if err != nil {
		return nil, err
	}
	return t.Folders, nil
}

// ListEmails returns a copy of the messages in folderPath.
func (m *MemoryStore) ListEmails(ctx context.Context, folderPath string) ([]Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListEmailsCalls = append(m.ListEmailsCalls, folderPath)

	if err := m.ListEmailsError[folderPath]; err != nil {
		return nil, err
	}
	emails, ok := m.emails[folderPath]
	if !ok {
		return nil, FolderNotFound(folderPath)
	}
	return slices.Clone(emails), nil
}

// GetEmail returns a copy of the message with the given id.
func (m *MemoryStore) GetEmail(ctx context.Context, id string) (*Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetEmailCalls = append(m.GetEmailCalls, id)

	if m.GetEmailError != nil {
		return nil, m.GetEmailError
	}
	folder, i, ok := m.findLocked(id)
	if !ok {
		return nil, EmailNotFound(id)
	}
	e := m.emails[folder][i]
	return &e, nil
}

func (m *MemoryStore) findLocked(id string) (folder string, index int, ok bool) {
	for _, p := range m.folders {
		for i, e := range m.emails[p] {
			if e.ID == id {
				return p, i, true
			}
		}
	}
	return "", 0, false
}

// MoveEmail moves a message to targetFolder, which must already exist.
func (m *MemoryStore) MoveEmail(ctx context.Context, id, targetFolder string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MoveCalls = append(m.MoveCalls, MoveCall{ID: id, Target: targetFolder})

	if m.MoveError != nil {
		return false, m.MoveError
	}
	src, i, ok := m.findLocked(id)
	if !ok {
		return false, EmailNotFound(id)
	}
	if _, ok := m.emails[targetFolder]; !ok {
		return false, FolderNotFound(targetFolder)
	}

	e := m.emails[src][i]
	m.emails[src] = slices.Delete(m.emails[src], i, i+1)
	e.FolderPath = targetFolder
	m.emails[targetFolder] = append(m.emails[targetFolder], e)
	return true, nil
}

// Ping reports PingError, if set.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PingCalls++
	return m.PingError
}

// NewSampleStore returns a store seeded with a small mailbox whose
// timestamps are relative to now.
func NewSampleStore(now time.Time) *MemoryStore {
	m := NewMemoryStore()
	for _, f := range []string{"Inbox", "Sent Items", "Drafts", "Deleted Items", "Custom/Projects", "Custom/Archive"} {
		m.AddFolder(f)
	}
	now = now.UTC()
	for _, e := range []Email{
		{
			ID: "inbox-001", Subject: "Weekly Team Meeting",
			SenderEmail: "manager@company.com", SenderName: "Alice Manager",
			Recipients: []string{"user@company.com"}, ReceivedAt: now.Add(-2 * time.Hour),
			Importance: ImportanceHigh, FolderPath: "Inbox",
		},
		{
			ID: "inbox-002", Subject: "Project Update Required",
			SenderEmail: "pm@company.com", SenderName: "Bob ProjectManager",
			Recipients: []string{"user@company.com", "team@company.com"}, ReceivedAt: now.AddDate(0, 0, -1),
			IsRead: true, HasAttachments: true, AttachmentCount: 2,
			Importance: ImportanceNormal, FolderPath: "Inbox",
		},
		{
			ID: "inbox-003", Subject: "System Maintenance Notice",
			SenderEmail: "it@company.com", SenderName: "IT Support",
			Recipients: []string{"all@company.com"}, ReceivedAt: now.AddDate(0, 0, -2),
			IsRead: true, Importance: ImportanceLow, FolderPath: "Inbox",
		},
		{
			ID: "inbox-004", Subject: "Quarterly budget review",
			SenderEmail: "finance@company.com", SenderName: "Carol Finance",
			Recipients: []string{"user@company.com"}, ReceivedAt: now.AddDate(0, 0, -9),
			HasAttachments: true, AttachmentCount: 1,
			Importance: ImportanceHigh, FolderPath: "Inbox",
		},
		{
			ID: "sent-001", Subject: "Re: Project Update Required",
			SenderEmail: "user@company.com", SenderName: "Current User",
			Recipients: []string{"pm@company.com"}, ReceivedAt: now.Add(-6 * time.Hour),
			IsRead: true, Importance: ImportanceNormal, FolderPath: "Sent Items",
		},
		{
			ID: "sent-002", Subject: "Meeting Notes",
			SenderEmail: "user@company.com", SenderName: "Current User",
			Recipients: []string{"team@company.com"}, ReceivedAt: now.AddDate(0, 0, -3),
			IsRead: true, HasAttachments: true, AttachmentCount: 1,
			Importance: ImportanceNormal, FolderPath: "Sent Items",
		},
		{
			ID: "draft-001", Subject: "Vacation Request",
			SenderEmail: "user@company.com", SenderName: "Current User",
			Recipients: []string{"hr@company.com"}, ReceivedAt: now.Add(-12 * time.Hour),
			Importance: ImportanceNormal, FolderPath: "Drafts",
		},
		{
			ID: "proj-001", Subject: "Migration plan v2",
			SenderEmail: "lead@company.com", SenderName: "Dana Lead",
			Recipients: []string{"user@company.com", "team@company.com"}, ReceivedAt: now.AddDate(0, 0, -5),
			HasAttachments: true, AttachmentCount: 3,
			Importance: ImportanceHigh, FolderPath: "Custom/Projects",
		},
		{
			ID: "arch-001", Subject: "Welcome aboard",
			SenderEmail: "hr@company.com", SenderName: "HR Team",
			Recipients: []string{"user@company.com"}, ReceivedAt: now.AddDate(-1, 0, 0),
			IsRead: true, Importance: ImportanceNormal, FolderPath: "Custom/Archive",
		},
	} {
		m.AddEmail(e)
	}
	return m
}
