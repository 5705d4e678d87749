// Package querytest provides shared test doubles for code that drives a
// query.Engine.
package querytest

import (
	"context"
	"sync"

	"github.com/wesm/mailquery/internal/mailstore"
	"github.com/wesm/mailquery/internal/query"
)

// MockEngine stands in for *query.Engine. Each method delegates to an
// optional function field; when the field is nil, the canned data is used.
type MockEngine struct {
	Result  *query.Result
	Folder  []mailstore.Folder
	Emails  map[string]*mailstore.Email
	RunFunc func(context.Context, query.Request) (*query.Result, error)

	// FoldersErr and EmailErr, when set, are returned by Folders and Email.
	FoldersErr error
	EmailErr   error

	mu       sync.Mutex
	Requests []query.Request // every Run request, in order
}

// Run records r and returns RunFunc's result or the canned Result.
func (m *MockEngine) Run(ctx context.Context, r query.Request) (*query.Result, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, r)
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, r)
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return &query.Result{Emails: []mailstore.Email{}}, nil
}

// Folders returns the canned folders.
func (m *MockEngine) Folders(ctx context.Context) ([]mailstore.Folder, error) {
	if m.FoldersErr != nil {
		return nil, m.FoldersErr
	}
	return m.Folder, nil
}

// Email looks id up in Emails.
func (m *MockEngine) Email(ctx context.Context, id string) (*mailstore.Email, error) {
	if m.EmailErr != nil {
		return nil, m.EmailErr
	}
	if e, ok := m.Emails[id]; ok {
		return e, nil
	}
	return nil, mailstore.EmailNotFound(id)
}

// LastRequest returns the most recent Run request.
func (m *MockEngine) LastRequest() (query.Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return query.Request{}, false
	}
	return m.Requests[len(m.Requests)-1], true
}
