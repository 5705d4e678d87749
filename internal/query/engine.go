// Package query runs searches over a mail store: folder-scope resolution,
// selectivity-ordered filtering, sorting and paged or streamed delivery.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wesm/mailquery/internal/governor"
	"github.com/wesm/mailquery/internal/mailstore"
	"github.com/wesm/mailquery/internal/metrics"
	"github.com/wesm/mailquery/internal/search"
)

// Engine executes searches against one mail store. It is safe for
// concurrent use when the store is.
type Engine struct {
	store     mailstore.Store
	optimizer *Optimizer
	monitor   *governor.Monitor
	limits    *governor.Limits
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMonitor sets the resource monitor used for ceiling checks.
func WithMonitor(m *governor.Monitor) Option {
	return func(e *Engine) {
		e.monitor = m
	}
}

// WithLimits creates a resource monitor for the given ceilings, logging
// to the engine's logger. WithMonitor takes precedence.
func WithLimits(l governor.Limits) Option {
	return func(e *Engine) {
		e.limits = &l
	}
}

// WithOptimizer replaces the filter optimizer.
func WithOptimizer(o *Optimizer) Option {
	return func(e *Engine) {
		e.optimizer = o
	}
}

// NewEngine creates an Engine over store with default ceilings.
func NewEngine(store mailstore.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.monitor == nil {
		limits := governor.DefaultLimits()
		if e.limits != nil {
			limits = *e.limits
		}
		e.monitor = governor.NewMonitor(limits, governor.WithMonitorLogger(e.logger))
	}
	if e.optimizer == nil {
		e.optimizer = NewOptimizer(e.logger)
	}
	return e
}

// Monitor returns the engine's resource monitor.
func (e *Engine) Monitor() *governor.Monitor { return e.monitor }

// Store returns the underlying mail store.
func (e *Engine) Store() mailstore.Store { return e.store }

// Search returns the messages matching every active filter of c, in
// store enumeration order. Criteria are validated before the store is
// touched. Resource ceilings are checked when the search starts and again
// on the final result; cancellation is checked before each folder read.
func (e *Engine) Search(ctx context.Context, c *search.Criteria) ([]mailstore.Email, error) {
	if c == nil {
		c = &search.Criteria{}
	}
	results, err := e.search(ctx, c)
	if err != nil {
		metrics.SearchFailed(string(governor.Classify(err)))
		return nil, err
	}
	return results, nil
}

func (e *Engine) search(ctx context.Context, c *search.Criteria) ([]mailstore.Email, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	op := e.monitor.Begin()
	if err := op.CheckMemory(); err != nil {
		return nil, err
	}

	e.logger.Info("search started", "criteria", c.String())

	candidates, err := e.candidates(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := op.CheckTime(); err != nil {
		return nil, err
	}

	results := e.optimizer.Apply(candidates, c)

	if err := op.CheckAll(len(results)); err != nil {
		return nil, err
	}

	elapsed := op.Elapsed()
	metrics.ObserveSearch(scopeLabel(c), elapsed, len(results))
	e.logger.Info("search finished",
		"candidates", len(candidates),
		"results", len(results),
		"duration", elapsed.Round(time.Millisecond))
	return results, nil
}

func scopeLabel(c *search.Criteria) string {
	if c.AllFolders() {
		return "all"
	}
	return "folder"
}

// candidates resolves the folder scope: one folder, or every folder
// concatenated in enumeration order.
func (e *Engine) candidates(ctx context.Context, c *search.Criteria) ([]mailstore.Email, error) {
	if !c.AllFolders() {
		if err := governor.CheckCancelled(ctx); err != nil {
			return nil, err
		}
		emails, err := e.store.ListEmails(ctx, c.Folder)
		if err != nil {
			return nil, fmt.Errorf("list emails in %s: %w", c.Folder, err)
		}
		return emails, nil
	}

	folders, err := e.store.ListFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	var all []mailstore.Email
	for _, f := range folders {
		if err := governor.CheckCancelled(ctx); err != nil {
			return nil, err
		}
		emails, err := e.store.ListEmails(ctx, f.Path)
		if err != nil {
			return nil, fmt.Errorf("list emails in %s: %w", f.Path, err)
		}
		all = append(all, emails...)
	}
	return all, nil
}

// Folders lists every folder of the store.
func (e *Engine) Folders(ctx context.Context) ([]mailstore.Folder, error) {
	folders, err := e.store.ListFolders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	return folders, nil
}

// Email returns one message by id.
func (e *Engine) Email(ctx context.Context, id string) (*mailstore.Email, error) {
	email, err := e.store.GetEmail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get email %s: %w", id, err)
	}
	return email, nil
}

// Run executes r: search, sort, then select the requested page.
func (e *Engine) Run(ctx context.Context, r Request) (*Result, error) {
	matches, err := e.Search(ctx, r.Criteria)
	if err != nil {
		return nil, err
	}
	sorted := Sort(matches, r.SortField, r.SortOrder)

	p := NewPaginator(sorted, r.PageSize)
	if r.Page > 1 && !p.GoToPage(r.Page) {
		return nil, &PageError{Page: r.Page, TotalPages: p.TotalPages()}
	}
	return &Result{
		Emails: p.CurrentPage(),
		Page:   p.Info(),
		All:    sorted,
	}, nil
}
