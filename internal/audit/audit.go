// Package audit records search operations and their cost in a SQLite
// audit trail.
package audit

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaFS embed.FS

// Entry kinds.
const (
	KindFilter      = "filter_operation"
	KindPerformance = "performance_metrics"
)

// Entry is one row of the audit trail.
type Entry struct {
	ID          string         `json:"id"`
	RecordedAt  time.Time      `json:"timestamp"`
	Kind        string         `json:"kind"`
	Operation   string         `json:"operation"`
	User        string         `json:"user"`
	ResultCount int            `json:"result_count"`
	Details     map[string]any `json:"details"`
}

// Search describes one filter operation.
type Search struct {
	Operation   string // e.g. "search", "move"
	User        string
	Criteria    any // marshaled to JSON
	ResultCount int
	Err         error
}

// Performance describes the cost of one operation.
type Performance struct {
	Operation    string
	Duration     time.Duration
	MemoryUsedMB float64
	ResultCount  int
}

// Recorder is the write side of the audit trail.
type Recorder interface {
	RecordSearch(ctx context.Context, s Search) error
	RecordPerformance(ctx context.Context, p Performance) error
}

// Nop discards everything; it stands in when auditing is disabled.
type Nop struct{}

func (Nop) RecordSearch(context.Context, Search) error           { return nil }
func (Nop) RecordPerformance(context.Context, Performance) error { return nil }

// Trail writes audit entries to a Recorder on behalf of an operation.
// Write failures are logged and swallowed: auditing never fails the
// operation being audited.
type Trail struct {
	r      Recorder
	logger *slog.Logger
}

// BestEffort returns a Trail over r.
func BestEffort(r Recorder, logger *slog.Logger) *Trail {
	if r == nil {
		r = Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trail{r: r, logger: logger}
}

// Record writes the filter-operation entry and the performance entry for
// one operation.
func (t *Trail) Record(ctx context.Context, s Search, p Performance) {
	if err := t.r.RecordSearch(ctx, s); err != nil {
		t.logger.Warn("audit search failed", "operation", s.Operation, "error", err)
	}
	if err := t.r.RecordPerformance(ctx, p); err != nil {
		t.logger.Warn("audit performance failed", "operation", p.Operation, "error", err)
	}
}

const defaultSQLiteParams = "?_journal_mode=WAL&_busy_timeout=5000"

// timestampLayout is fixed-width so recorded_at sorts lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a SQLite-backed Recorder.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ Recorder = (*Store)(nil)

// Open opens or creates the audit database at path and initializes its
// schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create audit directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+defaultSQLiteParams)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}

	s := &Store{db: db, path: path, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema.sql: %w", err)
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		if isSQLiteError(err, "file is not a database") {
			return fmt.Errorf("%s is not an audit database: %w", s.path, err)
		}
		return fmt.Errorf("execute schema.sql: %w", err)
	}
	return nil
}

// RecordSearch appends a filter-operation entry.
func (s *Store) RecordSearch(ctx context.Context, rec Search) error {
	details := map[string]any{
		"filters": rec.Criteria,
		"success": rec.Err == nil,
	}
	if rec.Err != nil {
		details["error"] = rec.Err.Error()
	}
	return s.insert(ctx, KindFilter, rec.Operation, rec.User, rec.ResultCount, details)
}

// RecordPerformance appends a performance entry.
func (s *Store) RecordPerformance(ctx context.Context, p Performance) error {
	details := map[string]any{
		"duration_seconds": p.Duration.Seconds(),
		"memory_used_mb":   p.MemoryUsedMB,
	}
	return s.insert(ctx, KindPerformance, p.Operation, "", p.ResultCount, details)
}

func (s *Store) insert(ctx context.Context, kind, op, user string, count int, details map[string]any) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, recorded_at, kind, operation, user, result_count, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), s.now().UTC().Format(timestampLayout), kind, op, user, count, string(raw))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recorded_at, kind, operation, user, result_count, details
		FROM audit_entries
		ORDER BY recorded_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var recordedAt, details string
		if err := rows.Scan(&e.ID, &recordedAt, &e.Kind, &e.Operation, &e.User, &e.ResultCount, &details); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if e.RecordedAt, err = time.Parse(timestampLayout, recordedAt); err != nil {
			return nil, fmt.Errorf("parse audit timestamp %q: %w", recordedAt, err)
		}
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			return nil, fmt.Errorf("decode audit details for %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// isSQLiteError checks if err is a sqlite3.Error with a message containing substr.
// Handles both value (sqlite3.Error) and pointer (*sqlite3.Error) forms.
func isSQLiteError(err error, substr string) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), substr)
	}
	var sqliteErrPtr *sqlite3.Error
	if errors.As(err, &sqliteErrPtr) && sqliteErrPtr != nil {
		return strings.Contains(sqliteErrPtr.Error(), substr)
	}
	return false
}
