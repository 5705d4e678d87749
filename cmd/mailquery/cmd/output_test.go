package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/wesm/mailquery/internal/audit"
	"github.com/wesm/mailquery/internal/mailstore"
	"github.com/wesm/mailquery/internal/query"
	"github.com/wesm/mailquery/internal/testutil"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 3, "hel"},
		{"", 4, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestTruncate_WideRunes(t *testing.T) {
	got := truncate("日本語のメール件名です", 10)
	if w := runewidth.StringWidth(got); w > 10 {
		t.Errorf("truncate width = %d, want <= 10 (%q)", w, got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncate(%q) missing ellipsis", got)
	}
}

func TestCell_PadsToWidth(t *testing.T) {
	for _, s := range []string{"", "ab", "日本", "a much longer value than fits"} {
		if w := runewidth.StringWidth(cell(s, 8)); w != 8 {
			t.Errorf("cell(%q, 8) width = %d", s, w)
		}
	}
}

func TestFlags(t *testing.T) {
	tests := []struct {
		name  string
		email mailstore.Email
		want  string
	}{
		{"read normal", mailstore.Email{IsRead: true, Importance: mailstore.ImportanceNormal}, ""},
		{"unread", mailstore.Email{Importance: mailstore.ImportanceNormal}, "U"},
		{"attachment high", mailstore.Email{IsRead: true, HasAttachments: true, Importance: mailstore.ImportanceHigh}, "A!"},
		{"unread low", mailstore.Email{Importance: mailstore.ImportanceLow}, "U↓"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := flags(&tt.email); got != tt.want {
				t.Errorf("flags() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWritePageTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	writePageTable(&buf, &query.Result{})
	if got := strings.TrimSpace(buf.String()); got != "No messages found." {
		t.Errorf("output = %q", got)
	}
}

func TestWritePageTable_Rows(t *testing.T) {
	emails := []mailstore.Email{
		testutil.NewEmail("a").From("alice@example.com", "Alice").Subject("First").Build(),
		testutil.NewEmail("b").From("bob@example.com", "").Subject("Second").Build(),
	}
	var buf bytes.Buffer
	writePageTable(&buf, &query.Result{
		Emails: emails,
		Page:   query.PageInfo{CurrentPage: 1, TotalPages: 1, TotalItems: 2, ItemsPerPage: 10},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("lines = %d, want header + 2 rows + blank + footer:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "DATE") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "Alice <alice@example.com>") || !strings.Contains(lines[1], "First") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "bob@example.com") {
		t.Errorf("row 2 = %q", lines[2])
	}
	if lines[4] != "Page 1 of 1 (2 messages)" {
		t.Errorf("footer = %q", lines[4])
	}
}

func TestWriteFolders(t *testing.T) {
	useTestConfig(t)
	folders, err := sampleEngine(t).Folders(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var tree bytes.Buffer
	writeFolders(&tree, folders, false)
	if !strings.Contains(tree.String(), "\n  Projects ") {
		t.Errorf("tree output missing indented child:\n%s", tree.String())
	}
	if !strings.Contains(tree.String(), "7 folders, 9 messages, 4 unread") {
		t.Errorf("tree output missing totals:\n%s", tree.String())
	}

	var flat bytes.Buffer
	writeFolders(&flat, folders, true)
	if !strings.Contains(flat.String(), "\nCustom/Projects ") {
		t.Errorf("flat output missing full path:\n%s", flat.String())
	}

	var empty bytes.Buffer
	writeFolders(&empty, nil, false)
	if strings.TrimSpace(empty.String()) != "No folders found." {
		t.Errorf("empty output = %q", empty.String())
	}
}

func TestWriteEmailDetail(t *testing.T) {
	e := testutil.NewEmail("INBOX|42").
		From("carol@example.com", "Carol").
		Subject("Budget").
		Attachments(2).
		Build()
	e.Size = 3 * 1024
	e.Recipients = []string{"a@example.com", "b@example.com"}

	var buf bytes.Buffer
	writeEmailDetail(&buf, &e)
	out := buf.String()
	for _, want := range []string{
		"Message ID: INBOX|42",
		"From:        Carol <carol@example.com>",
		"To:          a@example.com, b@example.com",
		"Subject:     Budget",
		"Attachments: 2",
		"Size:        3.0K",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0B"},
		{1023, "1023B"},
		{1536, "1.5K"},
		{5 * 1024 * 1024, "5.0M"},
		{3 * 1024 * 1024 * 1024, "3.0G"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.in); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteMoveResults(t *testing.T) {
	var buf bytes.Buffer
	writeMoveResults(&buf, []mailstore.MoveResult{
		{ID: "a", Moved: true},
		{ID: "b", Error: "email not found: b"},
	}, "Archive")

	out := buf.String()
	if !strings.Contains(out, "moved   a") || !strings.Contains(out, "failed  b: email not found: b") {
		t.Errorf("rows missing:\n%s", out)
	}
	if !strings.Contains(out, "1 moved to Archive, 1 failed") {
		t.Errorf("summary missing:\n%s", out)
	}
}

func TestWriteAuditEntries(t *testing.T) {
	var buf bytes.Buffer
	writeAuditEntries(&buf, []audit.Entry{{
		RecordedAt:  time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Kind:        audit.KindFilter,
		Operation:   "search",
		User:        "cli:alice",
		ResultCount: 3,
		Details:     map[string]any{"criteria": map[string]any{"sender": "bob"}},
	}})

	out := buf.String()
	for _, want := range []string{"filter_operation", "search", "cli:alice", `"sender":"bob"`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}

	buf.Reset()
	writeAuditEntries(&buf, nil)
	if strings.TrimSpace(buf.String()) != "No audit entries yet." {
		t.Errorf("empty output = %q", buf.String())
	}
}
