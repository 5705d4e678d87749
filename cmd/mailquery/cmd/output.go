package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"

	"github.com/wesm/mailquery/internal/mailstore"
	"github.com/wesm/mailquery/internal/query"
)

// column widths of the message table, in terminal cells.
const (
	colDate    = 16
	colFrom    = 28
	colSubject = 48
	colFolder  = 16
)

// truncate shortens s to at most width terminal cells, ending in "..."
// when cut. Wide runes count as two cells.
func truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}

// cell truncates and pads s to exactly width cells.
func cell(s string, width int) string {
	return runewidth.FillRight(truncate(s, width), width)
}

func writeEmailHeader(w io.Writer) {
	fmt.Fprintln(w, strings.Join([]string{
		cell("DATE", colDate), cell("FROM", colFrom), cell("SUBJECT", colSubject), cell("FOLDER", colFolder), "FLAGS",
	}, "  "))
}

func writeEmailRows(w io.Writer, emails []mailstore.Email) {
	for i := range emails {
		e := &emails[i]
		fmt.Fprintln(w, strings.Join([]string{
			cell(e.ReceivedAt.Local().Format("2006-01-02 15:04"), colDate),
			cell(e.Sender(), colFrom),
			cell(e.Subject, colSubject),
			cell(e.FolderPath, colFolder),
			flags(e),
		}, "  "))
	}
}

// flags renders read state, attachments and importance compactly:
// "U" unread, "A" attachments, "!" high and "↓" low importance.
func flags(e *mailstore.Email) string {
	var b strings.Builder
	if !e.IsRead {
		b.WriteString("U")
	}
	if e.HasAttachments {
		b.WriteString("A")
	}
	switch e.Importance {
	case mailstore.ImportanceHigh:
		b.WriteString("!")
	case mailstore.ImportanceLow:
		b.WriteString("↓")
	}
	return b.String()
}

// writePageTable prints one page of results and its position.
func writePageTable(w io.Writer, res *query.Result) {
	if res.Page.TotalItems == 0 {
		fmt.Fprintln(w, "No messages found.")
		return
	}
	writeEmailHeader(w)
	writeEmailRows(w, res.Emails)
	fmt.Fprintf(w, "\nPage %d of %d (%d messages)\n", res.Page.CurrentPage, res.Page.TotalPages, res.Page.TotalItems)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
