// Package email builds raw RFC 5322 header blocks, the part of a message the
// IMAP store fetches, for mail store tests.
package email

import (
	"sort"
	"strings"
)

// Options describes a header block. Empty From, To and Subject take
// defaults; Headers are written after them in key order.
type Options struct {
	From    string
	To      string
	Subject string
	Headers map[string]string
}

// MakeRaw returns the header block with CRLF line endings, terminated by
// the blank separator line.
func MakeRaw(opts Options) []byte {
	h := NewHeader()
	if opts.From != "" {
		h.From(opts.From)
	}
	if opts.To != "" {
		h.To(opts.To)
	}
	if opts.Subject != "" {
		h.Subject(opts.Subject)
	}
	// The default Date is dropped when the caller supplies one.
	if _, ok := opts.Headers["Date"]; ok {
		h.Date("")
	}

	keys := make([]string, 0, len(opts.Headers))
	for k := range opts.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Header(k, opts.Headers[k])
	}
	return h.Bytes()
}

// FoldLong folds value onto continuation lines of at most width bytes,
// the way servers hand back long Subject or To headers.
func FoldLong(value string, width int) string {
	words := strings.Fields(value)
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	line := 0
	for i, w := range words {
		if i > 0 {
			if line+1+len(w) > width {
				b.WriteString("\r\n ")
				line = 1
			} else {
				b.WriteByte(' ')
				line++
			}
		}
		b.WriteString(w)
		line += len(w)
	}
	return b.String()
}
