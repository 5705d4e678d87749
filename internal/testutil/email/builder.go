package email

import (
	"mime"
	"strconv"
	"strings"
)

// HeaderBuilder constructs a message header block with a fluent API.
// Output always uses CRLF line endings.
type HeaderBuilder struct {
	from      string
	to        string
	cc        string
	subject   string
	date      string
	noSubject bool
	keys      []string
	vals      []string
}

// NewHeader creates a HeaderBuilder with sensible defaults.
func NewHeader() *HeaderBuilder {
	return &HeaderBuilder{
		from:    "sender@example.com",
		to:      "recipient@example.com",
		subject: "Test Message",
		date:    "Mon, 01 Jan 2024 12:00:00 +0000",
	}
}

func (b *HeaderBuilder) From(v string) *HeaderBuilder { b.from = v; return b }

func (b *HeaderBuilder) To(v string) *HeaderBuilder { b.to = v; return b }

func (b *HeaderBuilder) Cc(v string) *HeaderBuilder { b.cc = v; return b }

// Subject sets the Subject header verbatim, so encoded words pass through.
func (b *HeaderBuilder) Subject(v string) *HeaderBuilder { b.subject = v; b.noSubject = false; return b }

// EncodedSubject sets the Subject as a UTF-8 Q-encoded word.
func (b *HeaderBuilder) EncodedSubject(v string) *HeaderBuilder {
	return b.Subject(mime.QEncoding.Encode("UTF-8", v))
}

// NoSubject omits the Subject header.
func (b *HeaderBuilder) NoSubject() *HeaderBuilder { b.noSubject = true; return b }

// Date sets the Date header; empty omits it.
func (b *HeaderBuilder) Date(v string) *HeaderBuilder { b.date = v; return b }

// Header adds an arbitrary header after the standard ones.
func (b *HeaderBuilder) Header(key, value string) *HeaderBuilder {
	b.keys = append(b.keys, key)
	b.vals = append(b.vals, value)
	return b
}

// Importance adds an Importance header ("high", "normal", "low").
func (b *HeaderBuilder) Importance(level string) *HeaderBuilder {
	return b.Header("Importance", level)
}

// XPriority adds an X-Priority header with the conventional label for n.
func (b *HeaderBuilder) XPriority(n int) *HeaderBuilder {
	labels := map[int]string{1: "Highest", 2: "High", 3: "Normal", 4: "Low", 5: "Lowest"}
	v := strconv.Itoa(n)
	if l, ok := labels[n]; ok {
		v += " (" + l + ")"
	}
	return b.Header("X-Priority", v)
}

// Bytes renders the header block including the blank separator line.
func (b *HeaderBuilder) Bytes() []byte {
	var s strings.Builder
	line := func(k, v string) {
		s.WriteString(k + ": " + v + "\r\n")
	}

	line("From", b.from)
	line("To", b.to)
	if b.cc != "" {
		line("Cc", b.cc)
	}
	if !b.noSubject {
		line("Subject", b.subject)
	}
	if b.date != "" {
		line("Date", b.date)
	}
	for i, k := range b.keys {
		line(k, b.vals[i])
	}
	s.WriteString("\r\n")
	return []byte(s.String())
}
