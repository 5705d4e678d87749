// Package search parses date expressions and query strings into search
// criteria.
package search

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// operatorFn applies one operator:value pair to the criteria.
type operatorFn func(c *Criteria, value string, dates *DateParser) error

func setDate(dst **time.Time) operatorFn {
	return func(_ *Criteria, v string, dates *DateParser) error {
		t, err := dates.Parse(v)
		if err != nil {
			return err
		}
		*dst = &t
		return nil
	}
}

// operators maps operator names to their handlers. Keys starting with "-"
// are negated forms.
func operators(c *Criteria) map[string]operatorFn {
	return map[string]operatorFn{
		"from": func(c *Criteria, v string, _ *DateParser) error {
			c.Sender = v
			return nil
		},
		"-from": func(c *Criteria, v string, _ *DateParser) error {
			c.NotSender = v
			return nil
		},
		"subject": func(c *Criteria, v string, _ *DateParser) error {
			c.Subject = v
			return nil
		},
		"-subject": func(c *Criteria, v string, _ *DateParser) error {
			c.NotSubject = v
			return nil
		},
		"in": func(c *Criteria, v string, _ *DateParser) error {
			c.Folder = v
			return nil
		},
		"folder": func(c *Criteria, v string, _ *DateParser) error {
			c.Folder = v
			return nil
		},
		"after":      setDate(&c.Since),
		"since":      setDate(&c.Since),
		"newer_than": setDate(&c.Since),
		"before":     setDate(&c.Until),
		"until":      setDate(&c.Until),
		"older_than": setDate(&c.Until),
		"is": func(c *Criteria, v string, _ *DateParser) error {
			switch strings.ToLower(v) {
			case "read":
				c.IsRead = true
			case "unread":
				c.IsUnread = true
			default:
				return fmt.Errorf("unknown is: value %q (want read or unread)", v)
			}
			return nil
		},
		"has": func(c *Criteria, v string, _ *DateParser) error {
			if low := strings.ToLower(v); low != "attachment" && low != "attachments" {
				return fmt.Errorf("unknown has: value %q (want attachment)", v)
			}
			c.HasAttachment = true
			return nil
		},
		"-has": func(c *Criteria, v string, _ *DateParser) error {
			if low := strings.ToLower(v); low != "attachment" && low != "attachments" {
				return fmt.Errorf("unknown -has: value %q (want attachment)", v)
			}
			c.NoAttachment = true
			return nil
		},
		"importance": func(c *Criteria, v string, _ *DateParser) error {
			c.Importance = v
			return nil
		},
	}
}

// QueryError reports an operator whose value could not be applied.
type QueryError struct {
	Operator string
	Err      error
}

func (e *QueryError) Error() string   { return fmt.Sprintf("%s: %v", e.Operator, e.Err) }
func (e *QueryError) Unwrap() error   { return e.Err }
func (e *QueryError) UserError() bool { return true }

// Parser holds configuration for query parsing.
type Parser struct {
	Now func() time.Time // Time source (mockable for testing)
}

// NewParser creates a Parser with default settings.
func NewParser() *Parser {
	return &Parser{Now: func() time.Time { return time.Now().UTC() }}
}

// Parse parses a Gmail-like query string into Criteria.
//
// Supported operators:
//   - from:, -from: - sender address or name substring, and its exclusion
//   - subject:, -subject: - subject substring, and its exclusion
//   - in:, folder: - folder scope ("all" for every folder)
//   - after:, since:, newer_than: - lower date bound
//   - before:, until:, older_than: - upper date bound
//   - is:read, is:unread, has:attachment, -has:attachment
//   - importance: - high, normal or low
//   - Bare words and "quoted phrases" - joined into the subject substring
//
// Date values accept every form DateParser.Parse does. A later operator
// of the same kind replaces an earlier one.
func (p *Parser) Parse(queryStr string) (*Criteria, error) {
	c := &Criteria{}
	dates := &DateParser{Now: p.Now}
	ops := operators(c)
	var text []string

	for _, token := range tokenize(queryStr) {
		if isQuotedPhrase(token) {
			text = append(text, unquote(token))
			continue
		}

		if idx := strings.Index(token, ":"); idx > 0 {
			op := strings.ToLower(token[:idx])
			value := unquote(token[idx+1:])

			if handler, ok := ops[op]; ok {
				if value == "" {
					return nil, &QueryError{Operator: op, Err: fmt.Errorf("missing value")}
				}
				if err := handler(c, value, dates); err != nil {
					return nil, &QueryError{Operator: op, Err: err}
				}
				continue
			}
		}

		text = append(text, token)
	}

	if len(text) > 0 {
		phrase := strings.Join(text, " ")
		if c.Subject != "" {
			phrase = c.Subject + " " + phrase
		}
		c.Subject = phrase
	}
	return c, nil
}

// Set assigns one named field of c from its string form. Dates go through
// the DateParser and booleans through strconv.ParseBool; field names may
// use dashes or underscores.
func (p *Parser) Set(c *Criteria, field, value string) error {
	field = strings.ReplaceAll(strings.ToLower(field), "-", "_")
	switch field {
	case FieldSender:
		c.Sender = value
	case FieldSubject:
		c.Subject = value
	case FieldFolder:
		c.Folder = value
	case FieldImportance:
		c.Importance = value
	case FieldNotSender:
		c.NotSender = value
	case FieldNotSubject:
		c.NotSubject = value
	case FieldSince, FieldUntil:
		t, err := (&DateParser{Now: p.Now}).Parse(value)
		if err != nil {
			return &CriteriaError{Field: field, Err: err}
		}
		if field == FieldSince {
			c.Since = &t
		} else {
			c.Until = &t
		}
	case FieldIsRead, FieldIsUnread, FieldHasAttachment, FieldNoAttachment:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return &CriteriaError{Field: field, Err: fmt.Errorf("invalid boolean %q", value)}
		}
		switch field {
		case FieldIsRead:
			c.IsRead = b
		case FieldIsUnread:
			c.IsUnread = b
		case FieldHasAttachment:
			c.HasAttachment = b
		default:
			c.NoAttachment = b
		}
	default:
		return &CriteriaError{Field: field, Err: fmt.Errorf("unknown field")}
	}
	return nil
}

// ParseQuery is a convenience function that parses using default settings.
func ParseQuery(queryStr string) (*Criteria, error) {
	return NewParser().Parse(queryStr)
}

// unquote removes surrounding double quotes from a string if present.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// isQuotedPhrase returns true if the token is a double-quoted phrase.
func isQuotedPhrase(token string) bool {
	return len(token) > 2 && token[0] == '"' && token[len(token)-1] == '"'
}

// tokenize splits a query string on spaces, keeping quoted phrases and
// op:"quoted value" pairs together as single tokens.
func tokenize(queryStr string) []string {
	var tokens []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)
	afterColon := false
	// opQuoted is set when the quote opened right after a colon.
	opQuoted := false

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, char := range queryStr {
		switch {
		case (char == '"' || char == '\'') && !inQuotes:
			inQuotes = true
			quoteChar = char
			opQuoted = afterColon
			if afterColon {
				current.WriteRune('"')
			} else {
				flush()
			}
			afterColon = false
		case char == quoteChar && inQuotes:
			inQuotes = false
			if opQuoted {
				current.WriteRune('"')
				flush()
			} else if current.Len() > 0 {
				tokens = append(tokens, "\""+current.String()+"\"")
				current.Reset()
			}
			quoteChar = 0
			opQuoted = false
		case (char == ' ' || char == '\t') && !inQuotes:
			flush()
			afterColon = false
		default:
			current.WriteRune(char)
			afterColon = char == ':'
		}
	}
	flush()
	return tokens
}
