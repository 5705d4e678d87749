package imap

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	imap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/wesm/mailquery/internal/mailstore"
)

// headerSection fetches only the top-level header block.
var headerSection = &imap.FetchItemBodySection{Specifier: imap.PartSpecifierHeader, Peek: true}

// fetchOptions requests what an Email record needs without downloading
// message bodies.
func fetchOptions() *imap.FetchOptions {
	return &imap.FetchOptions{
		UID:           true,
		Flags:         true,
		InternalDate:  true,
		RFC822Size:    true,
		BodyStructure: &imap.FetchItemBodyStructure{Extended: true},
		BodySection:   []*imap.FetchItemBodySection{headerSection},
	}
}

// fetchedMessage is the subset of a FETCH response used to build an Email.
type fetchedMessage struct {
	UID          imap.UID
	Flags        []imap.Flag
	InternalDate time.Time
	Size         int64
	Header       []byte
	Structure    imap.BodyStructure
}

func fromBuffer(buf *imapclient.FetchMessageBuffer) fetchedMessage {
	return fetchedMessage{
		UID:          buf.UID,
		Flags:        buf.Flags,
		InternalDate: buf.InternalDate,
		Size:         buf.RFC822Size,
		Header:       buf.FindBodySection(headerSection),
		Structure:    buf.BodyStructure,
	}
}

// toEmail builds the Email for a message in folder. Header fields that
// fail to decode are left empty rather than failing the whole listing.
func toEmail(folder string, m fetchedMessage) mailstore.Email {
	e := mailstore.Email{
		ID:         formatID(folder, m.UID),
		FolderPath: folder,
		ReceivedAt: m.InternalDate.UTC(),
		Size:       m.Size,
		IsRead:     hasFlag(m.Flags, imap.FlagSeen),
		Importance: mailstore.ImportanceNormal,
	}

	e.AttachmentCount = countAttachments(m.Structure)
	e.HasAttachments = e.AttachmentCount > 0

	h, err := parseHeader(m.Header)
	if err != nil {
		return e
	}
	e.Subject, _ = h.Subject()
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		e.SenderName = from[0].Name
		e.SenderEmail = from[0].Address
	}
	for _, key := range []string{"To", "Cc"} {
		addrs, err := h.AddressList(key)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			e.Recipients = append(e.Recipients, a.Address)
		}
	}
	if e.ReceivedAt.IsZero() {
		if d, err := h.Date(); err == nil {
			e.ReceivedAt = d.UTC()
		}
	}
	e.Importance = importanceOf(h)
	return e
}

// parseHeader reads an RFC 5322 header block. Trailing body bytes are
// ignored, so a full message is accepted as well.
func parseHeader(raw []byte) (mail.Header, error) {
	if len(raw) == 0 {
		return mail.Header{}, fmt.Errorf("empty header")
	}
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return mail.Header{}, fmt.Errorf("parse header: %w", err)
	}
	return mail.Header{Header: message.Header{Header: h}}, nil
}

// importanceOf reads the sender-assigned priority from the Importance,
// X-Priority, X-MSMail-Priority and Priority headers, in that order.
func importanceOf(h mail.Header) mailstore.Importance {
	if v := h.Get("Importance"); v != "" {
		if imp, err := mailstore.ParseImportance(v); err == nil {
			return imp
		}
	}
	if v := strings.TrimSpace(h.Get("X-Priority")); v != "" {
		// "1 (Highest)" .. "5 (Lowest)"
		if n, err := strconv.Atoi(strings.Fields(v)[0]); err == nil {
			switch {
			case n <= 2:
				return mailstore.ImportanceHigh
			case n >= 4:
				return mailstore.ImportanceLow
			default:
				return mailstore.ImportanceNormal
			}
		}
	}
	if v := h.Get("X-MSMail-Priority"); v != "" {
		if imp, err := mailstore.ParseImportance(v); err == nil {
			return imp
		}
	}
	switch strings.ToLower(strings.TrimSpace(h.Get("Priority"))) {
	case "urgent":
		return mailstore.ImportanceHigh
	case "non-urgent":
		return mailstore.ImportanceLow
	}
	return mailstore.ImportanceNormal
}

// countAttachments counts the leaf parts of bs that are attachments: parts
// with an attachment disposition, or non-text parts carrying a filename
// that are not explicitly inline.
func countAttachments(bs imap.BodyStructure) int {
	if bs == nil {
		return 0
	}
	n := 0
	bs.Walk(func(_ []int, part imap.BodyStructure) bool {
		single, ok := part.(*imap.BodyStructureSinglePart)
		if !ok {
			return true
		}
		disp := single.Disposition()
		switch {
		case disp != nil && strings.EqualFold(disp.Value, "attachment"):
			n++
		case disp != nil && strings.EqualFold(disp.Value, "inline"):
		case single.Filename() != "" && !strings.EqualFold(single.Type, "text"):
			n++
		}
		return true
	})
	return n
}

func hasFlag(flags []imap.Flag, want imap.Flag) bool {
	for _, f := range flags {
		if strings.EqualFold(string(f), string(want)) {
			return true
		}
	}
	return false
}

// formatID builds a message identifier as "folder|uid".
func formatID(folder string, uid imap.UID) string {
	return folder + "|" + strconv.FormatUint(uint64(uid), 10)
}

// parseID splits a message identifier into folder path and UID.
func parseID(id string) (folder string, uid imap.UID, err error) {
	idx := strings.LastIndexByte(id, '|')
	if idx <= 0 {
		return "", 0, fmt.Errorf("invalid IMAP message ID %q (expected folder|uid)", id)
	}
	n, err := strconv.ParseUint(id[idx+1:], 10, 32)
	if err != nil || n == 0 {
		return "", 0, fmt.Errorf("invalid UID in message ID %q", id)
	}
	return id[:idx], imap.UID(n), nil
}
