package email

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/emersion/go-message/textproto"
)

func readHeader(t *testing.T, raw []byte) textproto.Header {
	t.Helper()
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		t.Fatalf("ReadHeader: %v\n%s", err, raw)
	}
	return h
}

func TestDefaultHeader(t *testing.T) {
	got := string(NewHeader().Bytes())

	want := strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: Test Message",
		"Date: Mon, 01 Jan 2024 12:00:00 +0000",
		"",
		"",
	}, "\r\n")

	if got != want {
		t.Errorf("header mismatch.\ngot:\n%q\nwant:\n%q", got, want)
	}
}

func TestNoSubject(t *testing.T) {
	h := readHeader(t, NewHeader().NoSubject().Bytes())
	if h.Has("Subject") {
		t.Error("expected no Subject header, but found one")
	}
}

func TestEncodedSubject(t *testing.T) {
	raw := NewHeader().EncodedSubject("Quarterly réview").Bytes()
	if !bytes.Contains(raw, []byte("=?UTF-8?q?")) {
		t.Errorf("subject not encoded:\n%s", raw)
	}
}

func TestPriorityHeaders(t *testing.T) {
	h := readHeader(t, NewHeader().Importance("high").XPriority(5).XPriority(9).Bytes())
	if got := h.Get("Importance"); got != "high" {
		t.Errorf("Importance = %q", got)
	}
	fields := h.Values("X-Priority")
	if len(fields) != 2 || fields[0] != "5 (Lowest)" || fields[1] != "9" {
		t.Errorf("X-Priority = %q", fields)
	}
}

func TestHeaderOrder(t *testing.T) {
	got := string(NewHeader().
		Header("X-First", "1").
		Header("X-Second", "2").
		Bytes())

	first := strings.Index(got, "X-First: 1")
	second := strings.Index(got, "X-Second: 2")
	if first < 0 || second < 0 || first > second {
		t.Errorf("custom headers out of order:\n%s", got)
	}
}

func TestMakeRaw(t *testing.T) {
	h := readHeader(t, MakeRaw(Options{
		Subject: "Budget",
		Headers: map[string]string{"Date": "Tue, 03 Jun 2025 08:00:00 +0000", "X-Priority": "1"},
	}))

	if got := h.Get("Subject"); got != "Budget" {
		t.Errorf("Subject = %q", got)
	}
	if got := h.Values("Date"); len(got) != 1 || got[0] != "Tue, 03 Jun 2025 08:00:00 +0000" {
		t.Errorf("Date = %q, want the caller's only", got)
	}
	if got := h.Get("From"); got != "sender@example.com" {
		t.Errorf("From = %q", got)
	}
}

func TestFoldLong(t *testing.T) {
	got := FoldLong("alpha beta gamma delta", 11)
	if got != "alpha beta\r\n gamma\r\n delta" {
		t.Errorf("FoldLong = %q", got)
	}

	h := readHeader(t, MakeRaw(Options{Subject: FoldLong(strings.Repeat("word ", 30), 40)}))
	if got := h.Get("Subject"); !strings.HasPrefix(got, "word word") {
		t.Errorf("folded Subject = %q", got)
	}
}
