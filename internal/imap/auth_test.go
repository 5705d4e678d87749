package imap

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/wesm/mailquery/internal/config"
)

func TestCredentialsRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tokens")
	id := "imaps://user%40company.com@mail.company.com:993"

	if HasCredentials(dir, id) {
		t.Fatal("HasCredentials before save")
	}
	if _, err := LoadCredentials(dir, id); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("LoadCredentials before save err = %v", err)
	}

	if err := SaveCredentials(dir, id, "first"); err != nil {
		t.Fatal(err)
	}
	if err := SaveCredentials(dir, id, "s3cret"); err != nil {
		t.Fatal(err)
	}
	got, err := LoadCredentials(dir, id)
	if err != nil {
		t.Fatal(err)
	}
	if got != "s3cret" {
		t.Errorf("password = %q", got)
	}
	if !HasCredentials(dir, id) {
		t.Error("HasCredentials after save = false")
	}
	if HasCredentials(dir, id+"x") {
		t.Error("credentials leak across identifiers")
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(credentialsPath(dir, id))
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("credentials mode = %o, want 600", perm)
		}
	}
}

func TestLoadCredentialsCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(credentialsPath(dir, "id"), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCredentials(dir, "id"); err == nil || !strings.Contains(err.Error(), "parse credentials") {
		t.Errorf("err = %v", err)
	}
}

func TestConfigAddrAndIdentifier(t *testing.T) {
	tests := []struct {
		cfg      Config
		wantAddr string
		wantID   string
	}{
		{Config{Host: "mail.company.com", TLS: true, Username: "user@company.com"}, "mail.company.com:993", "imaps://user@company.com@mail.company.com:993"},
		{Config{Host: "localhost", STARTTLS: true, Username: "bob"}, "localhost:143", "imap://bob@localhost:143"},
		{Config{Host: "localhost", Port: 1143, Username: "bob"}, "localhost:1143", "imap://bob@localhost:1143"},
	}
	for _, tt := range tests {
		if got := tt.cfg.Addr(); got != tt.wantAddr {
			t.Errorf("Addr() = %q, want %q", got, tt.wantAddr)
		}
		if got := tt.cfg.Identifier(); got != tt.wantID {
			t.Errorf("Identifier() = %q, want %q", got, tt.wantID)
		}
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default(t.TempDir())
	cfg.IMAP.Host = "mail.company.com"
	cfg.IMAP.Username = "user"
	cfg.IMAP.Auth = AuthPlain
	cfg.Store.MaxFolderDepth = 4

	got := FromConfig(cfg)
	want := Config{Host: "mail.company.com", Port: 993, TLS: true, Username: "user", Auth: AuthPlain, MaxFolderDepth: 4}
	if *got != want {
		t.Errorf("FromConfig() = %+v, want %+v", *got, want)
	}
}
