package imap

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
)

// ErrNoCredentials is returned by LoadCredentials when nothing is stored.
var ErrNoCredentials = errors.New("no stored credentials")

type credentialsFile struct {
	Password string `json:"password"`
}

// credentialsPath returns the path to the credentials file for the given identifier.
func credentialsPath(tokensDir, identifier string) string {
	hash := sha256.Sum256([]byte(identifier))
	prefix := fmt.Sprintf("%x", hash[:8])
	return filepath.Join(tokensDir, "imap_"+prefix+".json")
}

// SaveCredentials stores an IMAP password for identifier, readable by the
// owner only.
func SaveCredentials(tokensDir, identifier, password string) error {
	if err := os.MkdirAll(tokensDir, 0700); err != nil {
		return fmt.Errorf("create tokens dir: %w", err)
	}
	data, err := json.Marshal(credentialsFile{Password: password})
	if err != nil {
		return err
	}
	path := credentialsPath(tokensDir, identifier)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("chmod credentials: %w", err)
	}
	return nil
}

// LoadCredentials loads the IMAP password for identifier.
func LoadCredentials(tokensDir, identifier string) (string, error) {
	data, err := os.ReadFile(credentialsPath(tokensDir, identifier))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w for %s (run 'mailquery login' first)", ErrNoCredentials, identifier)
		}
		return "", fmt.Errorf("read credentials: %w", err)
	}
	var creds credentialsFile
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", fmt.Errorf("parse credentials: %w", err)
	}
	return creds.Password, nil
}

// HasCredentials returns true if credentials exist for the given identifier.
func HasCredentials(tokensDir, identifier string) bool {
	_, err := os.Stat(credentialsPath(tokensDir, identifier))
	return err == nil
}

// authenticate logs conn in with the configured mechanism.
func authenticate(conn *imapclient.Client, cfg *Config, password string) error {
	switch cfg.Auth {
	case AuthPlain:
		if err := conn.Authenticate(sasl.NewPlainClient("", cfg.Username, password)); err != nil {
			return fmt.Errorf("AUTHENTICATE PLAIN: %w", err)
		}
	case AuthLogin, "":
		if err := conn.Login(cfg.Username, password).Wait(); err != nil {
			return fmt.Errorf("IMAP login: %w", err)
		}
	default:
		return fmt.Errorf("unsupported auth mechanism %q", cfg.Auth)
	}
	return nil
}
