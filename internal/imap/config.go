// Package imap provides a mailstore.Store backed by a live IMAP server.
package imap

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/wesm/mailquery/internal/config"
)

// Auth mechanisms.
const (
	AuthLogin = "login"
	AuthPlain = "plain"
)

// Config holds connection settings for an IMAP server.
type Config struct {
	Host     string
	Port     int
	TLS      bool // Implicit TLS (IMAPS, port 993)
	STARTTLS bool // STARTTLS upgrade (port 143)
	Username string
	Auth     string
	// MaxFolderDepth bounds ListFolders walks.
	MaxFolderDepth int
}

// FromConfig builds a Config from the [imap] and [store] sections.
func FromConfig(cfg *config.Config) *Config {
	return &Config{
		Host:           cfg.IMAP.Host,
		Port:           cfg.IMAP.Port,
		TLS:            cfg.IMAP.TLS,
		STARTTLS:       cfg.IMAP.STARTTLS,
		Username:       cfg.IMAP.Username,
		Auth:           cfg.IMAP.Auth,
		MaxFolderDepth: cfg.Store.MaxFolderDepth,
	}
}

func (c *Config) port() int {
	if c.Port != 0 {
		return c.Port
	}
	if c.TLS {
		return 993
	}
	return 143
}

// Addr returns the "host:port" string.
func (c *Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.port())
}

// Identifier returns a canonical string like "imaps://user@host:port".
// Credentials are keyed by it.
func (c *Config) Identifier() string {
	scheme := "imap"
	if c.TLS {
		scheme = "imaps"
	}
	return fmt.Sprintf("%s://%s@%s:%d", scheme, url.PathEscape(c.Username), c.Host, c.port())
}
