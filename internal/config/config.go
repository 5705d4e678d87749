// Package config handles loading and managing mailquery configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/wesm/mailquery/internal/governor"
)

// Config represents the mailquery configuration.
type Config struct {
	Limits     LimitsConfig     `toml:"limits"`
	Timeouts   TimeoutsConfig   `toml:"timeouts"`
	Connection ConnectionConfig `toml:"connection"`
	Display    DisplayConfig    `toml:"display"`
	Store      StoreConfig      `toml:"store"`
	IMAP       IMAPConfig       `toml:"imap"`
	Audit      AuditConfig      `toml:"audit"`
	Server     ServerConfig     `toml:"server"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// LimitsConfig holds the per-query resource ceilings.
type LimitsConfig struct {
	MaxMemoryMB              float64 `toml:"max_memory_mb"`
	MaxProcessingTimeSeconds int     `toml:"max_processing_time_seconds"`
	MaxResultCount           int     `toml:"max_result_count"`
}

// TimeoutsConfig holds per-operation wall-clock ceilings in seconds.
type TimeoutsConfig struct {
	DefaultSeconds    int `toml:"default_seconds"`
	FolderReadSeconds int `toml:"folder_read_seconds"`
	SearchSeconds     int `toml:"search_seconds"`
	MoveSeconds       int `toml:"move_seconds"`
}

// ConnectionConfig holds the mail store connection retry policy.
type ConnectionConfig struct {
	MaxRetries        int    `toml:"max_retries"`
	RetryDelaySeconds int    `toml:"retry_delay_seconds"`
	HealthSchedule    string `toml:"health_schedule"` // cron expression for serve
}

// DisplayConfig holds result presentation settings.
type DisplayConfig struct {
	PageSize             int `toml:"page_size"`
	ChunkSize            int `toml:"chunk_size"`
	LargeResultThreshold int `toml:"large_result_threshold"`
}

// Store backends.
const (
	BackendMemory = "memory"
	BackendIMAP   = "imap"
)

// StoreConfig selects and tunes the mail store.
type StoreConfig struct {
	Backend           string  `toml:"backend"`             // "memory" or "imap"
	RequestsPerSecond float64 `toml:"requests_per_second"` // 0 = unthrottled
	MaxFolderDepth    int     `toml:"max_folder_depth"`
}

// IMAPConfig holds the live mail server connection settings.
type IMAPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	TLS      bool   `toml:"tls"`
	STARTTLS bool   `toml:"starttls"`
	Username string `toml:"username"`
	Auth     string `toml:"auth"` // "login" or "plain"
}

// AuditConfig controls the SQLite audit trail.
type AuditConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort        int      `toml:"api_port"`         // HTTP server port (default: 8080)
	BindAddr       string   `toml:"bind_addr"`        // listen address (default: 127.0.0.1)
	APIKey         string   `toml:"api_key"`          // API authentication key
	RateLimitQPS   float64  `toml:"rate_limit_qps"`   // per-IP requests per second
	RateLimitBurst int      `toml:"rate_limit_burst"` // per-IP burst
	CORSOrigins    []string `toml:"cors_origins"`     // empty disables CORS headers
}

// ValidateSecure refuses to expose an unauthenticated API beyond loopback.
func (s ServerConfig) ValidateSecure() error {
	if s.APIKey != "" || isLoopback(s.BindAddr) {
		return nil
	}
	return fmt.Errorf("refusing to bind %s without [server] api_key", s.BindAddr)
}

func isLoopback(addr string) bool {
	if addr == "" || addr == "localhost" {
		return true
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsLoopback()
}

// DefaultHome returns the default mailquery home directory.
// Respects MAILQUERY_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("MAILQUERY_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mailquery"
	}
	return filepath.Join(home, ".mailquery")
}

// Default returns the configuration used when no file is present.
func Default(homeDir string) *Config {
	return &Config{
		HomeDir: homeDir,
		Limits: LimitsConfig{
			MaxMemoryMB:              governor.DefaultMaxMemoryMB,
			MaxProcessingTimeSeconds: int(governor.DefaultMaxProcessingTime / time.Second),
			MaxResultCount:           governor.DefaultMaxResultCount,
		},
		Timeouts: TimeoutsConfig{
			DefaultSeconds:    30,
			FolderReadSeconds: 60,
			SearchSeconds:     45,
			MoveSeconds:       30,
		},
		Connection: ConnectionConfig{
			MaxRetries:        governor.DefaultMaxRetries,
			RetryDelaySeconds: int(governor.DefaultRetryDelay / time.Second),
			HealthSchedule:    "@every 1m",
		},
		Display: DisplayConfig{
			PageSize:             10,
			ChunkSize:            50,
			LargeResultThreshold: 1000,
		},
		Store: StoreConfig{
			Backend:        BackendMemory,
			MaxFolderDepth: 10,
		},
		IMAP: IMAPConfig{
			Port: 993,
			TLS:  true,
			Auth: "login",
		},
		Audit: AuditConfig{
			Enabled: true,
		},
		Server: ServerConfig{
			APIPort:        8080,
			BindAddr:       "127.0.0.1",
			RateLimitQPS:   10,
			RateLimitBurst: 20,
		},
	}
}

// Load reads the configuration from the specified file.
// If homeDir is empty, DefaultHome is used. If path is empty, uses the
// default location (<home>/config.toml). A missing file yields defaults.
func Load(path, homeDir string) (*Config, error) {
	if homeDir == "" {
		homeDir = DefaultHome()
	} else {
		homeDir = expandPath(homeDir)
	}

	explicit := path != ""
	if !explicit {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := Default(homeDir)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, decodeError(err)
	}

	cfg.Audit.Path = expandPath(cfg.Audit.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the rest of the program cannot honor.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendIMAP:
		if c.IMAP.Host == "" {
			return fmt.Errorf("imap backend requires [imap] host")
		}
		if c.IMAP.Auth != "" && c.IMAP.Auth != "login" && c.IMAP.Auth != "plain" {
			return fmt.Errorf("invalid [imap] auth %q (want login or plain)", c.IMAP.Auth)
		}
	default:
		return fmt.Errorf("invalid [store] backend %q (want memory or imap)", c.Store.Backend)
	}
	if c.Store.RequestsPerSecond < 0 {
		return fmt.Errorf("[store] requests_per_second must not be negative")
	}
	return nil
}

// Environment overrides read by ApplyEnv.
const (
	EnvMaxMemoryMB       = "MAILQUERY_MAX_MEMORY_MB"
	EnvMaxProcessingTime = "MAILQUERY_MAX_PROCESSING_TIME"
	EnvMaxResultCount    = "MAILQUERY_MAX_RESULT_COUNT"
	EnvAuditEnabled      = "MAILQUERY_AUDIT_ENABLED"
)

// ApplyEnv overlays environment overrides onto cfg. lookup is normally
// os.LookupEnv; it is a parameter so only the process boundary reads the
// environment.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvMaxMemoryMB); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("%s: invalid value %q", EnvMaxMemoryMB, v)
		}
		cfg.Limits.MaxMemoryMB = f
	}
	if v, ok := lookup(EnvMaxProcessingTime); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s: invalid value %q", EnvMaxProcessingTime, v)
		}
		cfg.Limits.MaxProcessingTimeSeconds = n
	}
	if v, ok := lookup(EnvMaxResultCount); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s: invalid value %q", EnvMaxResultCount, v)
		}
		cfg.Limits.MaxResultCount = n
	}
	if v, ok := lookup(EnvAuditEnabled); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: invalid value %q", EnvAuditEnabled, v)
		}
		cfg.Audit.Enabled = b
	}
	return nil
}

// GovernorLimits returns the resource ceilings for the engine.
func (c *Config) GovernorLimits() governor.Limits {
	return governor.Limits{
		MaxMemoryMB:       c.Limits.MaxMemoryMB,
		MaxProcessingTime: seconds(c.Limits.MaxProcessingTimeSeconds),
		MaxResultCount:    c.Limits.MaxResultCount,
	}
}

// GovernorTimeouts returns the per-operation timeout ceilings.
func (c *Config) GovernorTimeouts() governor.Timeouts {
	return governor.Timeouts{
		Default:    seconds(c.Timeouts.DefaultSeconds),
		FolderRead: seconds(c.Timeouts.FolderReadSeconds),
		Search:     seconds(c.Timeouts.SearchSeconds),
		Move:       seconds(c.Timeouts.MoveSeconds),
	}
}

// RetryDelay returns the base reconnect backoff.
func (c *Config) RetryDelay() time.Duration {
	return seconds(c.Connection.RetryDelaySeconds)
}

// AuditPath returns the path to the audit database.
func (c *Config) AuditPath() string {
	if c.Audit.Path != "" {
		return c.Audit.Path
	}
	return filepath.Join(c.HomeDir, "audit.db")
}

// TokensDir returns the path to the stored IMAP credentials directory.
func (c *Config) TokensDir() string {
	return filepath.Join(c.HomeDir, "tokens")
}

// decodeError adds a hint for the usual cause of TOML escape errors:
// Windows paths written with backslashes inside double quotes.
func decodeError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "invalid escape") || strings.Contains(msg, "hexadecimal digits") {
		return fmt.Errorf("decode config: %w (hint: use forward slashes or single quotes for Windows paths)", err)
	}
	return fmt.Errorf("decode config: %w", err)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
