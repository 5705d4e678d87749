package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wesm/mailquery/internal/config"
	"github.com/wesm/mailquery/internal/governor"
	"github.com/wesm/mailquery/internal/mailstore"
	"github.com/wesm/mailquery/internal/scheduler"
)

func TestServeConfigParsing(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
[server]
api_port = 9090
api_key = "test-key"
bind_addr = "0.0.0.0"
cors_origins = ["http://localhost:3000"]

[connection]
max_retries = 5
retry_delay_seconds = 2
health_schedule = "*/5 * * * *"
`
	configPath := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := config.Load(configPath, tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if c.Server.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.Server.APIPort)
	}
	if err := c.Server.ValidateSecure(); err != nil {
		t.Errorf("ValidateSecure() with api_key = %v", err)
	}
	if c.Connection.MaxRetries != 5 || c.RetryDelay() != 2*time.Second {
		t.Errorf("connection = %+v", c.Connection)
	}
	if err := scheduler.ValidateCronExpr(c.Connection.HealthSchedule); err != nil {
		t.Errorf("health_schedule %q rejected: %v", c.Connection.HealthSchedule, err)
	}
}

func TestServeRefusesUnauthenticatedPublicBind(t *testing.T) {
	c := config.Default(t.TempDir())
	c.Server.BindAddr = "0.0.0.0"
	if err := c.Server.ValidateSecure(); err == nil {
		t.Error("expected error binding beyond loopback without api_key")
	}
}

func TestDefaultHealthScheduleIsValid(t *testing.T) {
	c := config.Default(t.TempDir())
	if err := scheduler.ValidateCronExpr(c.Connection.HealthSchedule); err != nil {
		t.Errorf("default health_schedule %q: %v", c.Connection.HealthSchedule, err)
	}
}

// noSleep skips reconnect backoff.
func noSleep(context.Context, time.Duration) error { return nil }

func TestHealthJob_Reconnects(t *testing.T) {
	useTestConfig(t)
	store := mailstore.NewMemoryStore()
	store.PingError = errors.New("connection reset")

	attempts := 0
	check := func(ctx context.Context) error {
		attempts++
		if attempts >= 3 {
			store.PingError = nil
		}
		return mailstore.HealthCheck(store)(ctx)
	}
	monitor := governor.NewConnectionMonitor(check,
		governor.WithMaxRetries(3), governor.WithSleep(noSleep), governor.WithConnectionLogger(logger))

	if err := healthJob(monitor)(context.Background()); err != nil {
		t.Fatalf("health job = %v", err)
	}
	if !monitor.Healthy() {
		t.Errorf("status = %s, want connected", monitor.Status())
	}
}

func TestHealthJob_GivesUp(t *testing.T) {
	useTestConfig(t)
	store := mailstore.NewMemoryStore()
	store.PingError = errors.New("connection refused")

	monitor := governor.NewConnectionMonitor(mailstore.HealthCheck(store),
		governor.WithMaxRetries(2), governor.WithSleep(noSleep), governor.WithConnectionLogger(logger))

	err := healthJob(monitor)(context.Background())
	if !errors.Is(err, governor.ErrConnection) {
		t.Fatalf("health job = %v, want connection error", err)
	}
	if info := monitor.Info(); info.Healthy || info.Attempts != 2 {
		t.Errorf("info = %+v", info)
	}
}

func TestNewConnectionMonitor_UsesConfig(t *testing.T) {
	c := useTestConfig(t)
	c.Connection.MaxRetries = 4
	c.Connection.RetryDelaySeconds = 3

	info := newConnectionMonitor(mailstore.NewMemoryStore()).Info()
	if info.MaxRetries != 4 || info.RetryDelay != "3s" {
		t.Errorf("info = %+v", info)
	}
	if info.Status != governor.StatusUnknown {
		t.Errorf("initial status = %s", info.Status)
	}
}
