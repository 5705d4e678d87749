package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/mailquery/internal/api"
	"github.com/wesm/mailquery/internal/governor"
	"github.com/wesm/mailquery/internal/mailstore"
	"github.com/wesm/mailquery/internal/scheduler"
)

// healthJobName is the scheduler job that watches the mail store connection.
const healthJobName = "connection-health"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the search HTTP API",
	Long: `Run mailquery as a long-running HTTP API server.

The server runs in the foreground and provides:
  - GET /api/v1/search     multi-criteria search with pagination
  - GET /api/v1/folders    the folder tree with message counts
  - GET /api/v1/messages/{id}
  - GET /health            connection status, no auth required
  - GET /metrics           Prometheus metrics

The mail store connection is checked on the connection.health_schedule
cron expression (default "@every 1m") and reconnected with backoff when
it drops.

Configure the listener in config.toml:
  [server]
  api_port = 8080
  bind_addr = "127.0.0.1"
  api_key = "..."           # required when binding beyond loopback

Use Ctrl+C to stop the server gracefully.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Validate security posture before doing any work
	if err := cfg.Server.ValidateSecure(); err != nil {
		return err
	}
	if err := scheduler.ValidateCronExpr(cfg.Connection.HealthSchedule); err != nil {
		return fmt.Errorf("connection.health_schedule: %w", err)
	}

	ctx := cmd.Context()

	s, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()
	rec, closeAudit := openAudit()
	defer closeAudit()

	engine := newEngine(s)
	health := newConnectionMonitor(s)
	if health.Check(ctx) != governor.StatusConnected {
		logger.Warn("mail store unreachable at startup; serving anyway", "backend", cfg.Store.Backend)
	}

	sched := scheduler.New().WithLogger(logger)
	if err := sched.AddJob(healthJobName, cfg.Connection.HealthSchedule, healthJob(health)); err != nil {
		return err
	}
	sched.Start()

	apiServer := api.NewServer(cfg, api.Deps{
		Engine:    engine,
		Health:    health,
		Scheduler: sched,
		Audit:     rec,
	}, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	bindAddr := cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	fmt.Printf("mailquery API started\n")
	fmt.Printf("  API server: http://%s\n", net.JoinHostPort(bindAddr, strconv.Itoa(cfg.Server.APIPort)))
	fmt.Printf("  Mail store: %s\n", cfg.Store.Backend)
	fmt.Printf("  Limits: %s\n", cfg.GovernorLimits())
	fmt.Println()
	for _, status := range sched.Status() {
		fmt.Printf("  %s: next check at %s\n", status.Name, status.NextRun.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
		fmt.Println("\nShutting down...")
	case err := <-serverErr:
		logger.Error("API server error", "error", err)
		runErr = fmt.Errorf("API server: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}

	schedCtx := sched.Stop()
	select {
	case <-schedCtx.Done():
		fmt.Println("Shutdown complete.")
	case <-time.After(30 * time.Second):
		fmt.Println("Shutdown timed out after 30 seconds.")
	}

	return runErr
}

// newConnectionMonitor watches s with the [connection] retry settings.
func newConnectionMonitor(s mailstore.Store) *governor.ConnectionMonitor {
	return governor.NewConnectionMonitor(mailstore.HealthCheck(s),
		governor.WithMaxRetries(cfg.Connection.MaxRetries),
		governor.WithRetryDelay(cfg.RetryDelay()),
		governor.WithConnectionLogger(logger),
	)
}

// healthJob checks the connection and reconnects with backoff when it is
// down. The job fails only when reconnection is exhausted.
func healthJob(m *governor.ConnectionMonitor) scheduler.JobFunc {
	return func(ctx context.Context) error {
		return m.EnsureConnected(ctx, func(context.Context) error { return nil })
	}
}
