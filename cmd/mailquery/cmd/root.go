package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wesm/mailquery/internal/config"
	"github.com/wesm/mailquery/internal/governor"
)

var (
	cfgFile string
	homeDir string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mailquery",
	Short: "Query a mailbox with multiple criteria",
	Long: `mailquery searches a mailbox by sender, subject, date range, read state,
attachments and importance, and returns sorted results page by page or
as a memory-bounded stream.

Every query runs under configurable ceilings on memory, processing time
and result count. Connection failures to the mail server are retried
with backoff.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		// Interactive commands keep stderr for warnings; the server logs
		// every request.
		level := slog.LevelWarn
		if cmd.Name() == "serve" {
			level = slog.LevelInfo
		}
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))

		// --home is passed through so it influences where config.toml is
		// loaded from, like MAILQUERY_HOME.
		var err error
		cfg, err = config.Load(cfgFile, homeDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
			return err
		}

		if err := os.MkdirAll(cfg.HomeDir, 0700); err != nil {
			return fmt.Errorf("create data directory %s: %w", cfg.HomeDir, err)
		}
		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
	}
	return err
}

// IsCancelled reports whether err is a cancelled operation.
func IsCancelled(err error) bool {
	return errors.Is(err, governor.ErrCancelled) || errors.Is(err, context.Canceled)
}

// formatError renders err with a hint for the user.
func formatError(err error) string {
	switch governor.Classify(err) {
	case governor.CategoryPermanent:
		return "Error: " + err.Error()
	default:
		return fmt.Sprintf("Error: %v\n%s", err, governor.Suggestion(err))
	}
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.mailquery/config.toml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "home directory (overrides MAILQUERY_HOME)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
