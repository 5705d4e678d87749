package cmd

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wesm/mailquery/internal/config"
	"github.com/wesm/mailquery/internal/imap"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the IMAP password for the configured server",
	Long: `Prompt for the password of the IMAP account named in the [imap] section
of config.toml, verify it against the server and store it under the
tokens directory with owner-only permissions.

The password is read interactively only, never from a flag, so it does
not end up in shell history or process listings. Setting
MAILQUERY_IMAP_PASSWORD skips the stored credentials entirely.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.IMAP.Host == "" {
			return fmt.Errorf("imap.host is not configured")
		}
		if cfg.IMAP.Username == "" {
			return fmt.Errorf("imap.username is not configured")
		}
		imapCfg := imap.FromConfig(cfg)

		fmt.Printf("Password for %s@%s: ", imapCfg.Username, imapCfg.Host)
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		password := string(raw)
		if password == "" {
			return fmt.Errorf("password is required")
		}

		fmt.Printf("Testing connection to %s...\n", imapCfg.Addr())
		s := imap.New(imapCfg, password, imap.WithLogger(logger))
		err = s.Ping(cmd.Context())
		_ = s.Close()
		if err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}

		if err := imap.SaveCredentials(cfg.TokensDir(), imapCfg.Identifier(), password); err != nil {
			return fmt.Errorf("save credentials: %w", err)
		}

		fmt.Printf("Credentials saved for %s\n", imapCfg.Identifier())
		if cfg.Store.Backend != config.BackendIMAP {
			fmt.Println()
			fmt.Println(`Set backend = "imap" in the [store] section to search this server.`)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
