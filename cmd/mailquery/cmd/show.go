package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wesm/mailquery/internal/governor"
	"github.com/wesm/mailquery/internal/mailstore"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show message details",
	Long: `Show the summary fields of one message by the id printed by search
--json.

Examples:
  mailquery show "INBOX|4521"
  mailquery show "INBOX|4521" --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()
		engine := newEngine(s)

		email, err := guarded(cmd.Context(), governor.OpFolderRead, func(ctx context.Context) (*mailstore.Email, error) {
			return engine.Email(ctx, args[0])
		})
		if err != nil {
			return err
		}

		if showJSON {
			return writeJSON(cmd.OutOrStdout(), email)
		}
		writeEmailDetail(cmd.OutOrStdout(), email)
		return nil
	},
}

func writeEmailDetail(w io.Writer, e *mailstore.Email) {
	fmt.Fprintln(w, strings.Repeat("═", 79))
	fmt.Fprintf(w, "Message ID: %s\n", e.ID)
	fmt.Fprintln(w, strings.Repeat("─", 79))
	fmt.Fprintf(w, "From:        %s\n", e.Sender())
	if len(e.Recipients) > 0 {
		fmt.Fprintf(w, "To:          %s\n", strings.Join(e.Recipients, ", "))
	}
	fmt.Fprintf(w, "Date:        %s\n", e.ReceivedAt.Local().Format("Mon, 02 Jan 2006 15:04:05 MST"))
	fmt.Fprintf(w, "Subject:     %s\n", e.Subject)
	fmt.Fprintf(w, "Folder:      %s\n", e.FolderPath)
	fmt.Fprintf(w, "Importance:  %s\n", e.Importance)
	read := "no"
	if e.IsRead {
		read = "yes"
	}
	fmt.Fprintf(w, "Read:        %s\n", read)
	if e.HasAttachments {
		fmt.Fprintf(w, "Attachments: %d\n", e.AttachmentCount)
	}
	if e.Size > 0 {
		fmt.Fprintf(w, "Size:        %s\n", formatSize(e.Size))
	}
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1fG", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1fM", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1fK", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")
}
