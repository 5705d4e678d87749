package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wesm/mailquery/internal/audit"
)

var (
	auditLimit int
	auditJSON  bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent audit trail entries",
	Long: `Show the most recent entries of the audit trail, newest first. Each
search and move records a filter_operation entry with its criteria and
result count, and a performance_metrics entry with duration and memory.

Examples:
  mailquery audit
  mailquery audit --limit 100 --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.AuditPath()
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if !cfg.Audit.Enabled {
				return fmt.Errorf("auditing is disabled; set enabled = true in the [audit] section")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "No audit entries yet.")
			return nil
		}

		st, err := audit.Open(path)
		if err != nil {
			return fmt.Errorf("open audit trail: %w", err)
		}
		defer st.Close()

		entries, err := st.Recent(cmd.Context(), auditLimit)
		if err != nil {
			return err
		}
		if auditJSON {
			return writeJSON(cmd.OutOrStdout(), entries)
		}
		writeAuditEntries(cmd.OutOrStdout(), entries)
		return nil
	},
}

func writeAuditEntries(w io.Writer, entries []audit.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No audit entries yet.")
		return
	}
	fmt.Fprintf(w, "%s  %s  %s  %s  %7s  %s\n",
		cell("TIME", 19), cell("KIND", 19), cell("OPERATION", 9), cell("USER", 16), "RESULTS", "DETAILS")
	for _, e := range entries {
		details, _ := json.Marshal(e.Details)
		fmt.Fprintf(w, "%s  %s  %s  %s  %7d  %s\n",
			e.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			cell(e.Kind, 19),
			cell(e.Operation, 9),
			cell(e.User, 16),
			e.ResultCount,
			truncate(string(details), 60),
		)
	}
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "Number of entries to show")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "Output as JSON")
}
