package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/mailquery/internal/config"
	"github.com/wesm/mailquery/internal/governor"
	"github.com/wesm/mailquery/internal/mailstore"
)

var (
	moveConcurrency int
	moveJSON        bool
)

var moveCmd = &cobra.Command{
	Use:   "move <target-folder> <id>...",
	Short: "Move messages to another folder",
	Long: `Move one or more messages, by id, into the target folder. Each move
is attempted independently; failures are reported per message and do not
stop the rest.

Examples:
  mailquery move "Custom/Archive" "INBOX|4521" "INBOX|4522"
  mailquery move "Deleted Items" "Sent Items|17" --json`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, ids := args[0], args[1:]

		s, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()
		rec, closeAudit := openAudit()
		defer closeAudit()
		monitor := newEngine(s).Monitor()

		concurrency := moveConcurrency
		if cfg.Store.Backend == config.BackendIMAP {
			// One connection serves every call.
			concurrency = 1
		}

		ctx := cmd.Context()
		start := time.Now()
		memBefore, _ := monitor.MemoryUsage()
		policy := cfg.GovernorTimeouts().Policy(governor.OpMove)
		results, err := governor.RunValue(ctx, policy, func(ctx context.Context) ([]mailstore.MoveResult, error) {
			return mailstore.MoveMany(ctx, s, ids, target, concurrency), nil
		})
		moved, failed := mailstore.MoveSummary(results)
		if err == nil && failed > 0 {
			err = fmt.Errorf("%d of %d moves failed", failed, len(ids))
		}
		recordOperation(ctx, rec, monitor, "move", map[string]any{"target": target, "ids": ids}, moved, err, start, memBefore)

		out := cmd.OutOrStdout()
		if moveJSON && results != nil {
			if jerr := writeJSON(out, results); jerr != nil {
				return jerr
			}
		} else {
			writeMoveResults(out, results, target)
		}
		return err
	},
}

func writeMoveResults(w io.Writer, results []mailstore.MoveResult, target string) {
	for _, r := range results {
		if r.Moved {
			fmt.Fprintf(w, "  moved   %s\n", r.ID)
		} else {
			fmt.Fprintf(w, "  failed  %s: %s\n", r.ID, r.Error)
		}
	}
	moved, failed := mailstore.MoveSummary(results)
	fmt.Fprintf(w, "\n%d moved to %s, %d failed\n", moved, target, failed)
}

func init() {
	rootCmd.AddCommand(moveCmd)
	moveCmd.Flags().IntVar(&moveConcurrency, "concurrency", 4, "Moves in flight at once (IMAP always uses 1)")
	moveCmd.Flags().BoolVar(&moveJSON, "json", false, "Output results as JSON")
}
