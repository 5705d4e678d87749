package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/wesm/mailquery/internal/governor"
	"github.com/wesm/mailquery/internal/mailstore"
)

var (
	foldersFlat bool
	foldersJSON bool
)

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "List folders with message counts",
	Long: `List every folder of the mail store, walked breadth-first, with total
and unread message counts. Folders are shown as a tree unless --flat is
given, in which case full paths are printed.

Examples:
  mailquery folders
  mailquery folders --flat
  mailquery folders --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()
		engine := newEngine(s)

		folders, err := guarded(cmd.Context(), governor.OpFolderRead, func(ctx context.Context) ([]mailstore.Folder, error) {
			return engine.Folders(ctx)
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if foldersJSON {
			return writeJSON(out, folders)
		}
		writeFolders(out, folders, foldersFlat)
		return nil
	},
}

// writeFolders prints folders as an indented tree, or by full path when
// flat.
func writeFolders(w io.Writer, folders []mailstore.Folder, flat bool) {
	if len(folders) == 0 {
		fmt.Fprintln(w, "No folders found.")
		return
	}

	labels := make([]string, len(folders))
	width := len("FOLDER")
	for i, f := range folders {
		if flat {
			labels[i] = f.Path
		} else {
			labels[i] = strings.Repeat("  ", f.Depth) + f.Name
		}
		width = max(width, runewidth.StringWidth(labels[i]))
	}
	width = min(width, 60)

	fmt.Fprintf(w, "%s  %8s  %8s\n", cell("FOLDER", width), "TOTAL", "UNREAD")
	var total, unread int
	for i, f := range folders {
		fmt.Fprintf(w, "%s  %8d  %8d\n", cell(labels[i], width), f.TotalCount, f.UnreadCount)
		total += f.TotalCount
		unread += f.UnreadCount
	}
	fmt.Fprintf(w, "\n%d folders, %d messages, %d unread\n", len(folders), total, unread)
}

func init() {
	rootCmd.AddCommand(foldersCmd)
	foldersCmd.Flags().BoolVar(&foldersFlat, "flat", false, "Print full folder paths instead of a tree")
	foldersCmd.Flags().BoolVar(&foldersJSON, "json", false, "Output as JSON")
}
