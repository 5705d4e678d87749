package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/wesm/mailquery/internal/audit"
	"github.com/wesm/mailquery/internal/governor"
	"github.com/wesm/mailquery/internal/mailstore"
	"github.com/wesm/mailquery/internal/query"
	"github.com/wesm/mailquery/internal/search"
)

type searchOptions struct {
	sort      string
	order     string
	page      int
	pageSize  int
	stream    bool
	chunkSize int
	json      bool
}

var searchOpts searchOptions

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Search messages by multiple criteria",
	Long: `Search the mailbox with any combination of filters. Filters can be given
as flags, as Gmail-like operators in the query, or both; flags win over
operators for the same field.

Supported operators:
  from:, -from:          Sender substring, and its exclusion
  subject:, -subject:    Subject substring, and its exclusion
  in:, folder:           Folder path ("all" for every folder)
  after:, since:         Lower date bound
  before:, until:        Upper date bound
  is:read, is:unread     Read state
  has:attachment         Messages with attachments (-has: for none)
  importance:            high, normal or low

Bare words and "quoted phrases" match the subject.

Dates accept YYYY-MM-DD, relative amounts (7d, 2w, 3h, 1M, 30m, 1y),
today, yesterday, tomorrow, this-week, last-week, this-month,
last-month, this-year, last-year, weekday names (mon, friday) and
last-<weekday>.

Examples:
  mailquery search --sender alice --since 7d --has-attachment
  mailquery search from:bob is:unread --sort subject --order asc
  mailquery search --folder "Custom/Projects" --importance high
  mailquery search --since this-month --stream --chunk-size 100`,
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	req, err := buildSearchRequest(search.NewParser(), args, cmd.Flags(), searchOpts)
	if err != nil {
		return err
	}

	s, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()
	rec, closeAudit := openAudit()
	defer closeAudit()

	return executeSearch(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), newEngine(s), rec, req, searchOpts, isTerminal(os.Stderr))
}

// buildSearchRequest turns the query arguments and filter flags into a
// validated request. Nothing here touches the mail store.
func buildSearchRequest(p *search.Parser, args []string, flags *pflag.FlagSet, opts searchOptions) (query.Request, error) {
	c := &search.Criteria{}
	if len(args) > 0 {
		parsed, err := p.Parse(strings.Join(args, " "))
		if err != nil {
			return query.Request{}, err
		}
		c = parsed
	}
	for _, field := range search.Fields {
		name := strings.ReplaceAll(field, "_", "-")
		if !flags.Changed(name) {
			continue
		}
		if err := p.Set(c, field, flags.Lookup(name).Value.String()); err != nil {
			return query.Request{}, err
		}
	}
	if err := c.Validate(); err != nil {
		return query.Request{}, err
	}

	field, err := query.ParseSortField(opts.sort)
	if err != nil {
		return query.Request{}, err
	}
	order, err := query.ParseSortOrder(opts.order)
	if err != nil {
		return query.Request{}, err
	}
	if opts.page < 1 {
		return query.Request{}, fmt.Errorf("--page must be at least 1")
	}
	pageSize := opts.pageSize
	if pageSize <= 0 {
		pageSize = cfg.Display.PageSize
	}
	page := opts.page
	if opts.stream {
		page = 1
	}

	return query.Request{
		Criteria:  c,
		SortField: field,
		SortOrder: order,
		Page:      page,
		PageSize:  pageSize,
	}, nil
}

// executeSearch runs req and writes the page, or every result in chunks
// when streaming.
func executeSearch(ctx context.Context, out, errOut io.Writer, engine *query.Engine, rec audit.Recorder, req query.Request, opts searchOptions, showProgress bool) error {
	start := time.Now()
	memBefore, _ := engine.Monitor().MemoryUsage()

	res, err := guarded(ctx, governor.OpSearch, func(ctx context.Context) (*query.Result, error) {
		return engine.Run(ctx, req)
	})

	count := 0
	if res != nil {
		count = res.Page.TotalItems
	}
	recordOperation(ctx, rec, engine.Monitor(), "search", req.Criteria, count, err, start, memBefore)
	if err != nil {
		return err
	}

	if opts.stream {
		chunkSize := opts.chunkSize
		if chunkSize <= 0 {
			chunkSize = cfg.Display.ChunkSize
		}
		return streamResults(ctx, out, errOut, engine.Monitor(), res.All, chunkSize, opts.json, showProgress)
	}
	if opts.json {
		return writeJSON(out, res)
	}
	writePageTable(out, res)
	return nil
}

// streamResults writes emails chunk by chunk, checking the memory ceiling
// before each chunk. JSON output is one object per line.
func streamResults(ctx context.Context, out, errOut io.Writer, checker query.MemoryChecker, emails []mailstore.Email, chunkSize int, asJSON, showProgress bool) error {
	sp := query.NewStreamingPaginator(checker, logger)

	var progress *governor.Progress
	if showProgress && query.ShouldReportProgress(len(emails), cfg.Display.LargeResultThreshold) {
		progress = governor.NewProgress(len(emails), time.Now())
	}

	enc := json.NewEncoder(out)
	if !asJSON {
		if len(emails) == 0 {
			fmt.Fprintln(out, "No messages found.")
			return nil
		}
		writeEmailHeader(out)
	}

	delivered := 0
	for chunk, err := range sp.Stream(ctx, emails, chunkSize) {
		if err != nil {
			if progress != nil {
				fmt.Fprintln(errOut)
			}
			return fmt.Errorf("stream stopped after %d of %d messages: %w", delivered, len(emails), err)
		}
		if asJSON {
			for i := range chunk {
				if err := enc.Encode(&chunk[i]); err != nil {
					return err
				}
			}
		} else {
			writeEmailRows(out, chunk)
		}
		delivered += len(chunk)
		if progress != nil {
			progress.Add(len(chunk))
			fmt.Fprintf(errOut, "\r  %s  ETA %s ", progress, progress.ETA(time.Now()).Round(time.Second))
		}
	}
	if progress != nil {
		fmt.Fprintln(errOut)
	}
	if !asJSON {
		fmt.Fprintf(out, "\n%d messages\n", delivered)
	}
	return nil
}

// recordOperation writes the audit entries for one operation. The audit
// write outlives a cancelled ctx.
func recordOperation(ctx context.Context, rec audit.Recorder, monitor *governor.Monitor, op string, criteria any, count int, opErr error, start time.Time, memBefore float64) {
	ctx = context.WithoutCancel(ctx)
	var memUsed float64
	if memAfter, err := monitor.MemoryUsage(); err == nil {
		memUsed = max(memAfter-memBefore, 0)
	}
	if opErr != nil {
		logger.Debug("operation failed", "operation", op, "category", governor.Classify(opErr), "error", opErr)
	}
	audit.BestEffort(rec, logger).Record(ctx, audit.Search{
		Operation:   op,
		User:        cliUser(),
		Criteria:    criteria,
		ResultCount: count,
		Err:         opErr,
	}, audit.Performance{
		Operation:    op,
		Duration:     time.Since(start),
		MemoryUsedMB: memUsed,
		ResultCount:  count,
	})
}

// addSearchFlags registers the filter and output flags. Filter flags are
// named after the criteria fields with dashes and are read back by name.
func addSearchFlags(f *pflag.FlagSet, opts *searchOptions) {
	f.String("sender", "", "Sender address or name substring")
	f.String("subject", "", "Subject substring")
	f.String("folder", "", `Folder path to search ("all" for every folder)`)
	f.String("since", "", "Only messages received at or after this date")
	f.String("until", "", "Only messages received at or before this date")
	f.Bool("is-read", false, "Only read messages")
	f.Bool("is-unread", false, "Only unread messages")
	f.Bool("has-attachment", false, "Only messages with attachments")
	f.Bool("no-attachment", false, "Only messages without attachments")
	f.String("importance", "", "Importance level: high, normal or low")
	f.String("not-sender", "", "Exclude senders containing this substring")
	f.String("not-subject", "", "Exclude subjects containing this substring")

	f.StringVar(&opts.sort, "sort", "", "Sort by received_date, subject, sender or importance")
	f.StringVar(&opts.order, "order", "desc", "Sort order: asc or desc")
	f.IntVar(&opts.page, "page", 1, "Page number to show")
	f.IntVar(&opts.pageSize, "page-size", 0, "Messages per page (default from config)")
	f.BoolVar(&opts.stream, "stream", false, "Stream every result in chunks instead of one page")
	f.IntVar(&opts.chunkSize, "chunk-size", 0, "Messages per streamed chunk (default from config)")
	f.BoolVar(&opts.json, "json", false, "Output as JSON")
}

func init() {
	rootCmd.AddCommand(searchCmd)
	addSearchFlags(searchCmd.Flags(), &searchOpts)
}
