package query

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/wesm/mailquery/internal/governor"
	"github.com/wesm/mailquery/internal/mailstore"
	"github.com/wesm/mailquery/internal/search"
	"github.com/wesm/mailquery/internal/testutil"
	"github.com/wesm/mailquery/internal/testutil/ptr"
)

func lowMemory() governor.MonitorOption {
	return governor.WithMemoryReader(func() (float64, error) { return 10, nil })
}

func newTestEngine(s mailstore.Store, limits governor.Limits) *Engine {
	return NewEngine(s, WithMonitor(governor.NewMonitor(limits, lowMemory())))
}

func TestEngine_ThreeFlagScenario(t *testing.T) {
	store := testutil.StoreWith(
		testutil.NewEmail("all-three").Unread().Attachments(1).Importance(mailstore.ImportanceHigh).Build(),
		testutil.NewEmail("two-of-three").Unread().Attachments(2).Importance(mailstore.ImportanceLow).Build(),
		testutil.NewEmail("none").Read().Importance(mailstore.ImportanceNormal).Build(),
	)
	e := newTestEngine(store, governor.Limits{})

	got, err := e.Search(context.Background(), &search.Criteria{
		Folder:        "Inbox",
		IsUnread:      true,
		HasAttachment: true,
		Importance:    "high",
	})
	testutil.MustNoErr(t, err, "Search")
	testutil.AssertIDs(t, got, "all-three")
}

func TestEngine_AllFoldersConcatenatesInOrder(t *testing.T) {
	store := mailstore.NewSampleStore(testutil.BaseTime)
	e := newTestEngine(store, governor.Limits{})

	got, err := e.Search(context.Background(), &search.Criteria{Folder: "all"})
	testutil.MustNoErr(t, err, "Search")
	testutil.AssertIDs(t, got,
		"inbox-001", "inbox-002", "inbox-003", "inbox-004",
		"sent-001", "sent-002", "draft-001", "proj-001", "arch-001")

	testutil.AssertStrings(t, store.ListEmailsCalls,
		"Inbox", "Sent Items", "Drafts", "Deleted Items", "Custom", "Custom/Projects", "Custom/Archive")
}

func TestEngine_SingleFolderNotFound(t *testing.T) {
	store := mailstore.NewSampleStore(testutil.BaseTime)
	e := newTestEngine(store, governor.Limits{})

	_, err := e.Search(context.Background(), &search.Criteria{Folder: "Nope"})
	if !errors.Is(err, mailstore.ErrNotFound) {
		t.Fatalf("Search = %v, want ErrNotFound", err)
	}
	if governor.Classify(err) != governor.CategoryUser {
		t.Errorf("Classify = %v, want user_error", governor.Classify(err))
	}
}

func TestEngine_ValidatesBeforeStoreAccess(t *testing.T) {
	store := mailstore.NewSampleStore(testutil.BaseTime)
	e := newTestEngine(store, governor.Limits{})

	_, err := e.Search(context.Background(), &search.Criteria{
		Since: ptr.Time(ptr.Date(2025, 6, 30)),
		Until: ptr.Time(ptr.Date(2025, 6, 1)),
	})
	if !errors.Is(err, search.ErrInvalidDateRange) {
		t.Fatalf("Search = %v, want ErrInvalidDateRange", err)
	}
	if store.ListFoldersCalls != 0 || len(store.ListEmailsCalls) != 0 {
		t.Errorf("store was accessed: folders=%d emails=%v", store.ListFoldersCalls, store.ListEmailsCalls)
	}
}

func TestEngine_ResultCountCeiling(t *testing.T) {
	store := testutil.StoreWith(testutil.NumberedEmails(5, "Inbox")...)
	e := newTestEngine(store, governor.Limits{MaxResultCount: 4})

	_, err := e.Search(context.Background(), &search.Criteria{})
	var re *governor.ResourceExceededError
	if !errors.As(err, &re) || re.Resource != governor.ResourceResultCount {
		t.Fatalf("Search = %v, want result_count ResourceExceededError", err)
	}
	if re.Actual != 5 || re.Limit != 4 {
		t.Errorf("got %+v", re)
	}

	// Filtering below the ceiling succeeds.
	got, err := e.Search(context.Background(), &search.Criteria{Subject: "nothing matches"})
	testutil.MustNoErr(t, err, "filtered search")
	if len(got) != 0 {
		t.Errorf("got %d results", len(got))
	}
}

func TestEngine_WithLimitsUsesEngineLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	store := testutil.StoreWith(testutil.NumberedEmails(3, "Inbox")...)
	e := NewEngine(store, WithLimits(governor.Limits{MaxResultCount: 2}), WithLogger(logger))

	if got := e.Monitor().Limits().MaxResultCount; got != 2 {
		t.Fatalf("MaxResultCount = %d, want 2", got)
	}
	_, err := e.Search(context.Background(), &search.Criteria{})
	if !errors.Is(err, governor.ErrResourceExceeded) {
		t.Fatalf("Search = %v, want ErrResourceExceeded", err)
	}
	if !strings.Contains(buf.String(), "resource ceiling crossed") {
		t.Errorf("ceiling not logged to the engine logger:\n%s", buf.String())
	}
}

func TestEngine_MemoryCeilingAtStart(t *testing.T) {
	store := mailstore.NewSampleStore(testutil.BaseTime)
	m := governor.NewMonitor(governor.Limits{MaxMemoryMB: 1},
		governor.WithMemoryReader(func() (float64, error) { return 50, nil }))
	e := NewEngine(store, WithMonitor(m))

	_, err := e.Search(context.Background(), &search.Criteria{})
	if !errors.Is(err, governor.ErrResourceExceeded) {
		t.Fatalf("Search = %v", err)
	}
	if store.ListFoldersCalls != 0 {
		t.Error("store should not be read once the ceiling is crossed")
	}
}

func TestEngine_ProcessingTimeCeiling(t *testing.T) {
	now := testutil.BaseTime
	clock := func() time.Time { return now }
	store := mailstore.NewSampleStore(testutil.BaseTime)
	m := governor.NewMonitor(governor.Limits{MaxProcessingTime: time.Second}, lowMemory(), governor.WithClock(clock))
	slow := &slowStore{Store: store, advance: func() { now = now.Add(2 * time.Second) }}
	e := NewEngine(slow, WithMonitor(m))

	_, err := e.Search(context.Background(), &search.Criteria{Folder: "Inbox"})
	var re *governor.ResourceExceededError
	if !errors.As(err, &re) || re.Resource != governor.ResourceProcessingTime {
		t.Fatalf("Search = %v, want processing_time error", err)
	}
}

// slowStore advances a fake clock on every ListEmails call.
type slowStore struct {
	mailstore.Store
	advance func()
}

func (s *slowStore) ListEmails(ctx context.Context, folder string) ([]mailstore.Email, error) {
	s.advance()
	return s.Store.ListEmails(ctx, folder)
}

func TestEngine_CancelledBeforeFolderRead(t *testing.T) {
	store := mailstore.NewSampleStore(testutil.BaseTime)
	e := newTestEngine(store, governor.Limits{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Search(ctx, &search.Criteria{})
	if !errors.Is(err, governor.ErrCancelled) {
		t.Fatalf("Search = %v, want ErrCancelled", err)
	}
	if len(store.ListEmailsCalls) != 0 {
		t.Errorf("ListEmails called %v after cancellation", store.ListEmailsCalls)
	}
}

func TestEngine_StoreErrorPropagates(t *testing.T) {
	store := mailstore.NewSampleStore(testutil.BaseTime)
	store.ListEmailsError["Drafts"] = governor.NewConnectionError("fetch", errors.New("reset by peer"))
	e := newTestEngine(store, governor.Limits{})

	_, err := e.Search(context.Background(), &search.Criteria{})
	if !governor.IsConnectionError(err) {
		t.Errorf("Search = %v, want connection error", err)
	}
}

func TestEngine_Run(t *testing.T) {
	store := testutil.StoreWith(testutil.NumberedEmails(25, "Inbox")...)
	e := newTestEngine(store, governor.Limits{})

	res, err := e.Run(context.Background(), Request{
		Criteria:  &search.Criteria{},
		SortField: SortByReceivedDate,
		SortOrder: SortDesc,
		Page:      3,
		PageSize:  10,
	})
	testutil.MustNoErr(t, err, "Run")
	if res.Page != (PageInfo{CurrentPage: 3, TotalPages: 3, TotalItems: 25, ItemsPerPage: 10}) {
		t.Errorf("Page = %+v", res.Page)
	}
	testutil.AssertIDs(t, res.Emails, "m0004", "m0003", "m0002", "m0001", "m0000")
	if len(res.All) != 25 {
		t.Errorf("All has %d items", len(res.All))
	}

	_, err = e.Run(context.Background(), Request{Criteria: &search.Criteria{}, Page: 4, PageSize: 10})
	var pe *PageError
	if !errors.As(err, &pe) || pe.TotalPages != 3 {
		t.Errorf("Run(page 4) = %v, want PageError", err)
	}
}

func TestEngine_EmailAndFolders(t *testing.T) {
	e := newTestEngine(mailstore.NewSampleStore(testutil.BaseTime), governor.Limits{})

	got, err := e.Email(context.Background(), "sent-002")
	testutil.MustNoErr(t, err, "Email")
	if got.Subject != "Meeting Notes" {
		t.Errorf("Subject = %q", got.Subject)
	}
	if _, err := e.Email(context.Background(), "missing"); !errors.Is(err, mailstore.ErrNotFound) {
		t.Errorf("Email(missing) = %v", err)
	}

	folders, err := e.Folders(context.Background())
	testutil.MustNoErr(t, err, "Folders")
	if len(folders) != 7 {
		t.Errorf("got %d folders", len(folders))
	}
}
