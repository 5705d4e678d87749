package query

import (
	"fmt"

	"github.com/wesm/mailquery/internal/mailstore"
	"github.com/wesm/mailquery/internal/search"
)

// Request is one search with its presentation options.
type Request struct {
	Criteria  *search.Criteria
	SortField SortField
	SortOrder SortOrder
	Page      int // 1-based; 0 or 1 is the first page
	PageSize  int
}

// Result is the requested page of a sorted search result.
type Result struct {
	Emails []mailstore.Email `json:"messages"`
	Page   PageInfo          `json:"page"`
	// All is the full sorted result, for callers that stream it.
	All []mailstore.Email `json:"-"`
}

// PageError reports a page number outside the result.
type PageError struct {
	Page       int
	TotalPages int
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d out of range (1-%d)", e.Page, e.TotalPages)
}

func (e *PageError) UserError() bool { return true }
