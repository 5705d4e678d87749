package query

// DefaultPageSize is used when a Paginator is created with a non-positive
// page size.
const DefaultPageSize = 10

// PageInfo describes the cursor position of a Paginator. CurrentPage is
// 1-based; 0 means there are no pages.
type PageInfo struct {
	CurrentPage  int `json:"current_page"`
	TotalPages   int `json:"total_pages"`
	TotalItems   int `json:"total_items"`
	ItemsPerPage int `json:"items_per_page"`
}

// HasNext reports whether a later page exists.
func (p PageInfo) HasNext() bool { return p.CurrentPage < p.TotalPages }

// HasPrev reports whether an earlier page exists.
func (p PageInfo) HasPrev() bool { return p.CurrentPage > 1 }

// Paginator exposes fixed-size pages over an already sorted slice. It holds
// a reference to items, not a copy, and is not safe for concurrent use.
type Paginator[T any] struct {
	items    []T
	pageSize int
	current  int
}

// NewPaginator creates a Paginator positioned on the first page.
func NewPaginator[T any](items []T, pageSize int) *Paginator[T] {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	p := &Paginator[T]{items: items, pageSize: pageSize}
	if len(items) > 0 {
		p.current = 1
	}
	return p
}

// TotalPages returns ceil(len(items) / pageSize).
func (p *Paginator[T]) TotalPages() int {
	return (len(p.items) + p.pageSize - 1) / p.pageSize
}

// CurrentPage returns the items on the current page; empty when there are
// no items.
func (p *Paginator[T]) CurrentPage() []T {
	if p.current == 0 {
		return []T{}
	}
	start := (p.current - 1) * p.pageSize
	end := min(start+p.pageSize, len(p.items))
	return p.items[start:end:end]
}

// NextPage advances one page and reports whether the cursor moved.
func (p *Paginator[T]) NextPage() bool {
	if p.current == 0 || p.current >= p.TotalPages() {
		return false
	}
	p.current++
	return true
}

// PrevPage goes back one page and reports whether the cursor moved.
func (p *Paginator[T]) PrevPage() bool {
	if p.current <= 1 {
		return false
	}
	p.current--
	return true
}

// GoToPage jumps to page n and reports whether n was in range. An out of
// range n leaves the cursor where it was.
func (p *Paginator[T]) GoToPage(n int) bool {
	if n < 1 || n > p.TotalPages() {
		return false
	}
	p.current = n
	return true
}

// Info returns the cursor position.
func (p *Paginator[T]) Info() PageInfo {
	return PageInfo{
		CurrentPage:  p.current,
		TotalPages:   p.TotalPages(),
		TotalItems:   len(p.items),
		ItemsPerPage: p.pageSize,
	}
}
