package governor

import (
	"fmt"
	"time"
)

// Progress tracks how much of a known amount of work has been processed.
type Progress struct {
	Total     int
	Processed int
	Started   time.Time
}

// NewProgress starts tracking total items.
func NewProgress(total int, now time.Time) *Progress {
	return &Progress{Total: total, Started: now}
}

// Add records n more processed items, clamped to Total.
func (p *Progress) Add(n int) {
	p.Processed += n
	if p.Total > 0 && p.Processed > p.Total {
		p.Processed = p.Total
	}
}

// Percent returns completion in [0, 100]. Empty work counts as complete.
func (p *Progress) Percent() float64 {
	if p.Total <= 0 {
		return 100
	}
	return float64(p.Processed) * 100 / float64(p.Total)
}

// Done reports whether every item has been processed.
func (p *Progress) Done() bool {
	return p.Processed >= p.Total
}

// ETA estimates the remaining time from the average rate so far.
func (p *Progress) ETA(now time.Time) time.Duration {
	if p.Processed == 0 || p.Done() {
		return 0
	}
	elapsed := now.Sub(p.Started)
	perItem := elapsed / time.Duration(p.Processed)
	return perItem * time.Duration(p.Total-p.Processed)
}

func (p *Progress) String() string {
	return fmt.Sprintf("%d/%d (%.1f%%)", p.Processed, p.Total, p.Percent())
}
