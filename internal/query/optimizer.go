package query

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/wesm/mailquery/internal/mailstore"
	"github.com/wesm/mailquery/internal/search"
)

// Selectivity estimates: the expected fraction of messages a filter keeps.
// Lower values are applied first.
var baseSelectivity = map[string]float64{
	FilterSender:        0.05,
	FilterImportance:    0.1,
	FilterSubject:       0.15,
	FilterHasAttachment: 0.3,
	FilterSince:         0.3,
	FilterUntil:         0.3,
	FilterIsUnread:      0.4,
	FilterIsRead:        0.6,
	FilterNoAttachment:  0.7,
	FilterFolder:        0.8,
	FilterNotSender:     0.95,
	FilterNotSubject:    0.95,
}

const (
	defaultSelectivity = 0.5
	// Text filters longer than this are assumed to match fewer messages.
	longTextThreshold = 10
)

// FilterSelectivity is the estimated selectivity of one active filter.
// Priority is the filter's position in Predicates order, starting at 1.
type FilterSelectivity struct {
	Name        string  `json:"name"`
	Selectivity float64 `json:"selectivity"`
	Priority    int     `json:"priority"`
}

// Compare orders by selectivity, then priority.
func (a FilterSelectivity) Compare(b FilterSelectivity) int {
	if c := cmp.Compare(a.Selectivity, b.Selectivity); c != 0 {
		return c
	}
	return cmp.Compare(a.Priority, b.Priority)
}

// EstimateSelectivity returns the heuristic selectivity of p.
func EstimateSelectivity(p Predicate) float64 {
	s, ok := baseSelectivity[p.Name]
	if !ok {
		s = defaultSelectivity
	}
	switch p.Name {
	case FilterSender:
		// A full address narrows more than a name fragment.
		if strings.Contains(p.Value, "@") {
			s *= 0.5
		}
	case FilterSubject, FilterNotSubject:
		if utf8.RuneCountInString(p.Value) > longTextThreshold {
			s *= 0.7
		}
	}
	return s
}

// Optimizer applies predicates most-selective first and stops as soon as
// nothing is left. Ordering only affects cost; the result always equals
// applying every predicate with AND semantics.
type Optimizer struct {
	logger *slog.Logger

	// OnApply, when set, is called after each predicate with the number of
	// messages remaining.
	OnApply func(name string, remaining int)
}

// NewOptimizer creates an Optimizer. A nil logger uses slog.Default().
func NewOptimizer(logger *slog.Logger) *Optimizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer{logger: logger}
}

// Estimate returns one FilterSelectivity per predicate, in input order.
func (o *Optimizer) Estimate(preds []Predicate) []FilterSelectivity {
	out := make([]FilterSelectivity, len(preds))
	for i, p := range preds {
		out[i] = FilterSelectivity{Name: p.Name, Selectivity: EstimateSelectivity(p), Priority: i + 1}
	}
	return out
}

// Order returns sel sorted most-selective first.
func Order(sel []FilterSelectivity) []FilterSelectivity {
	out := slices.Clone(sel)
	slices.SortStableFunc(out, FilterSelectivity.Compare)
	return out
}

// Plan returns the predicates of c in the order Apply will use them.
func (o *Optimizer) Plan(c *search.Criteria) []Predicate {
	preds := Predicates(c)
	ordered := Order(o.Estimate(preds))
	plan := make([]Predicate, len(ordered))
	for i, s := range ordered {
		plan[i] = preds[s.Priority-1]
	}
	return plan
}

// Apply filters emails by c. The input slice is not modified.
func (o *Optimizer) Apply(emails []mailstore.Email, c *search.Criteria) []mailstore.Email {
	plan := o.Plan(c)
	if len(plan) == 0 || len(emails) == 0 {
		return emails
	}

	if o.logger.Enabled(context.Background(), slog.LevelDebug) {
		names := make([]string, len(plan))
		for i, p := range plan {
			names[i] = p.Name
		}
		o.logger.Debug("filter order", "filters", names, "candidates", len(emails))
	}

	out := slices.Clone(emails)
	for _, p := range plan {
		out = slices.DeleteFunc(out, func(e mailstore.Email) bool { return !p.Match(&e) })
		o.logger.Debug("filter applied", "filter", p.Name, "remaining", len(out))
		if o.OnApply != nil {
			o.OnApply(p.Name, len(out))
		}
		if len(out) == 0 {
			break
		}
	}
	return out
}
