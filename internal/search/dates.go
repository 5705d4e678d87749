package search

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Date errors. Both are caller mistakes and are never retried.
var (
	ErrInvalidDateFormat = errors.New("invalid date format")
	ErrInvalidDateRange  = errors.New("invalid date range")

	errAmountOutOfRange = errors.New("amount out of range")
)

// DateFormatError reports a date expression that matched no rule.
type DateFormatError struct {
	Input  string
	Reason string
}

func (e *DateFormatError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid date format: %q %s", e.Input, e.Reason)
	}
	return fmt.Sprintf("invalid date format: %q", e.Input)
}

func (e *DateFormatError) Is(target error) bool { return target == ErrInvalidDateFormat }
func (e *DateFormatError) UserError() bool      { return true }

// DateRangeError reports since later than until.
type DateRangeError struct {
	Since, Until time.Time
}

func (e *DateRangeError) Error() string {
	return fmt.Sprintf("invalid date range: since %s is after until %s",
		e.Since.Format(time.RFC3339), e.Until.Format(time.RFC3339))
}

func (e *DateRangeError) Is(target error) bool { return target == ErrInvalidDateRange }
func (e *DateRangeError) UserError() bool      { return true }

// Substrings that never appear in a date and usually mean a path was
// passed where a date was expected.
var suspiciousDateParts = []string{"..", "/", `\`, "etc", "passwd", "shadow"}

var (
	relativeRe = regexp.MustCompile(`^(\d+)([dwhMmy])$`)
	absoluteRe = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
)

var weekdays = map[string]time.Weekday{
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
	"sunday": time.Sunday, "sun": time.Sunday,
}

// DateParser turns relative and absolute date expressions into instants.
// All arithmetic is done in UTC relative to Now.
type DateParser struct {
	Now func() time.Time // Time source (mockable for testing)
}

// NewDateParser creates a DateParser anchored to the wall clock.
func NewDateParser() *DateParser {
	return &DateParser{Now: time.Now}
}

func (p *DateParser) now() time.Time {
	if p.Now == nil {
		return time.Now().UTC()
	}
	return p.Now().UTC()
}

// Parse resolves a date expression. Rules are tried in order:
//
//   - N followed by d, w, h, M (months), m (minutes) or y (365 days)
//   - today, yesterday, tomorrow
//   - this-week, last-week, this-month, last-month, this-year, last-year
//   - weekday names and three-letter abbreviations
//   - last-<weekday>
//   - YYYY-MM-DD
//
// Matching is case-insensitive except that uppercase M means months and
// lowercase m means minutes.
func (p *DateParser) Parse(expr string) (time.Time, error) {
	orig := strings.TrimSpace(expr)
	s := strings.ToLower(orig)

	for _, bad := range suspiciousDateParts {
		if strings.Contains(s, bad) {
			return time.Time{}, &DateFormatError{Input: orig, Reason: "contains suspicious characters"}
		}
	}

	now := p.now()

	if m := relativeRe.FindStringSubmatch(orig); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, &DateFormatError{Input: orig, Reason: "amount out of range"}
		}
		t, err := relative(now, n, m[2])
		if err != nil {
			return time.Time{}, &DateFormatError{Input: orig, Reason: "amount out of range"}
		}
		return t, nil
	}
	// Uppercase units other than M are accepted as their lowercase form.
	if m := relativeRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, &DateFormatError{Input: orig, Reason: "amount out of range"}
		}
		t, err := relative(now, n, m[2])
		if err != nil {
			return time.Time{}, &DateFormatError{Input: orig, Reason: "amount out of range"}
		}
		return t, nil
	}

	switch s {
	case "today":
		return startOfDay(now), nil
	case "yesterday":
		return now.AddDate(0, 0, -1), nil
	case "tomorrow":
		return startOfDay(now.AddDate(0, 0, 1)), nil
	case "last-week":
		return now.AddDate(0, 0, -7), nil
	case "this-week":
		return startOfDay(now.AddDate(0, 0, -daysSinceMonday(now))), nil
	case "last-month":
		return subtractMonths(now, 1), nil
	case "this-month":
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	case "last-year":
		return subtractMonths(now, 12), nil
	case "this-year":
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), nil
	}

	if wd, ok := weekdays[s]; ok {
		back := daysBack(now.Weekday(), wd)
		if back == 0 && now.Hour() > 0 {
			back = 7
		}
		return startOfDay(now.AddDate(0, 0, -back)), nil
	}

	if name, ok := strings.CutPrefix(s, "last-"); ok {
		if wd, ok := weekdays[name]; ok {
			back := daysBack(now.Weekday(), wd)
			if back == 0 {
				back = 7
			}
			return startOfDay(now.AddDate(0, 0, -back)), nil
		}
	}

	if m := absoluteRe.FindStringSubmatch(s); m != nil {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, &DateFormatError{Input: orig, Reason: "is not a calendar date"}
		}
		return t.UTC(), nil
	}

	return time.Time{}, &DateFormatError{Input: orig}
}

// ParseDate resolves expr with a wall-clock DateParser.
func ParseDate(expr string) (time.Time, error) {
	return NewDateParser().Parse(expr)
}

// ValidateDateRange fails when both bounds are set and since is after until.
func ValidateDateRange(since, until *time.Time) error {
	if since != nil && until != nil && since.After(*until) {
		return &DateRangeError{Since: *since, Until: *until}
	}
	return nil
}

// maxRelativeDays bounds day, week, month and year offsets. Every offset
// past it lands before year 1 for any plausible now.
const maxRelativeDays = 1_000_000

func relative(now time.Time, n int, unit string) (time.Time, error) {
	var t time.Time
	switch unit {
	case "d", "w", "y":
		days := 1
		switch unit {
		case "w":
			days = 7
		case "y":
			days = 365
		}
		if n > maxRelativeDays/days {
			return time.Time{}, errAmountOutOfRange
		}
		t = now.AddDate(0, 0, -n*days)
	case "M":
		if n > maxRelativeDays/28 {
			return time.Time{}, errAmountOutOfRange
		}
		t = subtractMonths(now, n)
	default: // "h", "m"
		step := time.Hour
		if unit == "m" {
			step = time.Minute
		}
		if int64(n) > math.MaxInt64/int64(step) {
			return time.Time{}, errAmountOutOfRange
		}
		t = now.Add(-time.Duration(n) * step)
	}
	if t.Year() < 1 {
		return time.Time{}, errAmountOutOfRange
	}
	return t, nil
}

// subtractMonths moves t back n calendar months, clamping the day to the
// last day of the target month.
func subtractMonths(t time.Time, n int) time.Time {
	total := t.Year()*12 + int(t.Month()) - 1 - n
	year, month := total/12, total%12
	if month < 0 {
		month += 12
		year--
	}
	day := t.Day()
	if last := daysIn(year, time.Month(month+1)); day > last {
		day = last
	}
	return time.Date(year, time.Month(month+1), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysSinceMonday counts Monday as day 0 of the week.
func daysSinceMonday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func daysBack(current, target time.Weekday) int {
	return ((int(current)-int(target))%7 + 7) % 7
}
