package analytics

import (
	"errors"
	"fmt"
	"time"
)

// DefaultDays is the look-back window when a query names no explicit dates.
const DefaultDays = 30

// MaxDays bounds the window of any query, relative or explicit.
const MaxDays = 3650

// DateLayout is the calendar-day format of query dates and series buckets.
const DateLayout = "2006-01-02"

// ErrInvalidRange is returned for unparsable, inverted or overlong explicit date ranges.
var ErrInvalidRange = errors.New("invalid date range")

// Query selects the click window of a report. When both From and To are set the window is
// the inclusive span of those calendar days; otherwise it is the last Days days up to now.
type Query struct {
	Days int    `json:"days"`
	From string `json:"date_from"`
	To   string `json:"date_to"`
}

// Explicit reports whether the query names a calendar range.
func (q Query) Explicit() bool {
	return q.From != "" && q.To != ""
}

// Range is a half-open UTC interval [Since, Until). A zero Until leaves it open-ended.
type Range struct {
	Since time.Time
	Until time.Time
}

// Contains reports whether t falls in the range.
func (r Range) Contains(t time.Time) bool {
	if t.Before(r.Since) {
		return false
	}

	return r.Until.IsZero() || t.Before(r.Until)
}

// Normalize fills in the default window and caps it at MaxDays.
func (q Query) Normalize() Query {
	if q.Days <= 0 {
		q.Days = DefaultDays
	}

	q.Days = min(q.Days, MaxDays)

	return q
}

// Range resolves the query against now.
func (q Query) Range(now time.Time) (Range, error) {
	q = q.Normalize()

	if !q.Explicit() {
		return Range{Since: now.UTC().AddDate(0, 0, -q.Days)}, nil
	}

	from, to, err := q.bounds()
	if err != nil {
		return Range{}, err
	}

	return Range{Since: from, Until: to.AddDate(0, 0, 1)}, nil
}

// CalendarDays returns the days a time series over the query covers, oldest first.
func (q Query) CalendarDays(now time.Time) ([]time.Time, error) {
	q = q.Normalize()

	var start, end time.Time

	if q.Explicit() {
		from, to, err := q.bounds()
		if err != nil {
			return nil, err
		}

		start, end = from, to
	} else {
		end = truncateDay(now)
		start = end.AddDate(0, 0, -(q.Days - 1))
	}

	days := make([]time.Time, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}

	return days, nil
}

func (q Query) bounds() (time.Time, time.Time, error) {
	from, err := time.Parse(DateLayout, q.From)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date_from %q", ErrInvalidRange, q.From)
	}

	to, err := time.Parse(DateLayout, q.To)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date_to %q", ErrInvalidRange, q.To)
	}

	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date_from is after date_to", ErrInvalidRange)
	}

	if from.AddDate(0, 0, MaxDays-1).Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: spans more than %d days", ErrInvalidRange, MaxDays)
	}

	return from, to, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()

	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
