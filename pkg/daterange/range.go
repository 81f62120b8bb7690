// Package daterange provides the closed creation-date intervals used to
// shape search queries, and their bisection.
package daterange

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the day-granularity format used in queries and configuration.
const Layout = "2006-01-02"

// DefaultQualifier restricts searches to public repositories.
const DefaultQualifier = "is:public"

// Earliest is the earliest plausible repository creation date.
var Earliest = time.Date(2008, time.January, 1, 0, 0, 0, 0, time.UTC)

// Range is a closed interval [Start, End] of UTC days.
type Range struct {
	Start time.Time
	End   time.Time
}

// New returns the range between two instants truncated to their UTC day.
func New(start, end time.Time) (Range, error) {
	r := Range{Start: day(start), End: day(end)}
	if r.End.Before(r.Start) {
		return Range{}, fmt.Errorf("range end %s before start %s",
			r.End.Format(Layout), r.Start.Format(Layout))
	}
	return r, nil
}

// Parse parses "YYYY-MM-DD..YYYY-MM-DD".
func Parse(s string) (Range, error) {
	from, to, ok := strings.Cut(s, "..")
	if !ok {
		return Range{}, fmt.Errorf("parse range %q: missing \"..\"", s)
	}

	start, err := time.Parse(Layout, strings.TrimSpace(from))
	if err != nil {
		return Range{}, fmt.Errorf("parse range start: %w", err)
	}
	end, err := time.Parse(Layout, strings.TrimSpace(to))
	if err != nil {
		return Range{}, fmt.Errorf("parse range end: %w", err)
	}

	return New(start, end)
}

// Seed returns the initial range from start (Earliest when zero) to the day
// of now.
func Seed(start, now time.Time) (Range, error) {
	if start.IsZero() {
		start = Earliest
	}
	return New(start, now)
}

// Split bisects the range at its midpoint day. Both halves include the
// midpoint. ok is false when the midpoint equals an endpoint and the range
// cannot be subdivided further.
func (r Range) Split() (left, right Range, ok bool) {
	mid := day(r.Start.Add(r.End.Sub(r.Start) / 2))
	if mid.Equal(r.Start) || mid.Equal(r.End) {
		return Range{}, Range{}, false
	}
	return Range{Start: r.Start, End: mid}, Range{Start: mid, End: r.End}, true
}

// Days returns the number of days the range spans, counting both ends.
func (r Range) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Query returns the search filter for the range, prefixed by qualifier.
func (r Range) Query(qualifier string) string {
	created := "created:" + r.String()
	if qualifier == "" {
		return created
	}
	return qualifier + " " + created
}

// String returns "YYYY-MM-DD..YYYY-MM-DD".
func (r Range) String() string {
	return r.Start.Format(Layout) + ".." + r.End.Format(Layout)
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
