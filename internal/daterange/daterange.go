package daterange

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the only calendar date format accepted at the boundary.
const DateLayout = "2006-01-02"

// ErrNoNights is returned when a range does not cover at least one night.
var ErrNoNights = errors.New("range must cover at least one night")

// ParseError describes a date string that could not be parsed.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Input == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid date %q: %s", e.Input, e.Reason)
}

// ParseDate parses a calendar date. Legacy timestamp strings such as
// "2023-07-01T00:00:00" or "2023-07-01 00:00:00+00" are truncated to the date part.
// The result is midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, &ParseError{Reason: "date is required"}
	}
	if len(s) > len(DateLayout) {
		sep := s[len(DateLayout)]
		if sep != 'T' && sep != ' ' {
			return time.Time{}, &ParseError{Input: s, Reason: "expected YYYY-MM-DD"}
		}
		s = s[:len(DateLayout)]
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &ParseError{Input: s, Reason: "expected YYYY-MM-DD"}
	}
	return d, nil
}

// Day normalizes t to midnight UTC of the same calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Format renders a date in DateLayout.
func Format(t time.Time) string {
	return t.Format(DateLayout)
}

// Range is a booking period from check-in (Start) to check-out (End).
type Range struct {
	Start time.Time
	End   time.Time
}

// New builds a range from two dates, normalized to calendar days.
func New(start, end time.Time) Range {
	return Range{Start: Day(start), End: Day(end)}
}

// Nights returns the number of nights in the range.
func (r Range) Nights() int {
	return Nights(r.Start, r.End)
}

// Valid reports whether the range covers at least one night.
func (r Range) Valid() error {
	if r.Nights() <= 0 {
		return ErrNoNights
	}
	return nil
}

func (r Range) String() string {
	return Format(r.Start) + ".." + Format(r.End)
}

// Nights counts whole nights between start and end, rounding to absorb DST shifts.
// A result <= 0 means the range is not billable.
func Nights(start, end time.Time) int {
	return int(math.Round(end.Sub(start).Hours() / 24))
}

// Month returns the half-open period [first day of month, first day of next month).
func Month(year int, month time.Month) Range {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Range{Start: first, End: first.AddDate(0, 1, 0)}
}

// ContainsStart reports whether t falls within the half-open period r.
func (r Range) ContainsStart(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}
