package dates

import (
	"errors"
	"fmt"
	"iter"
	"strings"
)

var (
	// ErrEmptyInterval is returned for intervals whose end is not after their start.
	ErrEmptyInterval = errors.New("end_date must be after start_date")
	// ErrMissingDates is returned when either bound is absent.
	ErrMissingDates = errors.New("start_date and end_date are required")
)

// Interval is a half-open range of days [Start, End). Start is the arrival
// day and is occupied; End is the checkout day and is not.
type Interval struct {
	Start Date `json:"start_date"`
	End   Date `json:"end_date"`
}

// NewInterval builds an Interval without validating it.
func NewInterval(start, end Date) Interval {
	return Interval{Start: start, End: end}
}

// ParseInterval parses both bounds and validates the result.
func ParseInterval(start, end string) (Interval, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" || end == "" {
		return Interval{}, ErrMissingDates
	}
	s, err := ParseDate(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return Interval{}, err
	}
	iv := Interval{Start: s, End: e}
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// Validate reports ErrEmptyInterval when End <= Start.
func (iv Interval) Validate() error {
	if !iv.End.After(iv.Start) {
		return ErrEmptyInterval
	}
	return nil
}

// Nights is the number of nights in the stay; it is negative or zero for
// invalid intervals.
func (iv Interval) Nights() int {
	return DaysBetween(iv.Start, iv.End)
}

// Contains reports whether d is an occupied day: Start <= d < End.
func (iv Interval) Contains(d Date) bool {
	return !d.Before(iv.Start) && d.Before(iv.End)
}

// Overlaps reports whether iv and o share at least one night.
func (iv Interval) Overlaps(o Interval) bool {
	return Overlaps(iv, o)
}

// Intersect returns the common part of iv and o and whether it is non-empty.
func (iv Interval) Intersect(o Interval) (Interval, bool) {
	out := iv
	if o.Start.After(out.Start) {
		out.Start = o.Start
	}
	if o.End.Before(out.End) {
		out.End = o.End
	}
	return out, out.End.After(out.Start)
}

func (iv Interval) String() string {
	return fmt.Sprintf("%s → %s", iv.Start, iv.End)
}

// Overlaps is the half-open intersection test. Intervals that only touch
// (one's End equals the other's Start) do not overlap. The predicate is
// symmetric and defined for any ordered pair.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// EachDay yields every occupied day of iv in ascending order. Invalid
// intervals yield nothing.
func EachDay(iv Interval) iter.Seq[Date] {
	return func(yield func(Date) bool) {
		for d := iv.Start; d.Before(iv.End); d = d.AddDays(1) {
			if !yield(d) {
				return
			}
		}
	}
}
