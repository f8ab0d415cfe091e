// Package stay validates guest stay requests against the minimum-stay and
// arrival/checkout weekday rules.
package stay

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"holidaylet/internal/dates"
)

// DefaultMinNights is the shortest stay a guest may request.
const DefaultMinNights = 3

// Reason explains why a stay was rejected.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonInvalidInterval   Reason = "invalid interval"
	ReasonMinimumStay       Reason = "minimum stay"
	ReasonDisallowedPattern Reason = "disallowed pattern"
)

// ErrStayNotAllowed matches every RejectedError.
var ErrStayNotAllowed = errors.New("stay not allowed")

// Pattern is an allowed (arrival weekday, checkout weekday) pair.
type Pattern struct {
	CheckIn  time.Weekday
	CheckOut time.Weekday
}

func (p Pattern) String() string {
	return fmt.Sprintf("%s→%s", p.CheckIn, p.CheckOut)
}

// DefaultPatterns are long weekend, midweek and full week stays.
var DefaultPatterns = []Pattern{
	{CheckIn: time.Friday, CheckOut: time.Monday},
	{CheckIn: time.Monday, CheckOut: time.Friday},
	{CheckIn: time.Saturday, CheckOut: time.Saturday},
}

// Policy holds the stay rules.
type Policy struct {
	MinNights int
	Patterns  []Pattern
}

func DefaultPolicy() Policy {
	return Policy{MinNights: DefaultMinNights, Patterns: slices.Clone(DefaultPatterns)}
}

// Decision is the outcome of Check.
type Decision struct {
	OK        bool
	Reason    Reason
	Nights    int
	MinNights int
	Stay      dates.Interval
}

// Check validates iv. With enforcePattern false (owner bookings) only the
// interval itself is checked; minimum stay and weekday patterns are skipped.
func (p Policy) Check(iv dates.Interval, enforcePattern bool) Decision {
	d := Decision{Nights: iv.Nights(), MinNights: p.minNights(), Stay: iv}
	if iv.Validate() != nil {
		d.Reason = ReasonInvalidInterval
		return d
	}
	if !enforcePattern {
		d.OK = true
		return d
	}
	if d.Nights < d.MinNights {
		d.Reason = ReasonMinimumStay
		return d
	}
	if !p.allows(iv.Start.Weekday(), iv.End.Weekday()) {
		d.Reason = ReasonDisallowedPattern
		return d
	}
	d.OK = true
	return d
}

func (p Policy) minNights() int {
	if p.MinNights <= 0 {
		return DefaultMinNights
	}
	return p.MinNights
}

func (p Policy) allows(in, out time.Weekday) bool {
	return slices.Contains(p.Patterns, Pattern{CheckIn: in, CheckOut: out})
}

// AllowedCheckouts lists, in ascending order, the earliest checkout date for
// each pattern starting on arrival's weekday that satisfies the minimum stay.
// Longer stays on the same checkout weekday are also allowed.
func (p Policy) AllowedCheckouts(arrival dates.Date) []dates.Date {
	var out []dates.Date
	for _, pat := range p.Patterns {
		if pat.CheckIn != arrival.Weekday() {
			continue
		}
		gap := (int(pat.CheckOut) - int(pat.CheckIn) + 7) % 7
		if gap == 0 {
			gap = 7
		}
		for gap < p.minNights() {
			gap += 7
		}
		out = append(out, arrival.AddDays(gap))
	}
	slices.SortFunc(out, dates.Date.Compare)
	return slices.Compact(out)
}

// Err returns nil for an accepted stay and a *RejectedError otherwise.
func (d Decision) Err() error {
	if d.OK {
		return nil
	}
	return &RejectedError{Reason: d.Reason, Nights: d.Nights, MinNights: d.MinNights, Stay: d.Stay}
}

// RejectedError describes a stay the policy refused.
type RejectedError struct {
	Reason    Reason
	Nights    int
	MinNights int
	Stay      dates.Interval
}

func (e *RejectedError) Error() string {
	switch e.Reason {
	case ReasonMinimumStay:
		return fmt.Sprintf("minimum stay is %d nights (requested %d)", e.MinNights, e.Nights)
	case ReasonDisallowedPattern:
		return fmt.Sprintf("stays arriving on %s and leaving on %s are not offered",
			e.Stay.Start.Weekday(), e.Stay.End.Weekday())
	default:
		return dates.ErrEmptyInterval.Error()
	}
}

func (e *RejectedError) Unwrap() error {
	return ErrStayNotAllowed
}

// ParsePattern reads "friday-monday" or "fri-mon" style pairs.
func ParsePattern(s string) (Pattern, error) {
	in, out, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Pattern{}, fmt.Errorf("pattern %q: expected <arrival>-<checkout>", s)
	}
	ci, err := ParseWeekday(in)
	if err != nil {
		return Pattern{}, fmt.Errorf("pattern %q: %w", s, err)
	}
	co, err := ParseWeekday(out)
	if err != nil {
		return Pattern{}, fmt.Errorf("pattern %q: %w", s, err)
	}
	return Pattern{CheckIn: ci, CheckOut: co}, nil
}

// ParseWeekday accepts full English weekday names or their three-letter
// prefixes, case-insensitively.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= 3 {
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			name := strings.ToLower(wd.String())
			if s == name || s == name[:3] {
				return wd, nil
			}
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}
