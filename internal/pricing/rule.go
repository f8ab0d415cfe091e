// Package pricing resolves the price of a stay from nightly and total rate
// rules.
package pricing

import (
	"strings"
	"time"

	"holidaylet/internal/apperr"
	"holidaylet/internal/dates"
)

// Kind says how a rule's price applies.
type Kind string

const (
	// KindNightly prices every night inside the rule's span.
	KindNightly Kind = "nightly"
	// KindTotal prices exactly the rule's span at a flat amount.
	KindTotal Kind = "total"
)

// ParseKind maps "nightly" to KindNightly and anything else to KindTotal.
func ParseKind(s string) Kind {
	if strings.EqualFold(strings.TrimSpace(s), string(KindNightly)) {
		return KindNightly
	}
	return KindTotal
}

// Rule is a priced date range.
type Rule struct {
	ID int64 `json:"id"`
	dates.Interval
	Price     float64   `json:"price"`
	Kind      Kind      `json:"rate_type"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// ValidateRule checks a rule submitted by the owner and normalises its kind.
func ValidateRule(r *Rule) error {
	if r.Start.IsZero() || r.End.IsZero() {
		return apperr.InvalidMsg("start_date", dates.ErrMissingDates.Error())
	}
	if err := r.Validate(); err != nil {
		return apperr.InvalidMsg("end_date", err.Error())
	}
	if !(r.Price > 0) {
		return apperr.Invalid("price", "price must be a positive number")
	}
	r.Kind = ParseKind(string(r.Kind))
	r.Note = strings.TrimSpace(r.Note)
	return nil
}
