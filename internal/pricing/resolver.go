package pricing

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"holidaylet/internal/apperr"
	"holidaylet/internal/dates"
	"holidaylet/internal/metrics"
)

// Method is the pricing path that produced a quote.
type Method string

const (
	MethodNone    Method = ""
	MethodTotal   Method = "total"
	MethodNightly Method = "nightly"
)

// NightPrice is one night of a nightly quote.
type NightPrice struct {
	Date   dates.Date `json:"date"`
	Price  float64    `json:"price"`
	RuleID int64      `json:"rule_id"`
}

// Quote is the result of pricing a stay. OK is false when the stay cannot be
// priced completely; Total is then zero and must not be shown as a price.
type Quote struct {
	OK        bool           `json:"ok"`
	Total     float64        `json:"total"`
	Method    Method         `json:"method,omitempty"`
	Nights    int            `json:"nights"`
	RuleID    int64          `json:"rule_id,omitempty"`
	Breakdown []NightPrice   `json:"breakdown,omitempty"`
	Stay      dates.Interval `json:"stay"`
}

// PriceStay prices iv against rules.
//
// A total rule whose span equals iv exactly wins outright; with several such
// rules the lowest ID wins. Otherwise every night needs a covering nightly
// rule and the quote is the sum. A night covered by several nightly rules
// takes the rule with the shortest span, then the lowest ID. If any night is
// uncovered the quote is not OK.
func PriceStay(iv dates.Interval, rules []Rule) Quote {
	q := Quote{Nights: iv.Nights(), Stay: iv}
	if iv.Validate() != nil {
		return q
	}

	var nightly []Rule
	var exact *Rule
	for i := range rules {
		r := &rules[i]
		switch r.Kind {
		case KindTotal:
			if r.Interval == iv && (exact == nil || r.ID < exact.ID) {
				exact = r
			}
		case KindNightly:
			if r.Overlaps(iv) {
				nightly = append(nightly, *r)
			}
		}
	}

	if exact != nil {
		q.OK = true
		q.Total = exact.Price
		q.Method = MethodTotal
		q.RuleID = exact.ID
		return q
	}

	slices.SortFunc(nightly, func(a, b Rule) int {
		if c := cmp.Compare(a.Nights(), b.Nights()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	breakdown := make([]NightPrice, 0, q.Nights)
	var total float64
	for d := range dates.EachDay(iv) {
		idx := slices.IndexFunc(nightly, func(r Rule) bool { return r.Contains(d) })
		if idx < 0 {
			return q
		}
		r := nightly[idx]
		total += r.Price
		breakdown = append(breakdown, NightPrice{Date: d, Price: r.Price, RuleID: r.ID})
	}

	q.OK = true
	q.Total = total
	q.Method = MethodNightly
	q.Breakdown = breakdown
	return q
}

// MaxQuoteNights bounds the stays Resolver.Quote will price.
const MaxQuoteNights = 732

// RuleSource supplies the current rate rules.
type RuleSource interface {
	ListRates(ctx context.Context) ([]Rule, error)
}

// Resolver prices stays against the rules held by a RuleSource.
type Resolver struct {
	rules  RuleSource
	logger zerolog.Logger
}

func NewResolver(rules RuleSource, logger *zerolog.Logger) *Resolver {
	return &Resolver{
		rules:  rules,
		logger: logger.With().Str("component", "pricing").Logger(),
	}
}

// Quote loads the current rules and prices iv. An unpriceable stay is not an
// error; it is reported through Quote.OK.
func (r *Resolver) Quote(ctx context.Context, iv dates.Interval) (Quote, error) {
	if err := iv.Validate(); err != nil {
		return Quote{}, apperr.InvalidMsg("end_date", err.Error())
	}
	if iv.Nights() > MaxQuoteNights {
		return Quote{}, apperr.Invalid("end_date", "stay must not exceed %d nights", MaxQuoteNights)
	}
	rules, err := r.rules.ListRates(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("load rates: %w", err)
	}

	q := PriceStay(iv, rules)
	metrics.IncQuote(string(q.Method), q.OK)
	r.logger.Debug().
		Str("stay", iv.String()).
		Bool("priced", q.OK).
		Str("method", string(q.Method)).
		Float64("total", q.Total).
		Msg("stay quoted")
	return q, nil
}
