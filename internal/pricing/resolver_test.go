package pricing

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"holidaylet/internal/apperr"
	"holidaylet/internal/dates"
)

func span(start, end string) dates.Interval {
	return dates.NewInterval(dates.MustParse(start), dates.MustParse(end))
}

func nightly(id int64, start, end string, price float64) Rule {
	return Rule{ID: id, Interval: span(start, end), Price: price, Kind: KindNightly}
}

func total(id int64, start, end string, price float64) Rule {
	return Rule{ID: id, Interval: span(start, end), Price: price, Kind: KindTotal}
}

func TestPriceStay_ExactTotalBeatsNightly(t *testing.T) {
	rules := []Rule{
		nightly(1, "2024-07-01", "2024-07-31", 90),
		total(2, "2024-07-05", "2024-07-12", 700),
	}

	q := PriceStay(span("2024-07-05", "2024-07-12"), rules)
	assert.True(t, q.OK)
	assert.Equal(t, 700.0, q.Total)
	assert.Equal(t, MethodTotal, q.Method)
	assert.Equal(t, int64(2), q.RuleID)
	assert.Empty(t, q.Breakdown)

	// any other span falls back to the nightly rate
	q = PriceStay(span("2024-07-05", "2024-07-11"), rules)
	assert.True(t, q.OK)
	assert.Equal(t, MethodNightly, q.Method)
	assert.Equal(t, 540.0, q.Total)
}

func TestPriceStay_NightlySum(t *testing.T) {
	rules := []Rule{
		nightly(1, "2024-07-01", "2024-07-08", 90),
		nightly(2, "2024-07-08", "2024-07-15", 120),
	}

	q := PriceStay(span("2024-07-05", "2024-07-12"), rules)
	require.True(t, q.OK)
	assert.Equal(t, 3*90.0+4*120.0, q.Total)
	assert.Equal(t, 7, q.Nights)
	require.Len(t, q.Breakdown, 7)
	assert.Equal(t, int64(1), q.Breakdown[2].RuleID)
	assert.Equal(t, int64(2), q.Breakdown[3].RuleID)
	assert.Equal(t, dates.MustParse("2024-07-08"), q.Breakdown[3].Date)
}

func TestPriceStay_MissingNightFails(t *testing.T) {
	rules := []Rule{
		nightly(1, "2024-07-01", "2024-07-08", 90),
		nightly(2, "2024-07-09", "2024-07-15", 90),
	}

	q := PriceStay(span("2024-07-05", "2024-07-12"), rules)
	assert.False(t, q.OK)
	assert.Zero(t, q.Total)
	assert.Equal(t, MethodNone, q.Method)
	assert.Nil(t, q.Breakdown)
}

func TestPriceStay_TotalOnlyCoversItsExactSpan(t *testing.T) {
	rules := []Rule{total(1, "2024-07-05", "2024-07-12", 700)}

	assert.False(t, PriceStay(span("2024-07-05", "2024-07-10"), rules).OK)
	assert.False(t, PriceStay(span("2024-07-01", "2024-07-20"), rules).OK)
}

func TestPriceStay_TieBreaks(t *testing.T) {
	t.Run("lowest id among exact totals", func(t *testing.T) {
		rules := []Rule{
			total(9, "2024-07-05", "2024-07-12", 800),
			total(4, "2024-07-05", "2024-07-12", 650),
		}
		q := PriceStay(span("2024-07-05", "2024-07-12"), rules)
		assert.Equal(t, 650.0, q.Total)
		assert.Equal(t, int64(4), q.RuleID)
	})

	t.Run("shortest nightly span wins", func(t *testing.T) {
		rules := []Rule{
			nightly(1, "2024-01-01", "2024-12-31", 80),
			nightly(2, "2024-07-06", "2024-07-08", 150),
		}
		q := PriceStay(span("2024-07-05", "2024-07-09"), rules)
		require.True(t, q.OK)
		assert.Equal(t, 80.0+150+150+80, q.Total)
	})

	t.Run("equal spans fall back to lowest id", func(t *testing.T) {
		rules := []Rule{
			nightly(7, "2024-07-01", "2024-07-31", 100),
			nightly(3, "2024-07-01", "2024-07-31", 95),
		}
		q := PriceStay(span("2024-07-05", "2024-07-07"), rules)
		assert.Equal(t, 190.0, q.Total)
	})

	t.Run("order of input does not matter", func(t *testing.T) {
		a := []Rule{nightly(1, "2024-07-01", "2024-07-31", 100), nightly(2, "2024-07-05", "2024-07-06", 10)}
		b := []Rule{a[1], a[0]}
		iv := span("2024-07-04", "2024-07-07")
		assert.Equal(t, PriceStay(iv, a), PriceStay(iv, b))
	})
}

func TestPriceStay_InvalidInterval(t *testing.T) {
	rules := []Rule{nightly(1, "2024-07-01", "2024-07-31", 100)}
	assert.False(t, PriceStay(span("2024-07-05", "2024-07-05"), rules).OK)
	assert.False(t, PriceStay(span("2024-07-06", "2024-07-05"), rules).OK)
}

func TestValidateRule(t *testing.T) {
	tests := []struct {
		name  string
		rule  Rule
		field string
	}{
		{"missing dates", Rule{Price: 10}, "start_date"},
		{"reversed", Rule{Interval: span("2024-07-05", "2024-07-01"), Price: 10}, "end_date"},
		{"zero price", Rule{Interval: span("2024-07-01", "2024-07-05")}, "price"},
		{"negative price", Rule{Interval: span("2024-07-01", "2024-07-05"), Price: -5}, "price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRule(&tt.rule)
			var verr *apperr.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	r := Rule{Interval: span("2024-07-01", "2024-07-05"), Price: 10, Kind: "weekly", Note: "  summer "}
	require.NoError(t, ValidateRule(&r))
	assert.Equal(t, KindTotal, r.Kind)
	assert.Equal(t, "summer", r.Note)
	assert.Equal(t, KindNightly, ParseKind("Nightly"))
}

type mockRuleSource struct {
	mock.Mock
}

func (m *mockRuleSource) ListRates(ctx context.Context) ([]Rule, error) {
	args := m.Called(ctx)
	rules, _ := args.Get(0).([]Rule)
	return rules, args.Error(1)
}

func TestResolver_Quote(t *testing.T) {
	logger := zerolog.New(io.Discard)
	src := new(mockRuleSource)
	src.On("ListRates", mock.Anything).Return([]Rule{nightly(1, "2024-07-01", "2024-07-31", 90)}, nil).Once()

	r := NewResolver(src, &logger)
	q, err := r.Quote(context.Background(), span("2024-07-05", "2024-07-12"))
	require.NoError(t, err)
	assert.True(t, q.OK)
	assert.Equal(t, 630.0, q.Total)
	src.AssertExpectations(t)
}

func TestResolver_QuoteAtMaxNights(t *testing.T) {
	logger := zerolog.New(io.Discard)
	src := new(mockRuleSource)
	src.On("ListRates", mock.Anything).Return([]Rule{nightly(1, "2026-01-01", "2030-01-01", 100)}, nil).Once()

	start := dates.MustParse("2026-01-01")
	q, err := NewResolver(src, &logger).Quote(context.Background(), dates.NewInterval(start, start.AddDays(MaxQuoteNights)))
	require.NoError(t, err)
	assert.True(t, q.OK)
	assert.Equal(t, MaxQuoteNights, q.Nights)
	assert.Len(t, q.Breakdown, MaxQuoteNights)
}

func TestResolver_QuoteErrors(t *testing.T) {
	logger := zerolog.New(io.Discard)
	src := new(mockRuleSource)
	r := NewResolver(src, &logger)

	_, err := r.Quote(context.Background(), span("2024-07-05", "2024-07-05"))
	assert.True(t, apperr.IsValidation(err))
	src.AssertNotCalled(t, "ListRates", mock.Anything)

	_, err = r.Quote(context.Background(), span("0001-01-02", "9999-12-30"))
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "end_date", ve.Field)
	assert.Equal(t, "stay must not exceed 732 nights", ve.Message)
	src.AssertNotCalled(t, "ListRates", mock.Anything)

	storeErr := errors.New("database is locked")
	src.On("ListRates", mock.Anything).Return(nil, storeErr)
	_, err = r.Quote(context.Background(), span("2024-07-05", "2024-07-08"))
	assert.ErrorIs(t, err, storeErr)
}
