package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "holidaylet"

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_created_total",
			Help:      "Count of bookings created by status.",
		},
		[]string{"status"},
	)

	ownerDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "owner_decision_total",
			Help:      "Count of owner decisions over bookings.",
		},
		[]string{"decision"},
	)

	overlapConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlap_conflicts_total",
			Help:      "Writes rejected because a confirmed booking already holds the nights.",
		},
		[]string{"operation"},
	)

	importRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_total",
			Help:      "Rows processed by bulk import, by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	priceQuotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_quotes_total",
			Help:      "Price quotes by method; method is empty when the stay is unpriced.",
		},
		[]string{"method", "priced"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	lockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "writer_lock_wait_seconds",
			Help:      "Time spent waiting for the booking writer lock.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingCreated, ownerDecision, overlapConflicts,
			importRows, priceQuotes, httpRequests, httpDuration, lockWait)
	})
}

func IncBookingCreated(status string) {
	bookingCreated.WithLabelValues(status).Inc()
}

func IncOwnerDecision(decision string) {
	ownerDecision.WithLabelValues(decision).Inc()
}

func IncConflict(operation string) {
	overlapConflicts.WithLabelValues(operation).Inc()
}

func AddImportRows(mode, outcome string, n int) {
	if n <= 0 {
		return
	}
	importRows.WithLabelValues(mode, outcome).Add(float64(n))
}

func IncQuote(method string, priced bool) {
	p := "false"
	if priced {
		p = "true"
	}
	priceQuotes.WithLabelValues(method, p).Inc()
}

func ObserveHTTP(route string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, statusLabel(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func ObserveLockWait(elapsed time.Duration) {
	lockWait.Observe(elapsed.Seconds())
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
