// Package api exposes the booking core over a small JSON HTTP API.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"holidaylet/internal/booking"
	"holidaylet/internal/dates"
	"holidaylet/internal/importer"
	"holidaylet/internal/pricing"
	"holidaylet/internal/stay"
	"holidaylet/shared/access"
)

// BookingService is the lifecycle the API drives.
type BookingService interface {
	Create(ctx context.Context, actor access.Actor, d booking.Draft) (*booking.Booking, error)
	Approve(ctx context.Context, actor access.Actor, id int64) (*booking.Booking, error)
	Decline(ctx context.Context, actor access.Actor, id int64) (*booking.Booking, error)
	Edit(ctx context.Context, actor access.Actor, id int64, p booking.Patch) (*booking.Booking, error)
	Delete(ctx context.Context, actor access.Actor, id int64) error
	Get(ctx context.Context, id int64) (*booking.Booking, error)
	List(ctx context.Context, filter booking.Filter) ([]booking.Booking, error)
	Occupancy(ctx context.Context, window dates.Interval) (*booking.Occupancy, error)
	Policy() stay.Policy
}

// Importer reconciles uploaded booking rows.
type Importer interface {
	Import(ctx context.Context, actor access.Actor, rows []importer.Row, mode importer.Mode) (*importer.Result, error)
}

// RateStore persists rate rules.
type RateStore interface {
	ListRates(ctx context.Context) ([]pricing.Rule, error)
	CreateRate(ctx context.Context, r *pricing.Rule) error
	DeleteRate(ctx context.Context, id int64) error
}

// Quoter prices a stay.
type Quoter interface {
	Quote(ctx context.Context, iv dates.Interval) (pricing.Quote, error)
}

// Exporter writes the xlsx workbook.
type Exporter interface {
	Export(ctx context.Context, w io.Writer) error
}

// Authenticator is the owner gate.
type Authenticator interface {
	Login(password string) (*http.Cookie, error)
	LogoutCookie() *http.Cookie
	ActorFromRequest(r *http.Request) access.Actor
}

// Check is a readiness probe.
type Check func(ctx context.Context) error

// Config for the HTTP server.
type Config struct {
	Address        string
	RequestTimeout time.Duration
	// GuestPerSecond and GuestBurst limit booking requests per client IP.
	GuestPerSecond float64
	GuestBurst     int
	// TrustProxy takes the client IP from X-Forwarded-For.
	TrustProxy bool
	Location   *time.Location
}

// Deps are the services behind the handlers. Exporter and Importer are
// optional; their routes answer 503 when unset.
type Deps struct {
	Bookings BookingService
	Importer Importer
	Rates    RateStore
	Quotes   Quoter
	Exporter Exporter
	Auth     Authenticator
	Checks   map[string]Check
}

// HTTPServer serves the JSON API.
type HTTPServer struct {
	server   *http.Server
	bookings BookingService
	importer Importer
	rates    RateStore
	quotes   Quoter
	exporter Exporter
	auth     Authenticator
	checks   map[string]Check
	guests   *ipLimiter
	trust    bool
	timeout  time.Duration
	loc      *time.Location
	log      zerolog.Logger
}

func NewHTTPServer(cfg Config, deps Deps, logger *zerolog.Logger) *HTTPServer {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.GuestPerSecond <= 0 {
		cfg.GuestPerSecond = 0.1
	}
	if cfg.GuestBurst <= 0 {
		cfg.GuestBurst = 3
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	s := &HTTPServer{
		bookings: deps.Bookings,
		importer: deps.Importer,
		rates:    deps.Rates,
		quotes:   deps.Quotes,
		exporter: deps.Exporter,
		auth:     deps.Auth,
		checks:   deps.Checks,
		guests:   newIPLimiter(cfg.GuestPerSecond, cfg.GuestBurst),
		trust:    cfg.TrustProxy,
		timeout:  cfg.RequestTimeout,
		loc:      cfg.Location,
		log:      logger.With().Str("component", "api").Logger(),
	}

	mux := http.NewServeMux()
	mux.Handle("/api/bookings", s.route("bookings", s.handleBookings))
	mux.Handle("/api/availability", s.route("availability", s.handleAvailability))
	mux.Handle("/api/rates", s.route("rates", s.handleRates))
	mux.Handle("/api/quote", s.route("quote", s.handleQuote))
	mux.Handle("/api/import", s.route("import", s.handleImport))
	mux.Handle("/api/export", s.route("export", s.handleExport))
	mux.Handle("/api/login", s.route("login", s.handleLogin))
	mux.Handle("/api/logout", s.route("logout", s.handleLogout))
	mux.Handle("/api/session", s.route("session", s.handleSession))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the root handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) today() dates.Date {
	return dates.Today(s.loc)
}
