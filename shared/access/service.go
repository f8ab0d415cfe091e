// Package access implements the owner gate: a shared-secret login that sets
// a signed session cookie, and the Actor capability derived from it.
package access

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const (
	// CookieName is the owner session cookie.
	CookieName = "owner"

	issuer       = "holidaylet"
	ownerSubject = "owner"
)

// DefaultSessionTTL matches the 30 day owner session.
const DefaultSessionTTL = 30 * 24 * time.Hour

// ErrLoginDisabled is returned by Login when no admin password is configured.
var ErrLoginDisabled = errors.New("owner login is not configured")

// Config configures the owner gate.
type Config struct {
	AdminPassword string
	// SessionSecret signs session cookies. When empty a key is derived from
	// AdminPassword, so changing the password ends existing sessions.
	SessionSecret string
	SessionTTL    time.Duration
	SecureCookie  bool
}

// Service authenticates the owner and resolves request actors.
type Service struct {
	password []byte
	key      []byte
	ttl      time.Duration
	secure   bool
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService creates a new owner gate.
func NewService(cfg Config, logger zerolog.Logger) *Service {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s := &Service{
		ttl:    ttl,
		secure: cfg.SecureCookie,
		now:    time.Now,
		logger: logger.With().Str("component", "access").Logger(),
	}
	if cfg.AdminPassword != "" {
		sum := sha256.Sum256([]byte(cfg.AdminPassword))
		s.password = sum[:]
	}
	switch {
	case cfg.SessionSecret != "":
		s.key = []byte(cfg.SessionSecret)
	case cfg.AdminPassword != "":
		sum := sha256.Sum256([]byte("holidaylet-session:" + cfg.AdminPassword))
		s.key = sum[:]
	}
	return s
}

// Enabled reports whether owner login is possible.
func (s *Service) Enabled() bool {
	return len(s.password) > 0 && len(s.key) > 0
}

// Login checks the shared secret and returns the session cookie to set.
func (s *Service) Login(password string) (*http.Cookie, error) {
	if !s.Enabled() {
		return nil, ErrLoginDisabled
	}
	sum := sha256.Sum256([]byte(password))
	if subtle.ConstantTimeCompare(sum[:], s.password) != 1 {
		s.logger.Warn().Msg("owner login rejected")
		return nil, &AccessDeniedError{Reason: "invalid password"}
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   ownerSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}

	s.logger.Info().Msg("owner logged in")
	return s.cookie(token, int(s.ttl.Seconds())), nil
}

// LogoutCookie returns a cookie that clears the owner session.
func (s *Service) LogoutCookie() *http.Cookie {
	return s.cookie("", -1)
}

func (s *Service) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ActorFromRequest returns Owner when r carries a valid session cookie and
// Guest otherwise.
func (s *Service) ActorFromRequest(r *http.Request) Actor {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" || len(s.key) == 0 {
		return Guest
	}
	if err := s.verify(c.Value); err != nil {
		s.logger.Debug().Err(err).Msg("owner session rejected")
		return Guest
	}
	return Owner
}

func (s *Service) verify(token string) error {
	_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithSubject(ownerSubject),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	return err
}
