// Package session persists the access token and the post-login destination
// in cookies.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/domain"
)

const (
	// TokenCookieName holds the provider access token.
	TokenCookieName = "bp_wa_oauth_token"
	// DestinationCookieName holds the URL to return to after login.
	DestinationCookieName = "bp_wa_oauth_auth_destination"

	cookiePath = "/"
	issuer     = "wa-oauth-gateway"
)

// Options configures a Store.
type Options struct {
	// SigningSecret enables HS256-signed cookie values. Empty stores values as is.
	SigningSecret string
	Domain        string
	Secure        bool
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store reads and writes gateway cookies.
type Store struct {
	secret []byte
	domain string
	secure bool
	now    func() time.Time
}

// NewStore creates a cookie store.
func NewStore(opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var secret []byte
	if opts.SigningSecret != "" {
		secret = []byte(opts.SigningSecret)
	}
	return &Store{
		secret: secret,
		domain: opts.Domain,
		secure: opts.Secure,
		now:    now,
	}
}

// Signed reports whether cookie values are signed.
func (s *Store) Signed() bool {
	return len(s.secret) > 0
}

// Token returns the access token carried by r, if any.
func (s *Store) Token(r *http.Request) (string, bool) {
	return s.read(r, TokenCookieName)
}

// SetToken persists token for domain.SessionLifetime.
func (s *Store) SetToken(w http.ResponseWriter, token string) (*domain.Session, error) {
	now := s.now()
	session := domain.NewSession(token, now)
	if err := s.write(w, TokenCookieName, token, now, session.ExpiresAt); err != nil {
		return nil, err
	}
	return session, nil
}

// Destination returns the remembered post-login URL carried by r, if any.
// The value is not validated: absolute URLs to other hosts are returned as is.
func (s *Store) Destination(r *http.Request) (string, bool) {
	return s.read(r, DestinationCookieName)
}

// SetDestination remembers destination for domain.DestinationLifetime.
func (s *Store) SetDestination(w http.ResponseWriter, destination string) (*domain.AuthDestination, error) {
	now := s.now()
	dest := domain.NewAuthDestination(destination, now)
	if err := s.write(w, DestinationCookieName, destination, now, dest.ExpiresAt); err != nil {
		return nil, err
	}
	return dest, nil
}

// ClearDestination expires the destination cookie.
func (s *Store) ClearDestination(w http.ResponseWriter) {
	s.expire(w, DestinationCookieName)
}

// Clear expires both the token and the destination cookie.
func (s *Store) Clear(w http.ResponseWriter) {
	s.expire(w, TokenCookieName)
	s.expire(w, DestinationCookieName)
}

func (s *Store) read(r *http.Request, name string) (string, bool) {
	if r == nil {
		return "", false
	}
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	raw, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return "", false
	}

	if !s.Signed() {
		return raw, raw != ""
	}

	value, err := s.verify(name, raw)
	if err != nil || value == "" {
		return "", false
	}
	return value, true
}

// write sets a cookie issued at now. MaxAge is derived from the same instant
// as expiresAt so lifetimes come out in whole seconds.
func (s *Store) write(w http.ResponseWriter, name, value string, now, expiresAt time.Time) error {
	if s.Signed() {
		signed, err := s.sign(name, value, now, expiresAt)
		if err != nil {
			return domain.NewInternalError("COOKIE_SIGNING_FAILED", "Failed to sign cookie", err)
		}
		value = signed
	}

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    url.QueryEscape(value),
		Path:     cookiePath,
		Domain:   s.domain,
		Expires:  expiresAt,
		MaxAge:   int(expiresAt.Sub(now) / time.Second),
		Secure:   s.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *Store) expire(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     cookiePath,
		Domain:   s.domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   s.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

type cookieClaims struct {
	Value string `json:"v"`
	jwt.RegisteredClaims
}

// sign binds value to the cookie name through the audience claim, so a signed
// destination cannot be replayed as a token.
func (s *Store) sign(name, value string, now, expiresAt time.Time) (string, error) {
	claims := cookieClaims{
		Value: value,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{name},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Store) verify(name, raw string) (string, error) {
	claims := &cookieClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(_ *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(name),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("cookie %s expired: %w", name, err)
		}
		return "", fmt.Errorf("cookie %s rejected: %w", name, err)
	}
	return claims.Value, nil
}
