package domain

import "time"

const (
	// SessionLifetime is how long an access token cookie stays valid.
	SessionLifetime = 24 * time.Hour
	// DestinationLifetime is how long the post-login destination is remembered.
	DestinationLifetime = time.Hour
)

// Session is an access token persisted client-side. The token is treated as
// valid until ExpiresAt; there is no local revocation check.
type Session struct {
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewSession starts a session for token at now.
func NewSession(token string, now time.Time) *Session {
	return &Session{AccessToken: token, ExpiresAt: now.Add(SessionLifetime)}
}

// IsExpired checks if the session has expired at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// AuthDestination is the page a visitor asked for before being sent to login.
type AuthDestination struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewAuthDestination remembers url for DestinationLifetime from now.
func NewAuthDestination(url string, now time.Time) *AuthDestination {
	return &AuthDestination{URL: url, ExpiresAt: now.Add(DestinationLifetime)}
}

// IsExpired checks if the destination has expired at now.
func (d *AuthDestination) IsExpired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}
