package session

import (
	"net/http"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/domain"
)

// Cookies is the request-scoped view of the gateway cookies: reads see the
// inbound request overlaid with whatever this request has already written.
type Cookies struct {
	store   *Store
	r       *http.Request
	w       http.ResponseWriter
	written map[string]*string
}

// ForRequest binds the store to one request/response pair.
func (s *Store) ForRequest(w http.ResponseWriter, r *http.Request) *Cookies {
	return &Cookies{store: s, r: r, w: w, written: make(map[string]*string, 2)}
}

// Token returns the current access token.
func (c *Cookies) Token() (string, bool) {
	if v, ok := c.written[TokenCookieName]; ok {
		return deref(v)
	}
	return c.store.Token(c.r)
}

// SetToken persists the access token on the response.
func (c *Cookies) SetToken(token string) (*domain.Session, error) {
	session, err := c.store.SetToken(c.w, token)
	if err != nil {
		return nil, err
	}
	c.written[TokenCookieName] = &token
	return session, nil
}

// Destination returns the current post-login URL.
func (c *Cookies) Destination() (string, bool) {
	if v, ok := c.written[DestinationCookieName]; ok {
		return deref(v)
	}
	return c.store.Destination(c.r)
}

// SetDestination persists the post-login URL on the response.
func (c *Cookies) SetDestination(destination string) (*domain.AuthDestination, error) {
	dest, err := c.store.SetDestination(c.w, destination)
	if err != nil {
		return nil, err
	}
	c.written[DestinationCookieName] = &destination
	return dest, nil
}

// ClearDestination expires the destination cookie.
func (c *Cookies) ClearDestination() {
	c.store.ClearDestination(c.w)
	c.written[DestinationCookieName] = nil
}

// Clear expires all gateway cookies.
func (c *Cookies) Clear() {
	c.store.Clear(c.w)
	c.written[TokenCookieName] = nil
	c.written[DestinationCookieName] = nil
}

func deref(v *string) (string, bool) {
	if v == nil || *v == "" {
		return "", false
	}
	return *v, true
}
