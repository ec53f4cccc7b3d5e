package oauth

import (
	"fmt"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/settings"
)

// Factory builds a Client for one set of credentials.
type Factory func(creds settings.Credentials) Client

// Registry holds one Client per configured locale. Clients are built up front
// so request handling never constructs provider clients.
type Registry struct {
	clients map[string]Client
}

// NewRegistry builds a client for every locale the provider knows.
func NewRegistry(provider settings.Provider, factory Factory) (*Registry, error) {
	r := &Registry{clients: make(map[string]Client)}
	for _, locale := range provider.Locales() {
		creds, err := provider.Credentials(locale)
		if err != nil {
			return nil, fmt.Errorf("locale %s: %w", locale, err)
		}
		r.clients[locale] = factory(creds)
	}
	return r, nil
}

// ForLocale returns the client for locale.
func (r *Registry) ForLocale(locale string) (Client, error) {
	client, ok := r.clients[locale]
	if !ok {
		return nil, fmt.Errorf("%w: %s", settings.ErrUnknownLocale, locale)
	}
	return client, nil
}
