package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/domain"
)

// CachingClient wraps a Client and caches GetUser results per token.
// Tokens are hashed before they are used as cache keys.
type CachingClient struct {
	Client
	cache  ProfileCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachingClient caches inner's profiles in cache for ttl. Cache failures
// are logged and the provider is asked instead.
func NewCachingClient(inner Client, cache ProfileCache, ttl time.Duration, logger *slog.Logger) *CachingClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingClient{Client: inner, cache: cache, ttl: ttl, logger: logger}
}

// GetUser returns the cached profile for token or fetches and caches it.
func (c *CachingClient) GetUser(ctx context.Context, token string) (*domain.UserProfile, error) {
	if token == "" {
		return c.Client.GetUser(ctx, token)
	}
	key := cacheKey(token)

	profile, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "profile cache read failed", slog.String("error", err.Error()))
	}
	if ok {
		return profile, nil
	}

	profile, err = c.Client.GetUser(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, profile, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "profile cache write failed", slog.String("error", err.Error()))
	}
	return profile, nil
}

// Forget drops the cached profile for token.
func (c *CachingClient) Forget(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := c.cache.Delete(ctx, cacheKey(token)); err != nil {
		c.logger.WarnContext(ctx, "profile cache delete failed", slog.String("error", err.Error()))
	}
}

func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
