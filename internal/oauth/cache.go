package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/domain"
)

// ProfileCache stores user profiles under an opaque key.
type ProfileCache interface {
	Get(ctx context.Context, key string) (*domain.UserProfile, bool, error)
	Set(ctx context.Context, key string, profile *domain.UserProfile, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisProfileCache keeps profiles in redis as JSON.
type RedisProfileCache struct {
	client *redis.Client
	prefix string
}

// NewRedisProfileCache creates a redis-backed cache. Keys are namespaced by prefix.
func NewRedisProfileCache(client *redis.Client, prefix string) *RedisProfileCache {
	return &RedisProfileCache{client: client, prefix: prefix}
}

func (c *RedisProfileCache) key(key string) string {
	return c.prefix + ":" + key
}

// Get returns the cached profile for key.
func (c *RedisProfileCache) Get(ctx context.Context, key string) (*domain.UserProfile, bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var profile domain.UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, false, fmt.Errorf("decode cached profile: %w", err)
	}
	return &profile, true, nil
}

// Set stores profile under key for ttl.
func (c *RedisProfileCache) Set(ctx context.Context, key string, profile *domain.UserProfile, ttl time.Duration) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := c.client.Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (c *RedisProfileCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// MemoryProfileCache is an in-process cache for single-instance deployments.
type MemoryProfileCache struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryProfileCache creates an empty in-memory cache.
func NewMemoryProfileCache() *MemoryProfileCache {
	return &MemoryProfileCache{items: make(map[string]memoryItem), now: time.Now}
}

// Get returns the cached profile for key, dropping it when expired.
func (c *MemoryProfileCache) Get(_ context.Context, key string) (*domain.UserProfile, bool, error) {
	c.mu.Lock()
	item, ok := c.items[key]
	if ok && !c.now().Before(item.expiresAt) {
		delete(c.items, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return nil, false, nil
	}

	var profile domain.UserProfile
	if err := json.Unmarshal(item.data, &profile); err != nil {
		return nil, false, fmt.Errorf("decode cached profile: %w", err)
	}
	return &profile, true, nil
}

// Set stores profile under key for ttl.
func (c *MemoryProfileCache) Set(_ context.Context, key string, profile *domain.UserProfile, ttl time.Duration) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = memoryItem{data: data, expiresAt: c.now().Add(ttl)}
	return nil
}

// Delete removes key.
func (c *MemoryProfileCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

// DeleteExpired drops every expired entry.
func (c *MemoryProfileCache) DeleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, item := range c.items {
		if !now.Before(item.expiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired or not.
func (c *MemoryProfileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
