package middleware

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a token bucket refilled one token per refill interval.
type RateLimiter struct {
	lastRefill time.Time
	lastSeen   time.Time
	now        func() time.Time
	mu         sync.Mutex
	refill     time.Duration
	tokens     int
	capacity   int
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(capacity int, refillRate time.Duration) *RateLimiter {
	return newRateLimiterAt(capacity, refillRate, time.Now)
}

func newRateLimiterAt(capacity int, refillRate time.Duration, now func() time.Time) *RateLimiter {
	t := now()
	return &RateLimiter{
		lastRefill: t,
		lastSeen:   t,
		now:        now,
		refill:     refillRate,
		tokens:     capacity,
		capacity:   capacity,
	}
}

// Allow checks if a request should be allowed based on rate limits.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.lastSeen = now

	if elapsed := now.Sub(rl.lastRefill); elapsed >= rl.refill {
		rl.tokens = min(rl.capacity, rl.tokens+int(elapsed/rl.refill))
		rl.lastRefill = rl.lastRefill.Add(elapsed / rl.refill * rl.refill)
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

func (rl *RateLimiter) idleSince() time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.lastSeen
}

// LRUCache bounds the number of in-memory limiters.
type LRUCache struct {
	items    map[string]*list.Element
	list     *list.List
	mu       sync.Mutex
	capacity int
}

type lruItem struct {
	limiter *RateLimiter
	key     string
}

// NewLRUCache creates a new LRU cache with the specified capacity.
func NewLRUCache(capacity int) *LRUCache {
	return &LRUCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		list:     list.New(),
	}
}

// Get retrieves a rate limiter from the cache or creates a new one.
func (c *LRUCache) Get(key string, factory func() *RateLimiter) *RateLimiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.list.MoveToFront(elem)
		return elem.Value.(*lruItem).limiter
	}

	limiter := factory()
	c.items[key] = c.list.PushFront(&lruItem{key: key, limiter: limiter})

	if c.list.Len() > c.capacity {
		c.removeElement(c.list.Back())
	}
	return limiter
}

func (c *LRUCache) removeElement(elem *list.Element) {
	c.list.Remove(elem)
	delete(c.items, elem.Value.(*lruItem).key)
}

// RemoveIdle drops limiters not used since cutoff and returns how many went.
func (c *LRUCache) RemoveIdle(cutoff time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for elem := c.list.Back(); elem != nil; {
		prev := elem.Prev()
		if !elem.Value.(*lruItem).limiter.idleSince().Before(cutoff) {
			// Everything further front was used more recently.
			break
		}
		c.removeElement(elem)
		removed++
		elem = prev
	}
	return removed
}

// Len returns the current number of items in the cache.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}

// RedisRateLimiter implements distributed rate limiting with a sliding window
// kept in a sorted set per key.
type RedisRateLimiter struct {
	client            *redis.Client
	keyPrefix         string
	requestsPerMinute int
	windowSize        time.Duration
	now               func() time.Time
}

// NewRedisRateLimiter creates a new Redis-based rate limiter.
func NewRedisRateLimiter(client *redis.Client, keyPrefix string, requestsPerMinute int) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:            client,
		keyPrefix:         keyPrefix,
		requestsPerMinute: requestsPerMinute,
		windowSize:        time.Minute,
		now:               time.Now,
	}
}

// Allow records a request for key and reports whether it fits the window.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.keyPrefix, key)
	now := rl.now()
	windowStart := now.Add(-rl.windowSize)

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", "("+strconv.FormatInt(windowStart.UnixMilli(), 10))
	count := pipe.ZCard(ctx, redisKey)
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipe.Expire(ctx, redisKey, rl.windowSize+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis rate limiting error: %w", err)
	}
	return count.Val() < int64(rl.requestsPerMinute), nil
}

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// KeyGenerator returns the bucket of a request. Defaults to the client IP.
	KeyGenerator func(c *gin.Context) string
	// OnExceeded is called when rate limit is exceeded.
	OnExceeded func(c *gin.Context)
	// Redis enables distributed limiting when set.
	Redis  *redis.Client
	Logger *slog.Logger
	// CleanupInterval specifies how often to clean up idle limiters (default: 5 minutes).
	CleanupInterval time.Duration
	// MaxAge is how long an idle limiter is kept (default: 10 minutes).
	MaxAge            time.Duration
	RequestsPerMinute int
	// CacheCapacity bounds the in-memory limiters (default: 10000).
	CacheCapacity int
}

// RateLimitManager owns the limiters and their cleanup goroutine.
type RateLimitManager struct {
	cache            *LRUCache
	redisRateLimiter *RedisRateLimiter
	cleanupDone      chan struct{}
	cancel           context.CancelFunc
	config           RateLimitConfig
	now              func() time.Time
}

// NewRateLimitManager creates a manager. Call Shutdown to stop its goroutine.
func NewRateLimitManager(ctx context.Context, config RateLimitConfig) *RateLimitManager {
	if config.CleanupInterval == 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if config.MaxAge == 0 {
		config.MaxAge = 10 * time.Minute
	}
	if config.CacheCapacity == 0 {
		config.CacheCapacity = 10000
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	managerCtx, cancel := context.WithCancel(ctx)
	manager := &RateLimitManager{
		cache:       NewLRUCache(config.CacheCapacity),
		config:      config,
		cancel:      cancel,
		cleanupDone: make(chan struct{}),
		now:         time.Now,
	}
	if config.Redis != nil {
		manager.redisRateLimiter = NewRedisRateLimiter(config.Redis, "rate_limit", config.RequestsPerMinute)
	}

	go manager.cleanup(managerCtx)
	return manager
}

// Allow checks if a request should be allowed for the given key.
func (rm *RateLimitManager) Allow(ctx context.Context, key string) (bool, error) {
	if rm.redisRateLimiter != nil {
		return rm.redisRateLimiter.Allow(ctx, key)
	}
	return rm.GetLimiter(key).Allow(), nil
}

// GetLimiter gets or creates the in-memory limiter for key.
func (rm *RateLimitManager) GetLimiter(key string) *RateLimiter {
	return rm.cache.Get(key, func() *RateLimiter {
		return newRateLimiterAt(rm.config.RequestsPerMinute, time.Minute/time.Duration(rm.config.RequestsPerMinute), rm.now)
	})
}

func (rm *RateLimitManager) cleanup(ctx context.Context) {
	defer close(rm.cleanupDone)

	ticker := time.NewTicker(rm.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rm.cache.RemoveIdle(rm.now().Add(-rm.config.MaxAge))
		}
	}
}

// Shutdown stops the cleanup goroutine and waits for it.
func (rm *RateLimitManager) Shutdown() {
	rm.cancel()
	<-rm.cleanupDone
}

// RateLimitStats holds statistics about rate limiting.
type RateLimitStats struct {
	CacheSize     int     `json:"cache_size"`
	CacheCapacity int     `json:"cache_capacity"`
	CacheUsage    float64 `json:"cache_usage"`
	Distributed   bool    `json:"distributed"`
}

// Stats returns statistics about the rate limiter cache.
func (rm *RateLimitManager) Stats() RateLimitStats {
	size := rm.cache.Len()
	return RateLimitStats{
		CacheSize:     size,
		CacheCapacity: rm.config.CacheCapacity,
		CacheUsage:    float64(size) / float64(rm.config.CacheCapacity),
		Distributed:   rm.redisRateLimiter != nil,
	}
}

// RateLimitMiddleware returns a rate limiting middleware and its manager.
// The manager must be shut down to stop its cleanup goroutine.
func RateLimitMiddleware(ctx context.Context, config RateLimitConfig) (gin.HandlerFunc, *RateLimitManager) {
	if config.KeyGenerator == nil {
		config.KeyGenerator = func(c *gin.Context) string {
			return "ip:" + c.ClientIP()
		}
	}
	manager := NewRateLimitManager(ctx, config)
	logger := manager.config.Logger

	middleware := func(c *gin.Context) {
		allowed, err := manager.Allow(c.Request.Context(), config.KeyGenerator(c))
		if err != nil {
			// Fail open.
			logger.WarnContext(c.Request.Context(), "rate limiter unavailable",
				slog.String("request_id", GetRequestID(c)),
				slog.String("error", err.Error()))
			c.Next()
			return
		}

		if !allowed {
			c.Header("Retry-After", "60")
			if config.OnExceeded != nil {
				config.OnExceeded(c)
				c.Abort()
				return
			}
			abortWithError(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}

		c.Next()
	}

	return middleware, manager
}
