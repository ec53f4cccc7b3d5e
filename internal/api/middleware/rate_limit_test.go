package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func serve(router *gin.Engine, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Test-Key", key)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func newLimitedRouter(t *testing.T, config RateLimitConfig) (*gin.Engine, *RateLimitManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if config.KeyGenerator == nil {
		config.KeyGenerator = func(c *gin.Context) string {
			return c.GetHeader("X-Test-Key")
		}
	}
	mw, manager := RateLimitMiddleware(context.Background(), config)
	t.Cleanup(manager.Shutdown)

	router := gin.New()
	router.Use(mw)
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router, manager
}

func TestRateLimiter_Refill(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newRateLimiterAt(2, 30*time.Second, func() time.Time { return now })

	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())

	now = now.Add(29 * time.Second)
	assert.False(t, limiter.Allow())

	now = now.Add(time.Second)
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())

	now = now.Add(10 * time.Minute)
	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow(), "refill is capped at capacity")
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewLRUCache(2)
	factory := func() *RateLimiter { return NewRateLimiter(1, time.Minute) }

	a := cache.Get("a", factory)
	cache.Get("b", factory)
	assert.Same(t, a, cache.Get("a", factory))

	cache.Get("c", factory)
	assert.Equal(t, 2, cache.Len())

	_, hasB := cache.items["b"]
	assert.False(t, hasB, "b was least recently used")
}

func TestLRUCache_RemoveIdle(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cache := NewLRUCache(10)

	cache.Get("old", func() *RateLimiter { return newRateLimiterAt(1, time.Minute, clock) })
	now = now.Add(time.Hour)
	cache.Get("new", func() *RateLimiter { return newRateLimiterAt(1, time.Minute, clock) })

	assert.Equal(t, 1, cache.RemoveIdle(now.Add(-time.Minute)))
	assert.Equal(t, 1, cache.Len())
}

func TestRateLimitMiddleware_RateLimiting(t *testing.T) {
	router, _ := newLimitedRouter(t, RateLimitConfig{RequestsPerMinute: 2})

	assert.Equal(t, http.StatusOK, serve(router, "k").Code)
	assert.Equal(t, http.StatusOK, serve(router, "k").Code)

	limited := serve(router, "k")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"Rate limit exceeded. Please try again later."}`, limited.Body.String())

	assert.Equal(t, http.StatusOK, serve(router, "other").Code, "keys are limited independently")
}

func TestRateLimitMiddleware_CustomOnExceeded(t *testing.T) {
	called := false
	router, _ := newLimitedRouter(t, RateLimitConfig{
		RequestsPerMinute: 1,
		OnExceeded: func(c *gin.Context) {
			called = true
			c.JSON(http.StatusTooManyRequests, gin.H{"custom": "rate limit exceeded"})
		},
	})

	assert.Equal(t, http.StatusOK, serve(router, "k").Code)
	w := serve(router, "k")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.True(t, called)
	assert.Contains(t, w.Body.String(), "custom")
}

func TestRateLimitMiddleware_CacheIsBounded(t *testing.T) {
	router, manager := newLimitedRouter(t, RateLimitConfig{RequestsPerMinute: 100, CacheCapacity: 10})

	for i := 0; i < 50; i++ {
		assert.Equal(t, http.StatusOK, serve(router, fmt.Sprintf("key-%d", i)).Code)
	}

	stats := manager.Stats()
	assert.Equal(t, 10, stats.CacheSize)
	assert.Equal(t, 1.0, stats.CacheUsage)
	assert.False(t, stats.Distributed)
}

func TestRateLimitManager_CleanupRemovesIdleLimiters(t *testing.T) {
	manager := NewRateLimitManager(context.Background(), RateLimitConfig{
		RequestsPerMinute: 10,
		CleanupInterval:   20 * time.Millisecond,
		MaxAge:            50 * time.Millisecond,
	})
	defer manager.Shutdown()

	manager.GetLimiter("a").Allow()
	manager.GetLimiter("b").Allow()
	require.Equal(t, 2, manager.cache.Len())

	assert.Eventually(t, func() bool {
		return manager.cache.Len() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestRateLimitManager_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	manager := NewRateLimitManager(ctx, RateLimitConfig{RequestsPerMinute: 10})

	cancel()

	select {
	case <-manager.cleanupDone:
	case <-time.After(time.Second):
		t.Fatal("Cleanup goroutine did not exit after context cancellation")
	}
}

func TestRedisRateLimiter_SlidingWindow(t *testing.T) {
	_, client := newTestRedis(t)
	limiter := NewRedisRateLimiter(client, "rl", 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i, expected := range []bool{true, true, false} {
		now = now.Add(time.Millisecond)
		allowed, err := limiter.Allow(ctx, "ip:1")
		require.NoError(t, err)
		assert.Equal(t, expected, allowed, "request %d", i)
	}

	now = now.Add(2 * time.Minute)
	allowed, err := limiter.Allow(ctx, "ip:1")
	require.NoError(t, err)
	assert.True(t, allowed, "window slid past earlier requests")
}

func TestRateLimitMiddleware_Redis(t *testing.T) {
	mr, client := newTestRedis(t)
	router, manager := newLimitedRouter(t, RateLimitConfig{RequestsPerMinute: 1, Redis: client})
	assert.True(t, manager.Stats().Distributed)

	assert.Equal(t, http.StatusOK, serve(router, "k").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, "k").Code)
	assert.True(t, mr.Exists("rate_limit:k"))

	mr.Close()
	assert.Equal(t, http.StatusOK, serve(router, "k").Code, "fails open when redis is down")
}
