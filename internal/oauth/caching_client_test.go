package oauth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachingClient_GetUser(t *testing.T) {
	provider := newFakeProvider(t)
	mr, redisClient := newTestRedis(t)
	client := NewCachingClient(provider.client(), NewRedisProfileCache(redisClient, "p"), time.Minute, nil)
	ctx := context.Background()

	first, err := client.GetUser(ctx, "tok-1")
	require.NoError(t, err)
	second, err := client.GetUser(ctx, "tok-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int32(1), provider.userCalls.Load())

	for _, key := range mr.Keys() {
		assert.False(t, strings.Contains(key, "tok-1"), "raw token must not be used as cache key")
	}

	client.Forget(ctx, "tok-1")
	_, err = client.GetUser(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), provider.userCalls.Load())
}

func TestCachingClient_ErrorsAreNotCached(t *testing.T) {
	provider := newFakeProvider(t)
	client := NewCachingClient(provider.client(), NewMemoryProfileCache(), time.Minute, nil)
	ctx := context.Background()

	_, err := client.GetUser(ctx, "stale")
	require.Error(t, err)
	_, err = client.GetUser(ctx, "stale")
	require.Error(t, err)

	assert.Equal(t, int32(2), provider.userCalls.Load())
}

func TestCachingClient_FailsOpenWhenCacheIsDown(t *testing.T) {
	provider := newFakeProvider(t)
	mr, redisClient := newTestRedis(t)
	client := NewCachingClient(provider.client(), NewRedisProfileCache(redisClient, "p"), time.Minute, nil)
	mr.Close()

	profile, err := client.GetUser(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "42", profile.ID)
}

func TestCachingClient_DelegatesLoginAndExchange(t *testing.T) {
	provider := newFakeProvider(t)
	client := NewCachingClient(provider.client(), NewMemoryProfileCache(), time.Minute, nil)

	assert.Contains(t, client.LoginURL("https://site/cb", "subscriber"), "accessible_for=subscriber")

	token, err := client.ExchangeCode(context.Background(), "https://site/cb", "good")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
}
