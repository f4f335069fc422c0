package sitemaps

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	val, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), val)
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := fixedNow
	c := NewMemoryCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "forever", []byte("2"), 0))

	now = now.Add(2 * time.Minute)
	_, ok, _ := c.Get(ctx, "short")
	assert.False(t, ok, "expired entry must miss")
	_, ok, _ = c.Get(ctx, "forever")
	assert.True(t, ok, "zero ttl never expires")
	assert.Equal(t, 1, c.Len(), "expired entry is dropped on read")
}

func TestMemoryCacheDeleteAndPurge(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, c.Delete(ctx, "a"))
	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, c.Purge(ctx))
	assert.Equal(t, 0, c.Len())
}

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisCacheFromClient(client)
}

func TestRedisCacheSetGet(t *testing.T) {
	mr, c := setupMiniRedis(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, keyAllDates, []byte(`["2024-03-09"]`), time.Hour))
	val, ok, err := c.Get(ctx, keyAllDates)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `["2024-03-09"]`, string(val))

	assert.True(t, mr.Exists("ssitemaps:all_dates"), "keys are namespaced")
	assert.Equal(t, time.Hour, mr.TTL("ssitemaps:all_dates"))
}

func TestRedisCacheExpiry(t *testing.T) {
	mr, c := setupMiniRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCachePurgeKeepsForeignKeys(t *testing.T) {
	mr, c := setupMiniRedis(t)
	ctx := context.Background()

	for i := 0; i < 1200; i++ {
		require.NoError(t, c.Set(ctx, ImagesCacheKey(int64(i)), []byte("[]"), 0))
	}
	require.NoError(t, mr.Set("other:key", "keep"))

	require.NoError(t, c.Purge(ctx))
	assert.Equal(t, []string{"other:key"}, mr.Keys())
}

func TestRedisCacheDelete(t *testing.T) {
	mr, c := setupMiniRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "images_7", []byte("[]"), 0))
	require.NoError(t, c.Delete(ctx, "images_7"))
	assert.False(t, mr.Exists("ssitemaps:images_7"))
}

func TestRedisCacheUnavailable(t *testing.T) {
	mr, c := setupMiniRedis(t)
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestNewRedisCacheFailsFast(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(context.Background(), RedisConfig{Addr: addr})
	assert.Error(t, err)
}

func TestCacheKind(t *testing.T) {
	assert.Equal(t, "all_dates", cacheKind(keyAllDates))
	assert.Equal(t, "images", cacheKind(ImagesCacheKey(12)))
	assert.Equal(t, "plain", cacheKind("plain"))
	assert.Equal(t, "images_12", ImagesCacheKey(12))
}
