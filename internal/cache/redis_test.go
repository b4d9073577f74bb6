package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func setupRedisCache(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() {
		client.Close()
	})

	return NewRedis(client, ttl), srv
}

func TestRedis_GetTarget(t *testing.T) {
	t.Run("miss", func(t *testing.T) {
		cache, _ := setupRedisCache(t, time.Hour)

		target, err := cache.GetTarget(context.Background(), "abc1234")

		assert.Error(t, err)
		assert.ErrorIs(t, err, ErrCacheMiss)
		assert.Empty(t, target)
	})

	t.Run("hit", func(t *testing.T) {
		cache, _ := setupRedisCache(t, time.Hour)

		err := cache.SetTarget(context.Background(), "abc1234", "https://example.com")
		assert.NoError(t, err)

		target, err := cache.GetTarget(context.Background(), "abc1234")

		assert.NoError(t, err)
		assert.Equal(t, "https://example.com", target)
	})
}

func TestRedis_SetTarget(t *testing.T) {
	t.Run("applies ttl", func(t *testing.T) {
		cache, srv := setupRedisCache(t, time.Hour)

		err := cache.SetTarget(context.Background(), "abc1234", "https://example.com")
		assert.NoError(t, err)

		assert.Equal(t, time.Hour, srv.TTL(targetKey("abc1234")))
	})

	t.Run("entries expire", func(t *testing.T) {
		cache, srv := setupRedisCache(t, time.Minute)

		err := cache.SetTarget(context.Background(), "abc1234", "https://example.com")
		assert.NoError(t, err)

		srv.FastForward(2 * time.Minute)

		_, err = cache.GetTarget(context.Background(), "abc1234")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}

func TestRedis_Invalidate(t *testing.T) {
	t.Run("drops cached target", func(t *testing.T) {
		cache, _ := setupRedisCache(t, time.Hour)

		err := cache.SetTarget(context.Background(), "abc1234", "https://example.com")
		assert.NoError(t, err)

		err = cache.Invalidate(context.Background(), "abc1234")
		assert.NoError(t, err)

		_, err = cache.GetTarget(context.Background(), "abc1234")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("missing key is not an error", func(t *testing.T) {
		cache, _ := setupRedisCache(t, time.Hour)

		err := cache.Invalidate(context.Background(), "never-cached")

		assert.NoError(t, err)
	})
}
