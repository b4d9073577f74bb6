// Package cache implements the optional redirect-target cache on Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss indicates that no cached target exists for the short key.
var ErrCacheMiss = errors.New("cache miss")

const targetKeyPrefix = "linktrack:target:"

func targetKey(shortKey string) string {
	return targetKeyPrefix + shortKey
}

// Redis caches short key to target URL mappings with a fixed TTL. A zero
// TTL stores entries without expiry.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// GetTarget returns the cached target URL for the key, or ErrCacheMiss.
func (c *Redis) GetTarget(ctx context.Context, shortKey string) (string, error) {
	const op = "cache.Redis.GetTarget"

	target, err := c.client.Get(ctx, targetKey(shortKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%s: %w", op, ErrCacheMiss)
		}

		return "", fmt.Errorf("%s: failed to get key: %w", op, err)
	}

	return target, nil
}

func (c *Redis) SetTarget(ctx context.Context, shortKey, targetURL string) error {
	const op = "cache.Redis.SetTarget"

	if err := c.client.Set(ctx, targetKey(shortKey), targetURL, c.ttl).Err(); err != nil {
		return fmt.Errorf("%s: failed to set key: %w", op, err)
	}

	return nil
}

// Invalidate drops the cached target for the key. Deleting a key that is
// not cached is not an error.
func (c *Redis) Invalidate(ctx context.Context, shortKey string) error {
	const op = "cache.Redis.Invalidate"

	if err := c.client.Del(ctx, targetKey(shortKey)).Err(); err != nil {
		return fmt.Errorf("%s: failed to delete key: %w", op, err)
	}

	return nil
}
