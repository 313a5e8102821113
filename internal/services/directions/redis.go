package directions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"medwaste-backend/internal/routing"
)

// RedisCache shares provider answers between server instances
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func cacheKey(signature string) string {
	return fmt.Sprintf("directions:%s", signature)
}

func (c *RedisCache) Get(ctx context.Context, key string) (*routing.Directions, bool, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var d routing.Directions
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, false, fmt.Errorf("decode cached directions: %w", err)
	}
	return &d, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, d *routing.Directions) error {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode directions: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKey(key), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
