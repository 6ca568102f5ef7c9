package rules

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisCache mirrors rule documents into Redis as JSON so other processes
// can look rules up by id without a round trip to this instance.
type RedisCache struct {
	client redis.Cmdable
}

func NewRedisCache(client redis.Cmdable) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Put(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal rule for cache: %w", err)
	}
	// Rules have no natural TTL; deletions remove the entry explicitly.
	if err := c.client.Set(ctx, key, payload, 0).Err(); err != nil {
		return fmt.Errorf("cache rule write: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache rule delete: %w", err)
	}
	return nil
}
