package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis for deployments where multiple
// engine instances share counter state. A pre-compiled Lua script makes
// increment-plus-expire a single atomic operation server-side.
type RedisStore struct {
	client          redis.Cmdable
	incrementScript *redis.Script
}

const incrementAndExpireLua = `
local current = redis.call("INCR", KEYS[1])
redis.call("EXPIRE", KEYS[1], ARGV[1])
return current
`

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{
		client:          client,
		incrementScript: redis.NewScript(incrementAndExpireLua),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	count, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counter get %q: %w", key, err)
	}
	return count, nil
}

func (s *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("counter incr %q: %w", key, err)
	}
	return count, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttlSeconds int64) error {
	if err := s.client.Expire(ctx, key, time.Duration(ttlSeconds)*time.Second).Err(); err != nil {
		return fmt.Errorf("counter expire %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) IncrementAndExpire(ctx context.Context, key string, ttlSeconds int64) (int64, error) {
	res, err := s.incrementScript.Run(ctx, s.client, []string{key}, ttlSeconds).Result()
	if err != nil {
		return 0, fmt.Errorf("counter incr+expire %q: %w", key, err)
	}
	count, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("counter incr+expire %q: unexpected script result %T", key, res)
	}
	return count, nil
}
