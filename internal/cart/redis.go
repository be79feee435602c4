package cart

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisKV stores cart keys in Redis.
type RedisKV struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisKV constructs a Redis-backed store. A zero ttl keeps keys until
// they are deleted.
func NewRedisKV(client redis.Cmdable, ttl time.Duration) *RedisKV {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisKV{client: client, ttl: ttl}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	if r == nil || r.client == nil {
		return "", false, errors.New("cart: redis client not configured")
	}
	v, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	if r == nil || r.client == nil {
		return errors.New("cart: redis client not configured")
	}
	return r.client.Set(ctx, key, value, r.ttl).Err()
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if r == nil || r.client == nil {
		return errors.New("cart: redis client not configured")
	}
	return r.client.Del(ctx, key).Err()
}
