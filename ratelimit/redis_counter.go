package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "tickqueue:ratelimit:"

// RedisCounter shares windows between processes through Redis.
type RedisCounter struct {
	client redis.Cmdable
}

func NewRedisCounter(client redis.Cmdable) *RedisCounter {
	return &RedisCounter{client: client}
}

func (r *RedisCounter) Increment(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	key = redisKeyPrefix + key

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, err
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		// first hit of a window, or a key left without expiry
		if err := r.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, time.Time{}, err
		}
		remaining = window
	}

	return int(incr.Val()), now.Add(remaining), nil
}
