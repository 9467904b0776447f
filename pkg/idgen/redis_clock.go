package idgen

import (
	"context"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/redis/go-redis/v9"
)

// Clock abstracts the time source for the ID generator.
type Clock interface {
	// Now returns the current timestamp in milliseconds.
	Now() int64
}

// SystemClock uses the local system time.
type SystemClock struct{}

func (s *SystemClock) Now() int64 {
	return time.Now().UnixMilli()
}

// RedisClock reads time from Redis so that engine instances sharing a node id
// space agree on one clock.
type RedisClock struct {
	client  *redis.Client
	timeout time.Duration
}

func NewRedisClock(client *redis.Client, timeout time.Duration) *RedisClock {
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}
	return &RedisClock{
		client:  client,
		timeout: timeout,
	}
}

func (r *RedisClock) Now() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	// Redis TIME returns [seconds, microseconds]
	res, err := r.client.Time(ctx).Result()
	if err != nil {
		// Falling back keeps ids flowing; small skews are absorbed by Snowflake.
		logger.Debugw("Redis clock unavailable, using system time", "error", err.Error())
		return time.Now().UnixMilli()
	}

	return res.Unix()*1000 + int64(res.Nanosecond())/1000000
}
