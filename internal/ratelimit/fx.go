package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// NewLimiter picks the shared Redis bucket when a client exists.
func NewLimiter(client *redis.Client) Limiter {
	if bucket := NewTokenBucket(client); bucket != nil {
		return bucket
	}
	return NewMemoryBucket()
}

var Module = fx.Module("rate.limit",
	fx.Provide(NewLocker),
	fx.Provide(NewLimiter),
)
