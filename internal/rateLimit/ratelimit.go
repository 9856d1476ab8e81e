package rateLimit

import (
	"context"
	"time"
)

type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RateLimiter struct {
	counter Counter
}

func NewRateLimiter(counter Counter) *RateLimiter {
	return &RateLimiter{counter: counter}
}

// Allow reports whether key is still within rate hits for the current period.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) (bool, error) {
	n, err := rl.counter.Incr(ctx, "rl:"+key, period)
	if err != nil {
		return false, err
	}
	return n <= int64(rate), nil
}
