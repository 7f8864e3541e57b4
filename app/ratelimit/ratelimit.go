// Package ratelimit throttles inbound webhook traffic per client key.
//
// MemoryLimiter keeps its counters inside the process. It only protects a
// single instance: with several replicas every replica grants the full
// budget. Deployments running more than one instance must configure
// REDIS_ADDR so RedisLimiter shares the counters.
package ratelimit

import (
	"context"
	"time"
)

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

func perSecond(requestsPerMinute int) float64 {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return float64(requestsPerMinute) / 60
}

func normalizeBurst(burst, requestsPerMinute int) int {
	if burst > 0 {
		return burst
	}
	if requestsPerMinute > 0 {
		return requestsPerMinute
	}
	return 60
}
