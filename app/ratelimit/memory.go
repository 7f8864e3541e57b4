package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultIdleTTL = 10 * time.Minute

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter is a per-key token bucket held in a process-wide map. Keys
// idle for longer than the TTL are evicted lazily.
type MemoryLimiter struct {
	mu        sync.Mutex
	entries   map[string]*memoryEntry
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryLimiter(requestsPerMinute, burst int, ttl time.Duration) *MemoryLimiter {
	if ttl <= 0 {
		ttl = defaultIdleTTL
	}
	return &MemoryLimiter{
		entries: make(map[string]*memoryEntry),
		limit:   rate.Limit(perSecond(requestsPerMinute)),
		burst:   normalizeBurst(burst, requestsPerMinute),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (*Result, error) {
	now := l.now()

	l.mu.Lock()
	l.sweep(now)
	entry, ok := l.entries[key]
	if !ok {
		entry = &memoryEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = entry
	}
	entry.lastSeen = now
	allowed := entry.limiter.AllowN(now, 1)
	tokens := entry.limiter.TokensAt(now)
	l.mu.Unlock()

	result := &Result{
		Allowed:   allowed,
		Limit:     l.burst,
		Remaining: int(math.Max(0, math.Floor(tokens))),
	}
	if !allowed {
		result.RetryAfter = time.Duration((1 - tokens) / float64(l.limit) * float64(time.Second))
	}
	return result, nil
}

// Len reports the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.ttl {
		return
	}
	for key, entry := range l.entries {
		if now.Sub(entry.lastSeen) >= l.ttl {
			delete(l.entries, key)
		}
	}
	l.lastSweep = now
}
