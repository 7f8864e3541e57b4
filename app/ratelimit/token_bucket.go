package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
  ts = now
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens)}
`

// RedisLimiter shares token buckets between instances through Redis.
type RedisLimiter struct {
	client *redis.Client
	script *redis.Script
	prefix string
	rate   float64
	burst  int
}

func NewRedisLimiter(client *redis.Client, prefix string, requestsPerMinute, burst int) *RedisLimiter {
	if client == nil {
		return nil
	}
	return &RedisLimiter{
		client: client,
		script: redis.NewScript(tokenBucketScript),
		prefix: prefix,
		rate:   perSecond(requestsPerMinute),
		burst:  normalizeBurst(burst, requestsPerMinute),
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("rate limiter not configured")
	}
	if key == "" {
		return nil, errors.New("rate limiter key is empty")
	}

	res, err := l.script.Run(ctx, l.client, []string{l.prefix + key},
		l.rate,
		l.burst,
		int64(bucketTTL(l.rate, l.burst)/time.Millisecond),
	).Slice()
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, errors.New("invalid rate limit script response")
	}

	allowed := toInt(res[0]) == 1
	tokens := toFloat(res[1])

	result := &Result{
		Allowed:   allowed,
		Limit:     l.burst,
		Remaining: int(math.Max(0, math.Floor(tokens))),
	}
	if !allowed {
		result.RetryAfter = time.Duration((1 - tokens) / l.rate * float64(time.Second))
	}
	return result, nil
}

func bucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Ceil((float64(burst) / rate) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func toInt(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	default:
		return 0
	}
}

// toFloat handles the script returning tokens as a string; Lua numbers lose
// their fraction when converted to Redis integer replies.
func toFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return f
	case int64:
		return float64(val)
	case float64:
		return val
	default:
		return 0
	}
}
