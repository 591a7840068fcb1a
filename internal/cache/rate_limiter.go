package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// Token bucket kept in a Redis hash. Returns {allowed, remaining, retry_after_seconds}.
var tokenBucketScript = redisv9.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local bucket = redis.call('HMGET', key, 'tokens', 'updated_at')
local tokens = tonumber(bucket[1])
local updated_at = tonumber(bucket[2])

if tokens == nil or updated_at == nil then
    tokens = capacity
    updated_at = now
end

local elapsed = math.max(0, now - updated_at)
tokens = math.min(capacity, tokens + elapsed * rate)

local allowed = 0
local retry_after = 0
if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
else
    retry_after = (requested - tokens) / rate
end

redis.call('HSET', key, 'tokens', tokens, 'updated_at', now)
redis.call('EXPIRE', key, math.ceil(capacity / rate) + 1)

return {allowed, math.floor(tokens), math.ceil(retry_after)}
`)

// RateLimiter throttles message sends per user.
type RateLimiter struct {
	client   *redisv9.Client
	prefix   string
	rate     float64
	capacity int
	now      func() time.Time
}

func NewRateLimiter(client *redisv9.Client, prefix string, perSecond, burst int) *RateLimiter {
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst < perSecond {
		burst = perSecond
	}
	return &RateLimiter{
		client:   client,
		prefix:   prefix,
		rate:     float64(perSecond),
		capacity: burst,
		now:      time.Now,
	}
}

// Allow consumes one token for the user. It reports how long to wait when the
// bucket is empty.
func (l *RateLimiter) Allow(ctx context.Context, userID uint) (bool, time.Duration, error) {
	key := l.prefix + ":" + strconv.FormatUint(uint64(userID), 10)
	now := float64(l.now().UnixNano()) / 1e9

	result, err := tokenBucketScript.Run(ctx, l.client, []string{key}, l.capacity, l.rate, now, 1).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis rate limit failed: %w", err)
	}
	if len(result) < 3 {
		return false, 0, fmt.Errorf("redis rate limit returned %d values", len(result))
	}
	return result[0] == 1, time.Duration(result[2]) * time.Second, nil
}
