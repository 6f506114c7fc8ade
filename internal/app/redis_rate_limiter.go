package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter counts requests per scope and subject within a window. count above
// limit means the request must be refused; retryAfterSeconds is then at least 1.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// slidingWindowScript keeps one sorted-set member per accepted request, scored by
// Redis server time in milliseconds. Refused requests are not recorded, so a
// client hammering the endpoint does not push its own window forward.
//
// KEYS[1] window key; ARGV[1] window ms; ARGV[2] limit; ARGV[3] member id.
// Returns {count including this request, ms until the oldest entry expires}.
var slidingWindowScript = redis.NewScript(`
redis.replicate_commands()
local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)
local window = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])
if count < limit then
  redis.call("ZADD", KEYS[1], now, ARGV[3])
  redis.call("PEXPIRE", KEYS[1], window)
  return {count + 1, 0}
end

local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local wait = window
if oldest[2] then
  wait = tonumber(oldest[2]) + window - now
end
return {count + 1, wait}
`)

// RedisRateLimiter is a sliding-window limiter shared by every replica.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "escrow:rate_limit"
	}
	return &RedisRateLimiter{client: client, prefix: prefix}
}

func (r *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	scope, subject = strings.TrimSpace(scope), strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}

	windowMs := window.Milliseconds()
	raw, err := slidingWindowScript.Run(ctx, r.client, []string{r.key(scope, subject)}, windowMs, limit, uuid.NewString()).Result()
	if err != nil {
		return 0, 0, err
	}
	return parseWindowResult(raw, limit)
}

// parseWindowResult converts the script reply into (count, retryAfterSeconds).
func parseWindowResult(raw interface{}, limit int) (int, int, error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit reply %T", raw)
	}
	count, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limit count %T", values[0])
	}
	waitMs, ok := values[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limit wait %T", values[1])
	}
	if int(count) <= limit {
		return int(count), 0, nil
	}
	retryAfter := int(math.Ceil(float64(waitMs) / 1000))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return int(count), retryAfter, nil
}

// key separates subjects per scope, e.g. escrow:rate_limit:deposit:203.0.113.7 or
// escrow:rate_limit:signer:alice.near.
func (r *RedisRateLimiter) key(scope, subject string) string {
	return r.prefix + ":" + scope + ":" + subject
}
