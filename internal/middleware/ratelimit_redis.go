package middleware

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/inzo/orchestrator-go/internal/redis"
)

// slidingWindowScript keeps one sorted-set member per admitted event, scored
// in milliseconds. It returns {allowed, remaining, resetAtMillis}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local nowMs = tonumber(ARGV[1])
local windowMs = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', nowMs - windowMs)

local count = redis.call('ZCARD', key)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local resetAt = nowMs + windowMs
if #oldest >= 2 then
    resetAt = tonumber(oldest[2]) + windowMs
end

if count >= limit then
    return {0, 0, resetAt}
end

redis.call('ZADD', key, nowMs, member)
redis.call('PEXPIRE', key, windowMs)

return {1, limit - count - 1, resetAt}
`)

// RedisRateLimiter shares the window across instances. A Redis failure
// lets the event through.
type RedisRateLimiter struct {
	client redis.Scripter
	window time.Duration
}

func NewRedisRateLimiter(client redis.Scripter) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, window: time.Minute}
}

var _ UserLimiter = (*RedisRateLimiter)(nil)

func (rl *RedisRateLimiter) Check(ctx context.Context, userID string, limit int) (bool, int, int64) {
	now := time.Now()
	fallbackReset := now.Add(rl.window).Unix()

	result, err := slidingWindowScript.Run(ctx, rl.client,
		[]string{redisclient.RateLimitKey(userID)},
		now.UnixMilli(), rl.window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("redis rate limit check failed, allowing event")
		return true, limit - 1, fallbackReset
	}
	if len(result) != 3 {
		log.Warn().Str("userId", userID).Int("len", len(result)).Msg("unexpected redis rate limit result")
		return true, limit - 1, fallbackReset
	}

	return result[0] == 1, int(result[1]), result[2] / 1000
}
