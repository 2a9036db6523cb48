package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the window, admits the event only when under max, and
// reports when the oldest admitted event leaves the window. Rejected events
// are not recorded, so a client hammering the endpoint is not locked out
// beyond the window.
var slidingWindow = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])
local allowed = 0
if count < max then
  redis.call("ZADD", KEYS[1], now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call("PEXPIRE", KEYS[1], window)
local reset = now + window
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, max - count, reset}
`)

// RedisLimiter is a sliding-window limiter shared by every API instance.
type RedisLimiter struct {
	Client  *redis.Client
	Prefix  string
	nowFunc func() time.Time
}

// NewRedisLimiter returns a limiter storing windows under prefix.
func NewRedisLimiter(client *redis.Client, prefix string) RedisLimiter {
	return RedisLimiter{Client: client, Prefix: prefix}
}

// Allow implements Allower.
func (l RedisLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	now := time.Now()
	if l.nowFunc != nil {
		now = l.nowFunc()
	}
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, now.Add(window), nil
	}
	nowMs := now.UnixMilli()
	res, err := slidingWindow.Run(ctx, l.Client, []string{l.Prefix + key},
		nowMs, window.Milliseconds(), max, fmt.Sprintf("%d:%s", nowMs, uuid.NewString())).Int64Slice()
	if err != nil {
		return false, 0, now.Add(window), err
	}
	if len(res) != 3 {
		return false, 0, now.Add(window), fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	return res[0] == 1, int(res[1]), time.UnixMilli(res[2]), nil
}
