package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Ventana deslizante sobre un sorted set: cada hit es un miembro con su
// timestamp en ms. Los hits denegados no se registran, igual que en memoria.
// ARGV: now_ms, window_ms, max, member.
const redisSlidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
if redis.call("ZCARD", key) >= max then
  return 0
end
redis.call("ZADD", key, now, ARGV[4])
redis.call("PEXPIRE", key, window)
return 1
`

const redisOpTimeout = 500 * time.Millisecond

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// redisRateLimiter comparte la ventana deslizante entre réplicas.
type redisRateLimiter struct {
	client    redisEvaler
	window    time.Duration
	max       int
	prefix    string
	now       func() time.Time
	newMember func() string
}

// NewRedisRateLimiter devuelve nil si client es nil.
func NewRedisRateLimiter(client *redis.Client, window time.Duration, max int) RateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisRateLimiter{
		client:    client,
		window:    window,
		max:       max,
		prefix:    "auth:rl:",
		now:       func() time.Time { return time.Now().UTC() },
		newMember: uuid.NewString,
	}
}

// Allow falla abierto si Redis no responde.
func (l *redisRateLimiter) Allow(key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	nowMs := l.now().UnixMilli()
	allowed, err := l.client.Eval(ctx, redisSlidingWindowScript, []string{l.prefix + key},
		nowMs,
		l.window.Milliseconds(),
		l.max,
		l.newMember(),
	).Int()
	if err != nil {
		return true
	}
	return allowed == 1
}
