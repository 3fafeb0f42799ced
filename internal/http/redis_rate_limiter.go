package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "logscribe:ratelimit:"

// windowScript bumps the counter, opens the window on the first hit and
// returns the count with the remaining window in milliseconds.
var windowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// redisRateLimiter shares fixed windows across API replicas.
type redisRateLimiter struct {
	client  *redis.Client
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewRedisRateLimiter connects to Redis and returns a limiter shared across replicas.
func NewRedisRateLimiter(addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newRedisRateLimiter(client, logger), nil
}

func newRedisRateLimiter(client *redis.Client, logger *slog.Logger) *redisRateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisRateLimiter{
		client:  client,
		logger:  logger.With("component", "rate_limiter"),
		timeout: 250 * time.Millisecond,
		now:     time.Now,
	}
}

// Allow admits every request while Redis cannot answer.
func (rl *redisRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	reply, err := windowScript.Run(ctx, rl.client, []string{redisKeyPrefix + key}, window.Milliseconds()).Result()
	if err != nil {
		rl.logger.Error("redis rate limit check failed", "key", key, "error", err)
		return rateDecision{allowed: true, windowEnd: rl.now().Add(window)}
	}
	count, remaining, err := parseWindowReply(reply, window)
	if err != nil {
		rl.logger.Error("unexpected redis rate limit reply", "key", key, "error", err)
		return rateDecision{allowed: true, windowEnd: rl.now().Add(window)}
	}
	return rateDecision{
		allowed:   count <= limit,
		count:     count,
		windowEnd: rl.now().Add(remaining),
	}
}

// parseWindowReply decodes {count, pttl}. A missing or non-positive ttl
// falls back to the full window.
func parseWindowReply(reply any, window time.Duration) (int, time.Duration, error) {
	values, ok := reply.([]any)
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("reply %v is not a pair", reply)
	}
	count, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("count %v is not an integer", values[0])
	}
	remaining := window
	if ms, ok := values[1].(int64); ok && ms > 0 {
		remaining = time.Duration(ms) * time.Millisecond
	}
	return int(count), remaining, nil
}

func (rl *redisRateLimiter) Close() {
	if rl.client != nil {
		_ = rl.client.Close()
	}
}
