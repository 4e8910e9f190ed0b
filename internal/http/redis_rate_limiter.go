package httpx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix    = "dockerdeploy:ratelimit:"
	redisCallTimeout  = 250 * time.Millisecond
	redisPingDeadline = 2 * time.Second
)

// redisRateLimiter shares fixed windows between daemons behind one Redis.
// Any Redis failure lets the request through.
type redisRateLimiter struct {
	client  *redis.Client
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewRedisRateLimiter connects to Redis and returns a limiter backed by it.
func NewRedisRateLimiter(addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), redisPingDeadline)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return newRedisRateLimiter(client, logger), nil
}

func newRedisRateLimiter(client *redis.Client, logger *slog.Logger) *redisRateLimiter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &redisRateLimiter{
		client:  client,
		logger:  logger.With("component", "rate_limiter", "backend", "redis"),
		timeout: redisCallTimeout,
		now:     time.Now,
	}
}

// Allow counts the request and reads the window's remaining lifetime in one
// transaction. A counter found without an expiry gets one, so a window can
// never outlive its length.
func (rl *redisRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	redisKey := redisKeyPrefix + key
	var incr *redis.IntCmd
	var pttl *redis.DurationCmd
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pttl = pipe.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		rl.logger.Warn("rate limit check failed, allowing request", "key", key, "error", err)
		return rateDecision{allowed: true}
	}

	count := int(incr.Val())
	ttl := pttl.Val()
	if ttl <= 0 {
		if err := rl.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			rl.logger.Warn("rate limit expiry failed", "key", key, "error", err)
		}
		ttl = window
	}
	return rateDecision{
		allowed:   count <= limit,
		count:     count,
		windowEnd: rl.now().Add(ttl),
	}
}

func (rl *redisRateLimiter) Close() {
	if rl.client != nil {
		_ = rl.client.Close()
	}
}
