package httpx

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

// redisRateLimiter shares the sliding-window quota across API replicas using
// the same two-bucket weighting as the in-process limiter: each window-sized
// bucket gets its own counter, and the previous bucket decays in proportion
// to how far the current one has advanced.
type redisRateLimiter struct {
	client  *redis.Client
	logger  *slog.Logger
	prefix  string
	timeout time.Duration
}

// NewRedisRateLimiter constructs a Redis backed rate limiter so the quota
// holds across API replicas. Redis errors fail open.
func NewRedisRateLimiter(addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	opts := &redis.Options{Addr: addr, Password: password, DB: db}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &redisRateLimiter{
		client:  client,
		logger:  logger,
		prefix:  "taskdeck:ratelimit:",
		timeout: 250 * time.Millisecond,
	}, nil
}

func (rl *redisRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	now := time.Now()
	bucket := now.UnixNano() / int64(window)
	currKey := rl.prefix + key + ":" + strconv.FormatInt(bucket, 10)
	prevKey := rl.prefix + key + ":" + strconv.FormatInt(bucket-1, 10)

	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, currKey)
	pipe.Expire(ctx, currKey, 2*window)
	prevGet := pipe.Get(ctx, prevKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		rl.logRedisError("pipeline", err)
		return rateDecision{allowed: true}
	}

	curr := incr.Val()
	var prev int64
	if raw, err := prevGet.Result(); err == nil {
		if parsed, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			prev = parsed
		}
	}

	elapsed := float64(now.UnixNano()%int64(window)) / float64(window)
	estimated := float64(prev)*(1-elapsed) + float64(curr)
	windowEnd := time.Unix(0, (bucket+1)*int64(window))

	return rateDecision{
		allowed:   estimated <= float64(limit),
		count:     int(math.Ceil(estimated)),
		windowEnd: windowEnd,
	}
}

func (rl *redisRateLimiter) Close() {
	if rl.client != nil {
		_ = rl.client.Close()
	}
}

func (rl *redisRateLimiter) logRedisError(op string, err error) {
	if rl.logger == nil {
		return
	}
	rl.logger.Error("redis rate limiter error", "op", op, "error", err)
}
