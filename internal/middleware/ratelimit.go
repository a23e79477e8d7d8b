package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter is a fixed-window counter in Redis, shared by every instance.
// A nil *RateLimiter or a zero Limit lets everything through, and so does an
// unreachable Redis.
type RateLimiter struct {
	Redis  *redis.Client
	Prefix string
	Limit  int
	Window time.Duration
	Log    *zap.Logger
}

func NewRateLimiter(r *redis.Client, prefix string, limit int, window time.Duration, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{Redis: r, Prefix: prefix, Limit: limit, Window: window, Log: log}
}

// hit counts one request against key. The TTL is read back in the same round
// trip and restored when missing, so a lost EXPIRE cannot pin a counter.
func (r *RateLimiter) hit(ctx context.Context, key string) (int64, error) {
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := r.Redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		ttl = p.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if ttl.Val() < 0 {
		if err := r.Redis.Expire(ctx, key, r.Window).Err(); err != nil {
			return 0, err
		}
	}
	return incr.Val(), nil
}

func (r *RateLimiter) MiddlewareByKey(keyFunc func(c *fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if r == nil || r.Redis == nil || r.Limit <= 0 {
			return c.Next()
		}
		redisKey := fmt.Sprintf("%s:ratelimit:%s", r.Prefix, keyFunc(c))
		count, err := r.hit(c.UserContext(), redisKey)
		if err != nil {
			r.Log.Warn("rate limiter unavailable, allowing request", zap.String("key", redisKey), zap.Error(err))
			return c.Next()
		}
		if count > int64(r.Limit) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	}
}

// PerUser keys the limiter by the authenticated caller.
func (r *RateLimiter) PerUser() fiber.Handler {
	return r.MiddlewareByKey(UserID)
}
