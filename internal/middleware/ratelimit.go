package middleware

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/auralis/api/internal/observe"
	"github.com/auralis/api/pkg/response"
)

const redisTimeout = 500 * time.Millisecond

// RateLimiter guards the generation and polling endpoints. With a Redis
// client the counters are shared across replicas; without one they live in
// process memory.
type RateLimiter struct {
	redis   *redis.Client
	metrics *observe.Metrics
	log     logrus.FieldLogger
}

func NewRateLimiter(redisClient *redis.Client, metrics *observe.Metrics, log logrus.FieldLogger) *RateLimiter {
	return &RateLimiter{redis: redisClient, metrics: metrics, log: log}
}

// clientKey identifies the caller: the authenticated user when there is one,
// the remote address otherwise.
func clientKey(c *fiber.Ctx) string {
	if userID := GetUserID(c); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.IP()
}

// Limit allows maxRequests per window per client.
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	if maxRequests <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	if rl.redis == nil {
		return limiter.New(limiter.Config{
			Max:          maxRequests,
			Expiration:   window,
			KeyGenerator: func(c *fiber.Ctx) string { return keyPrefix + ":" + clientKey(c) },
			LimitReached: func(c *fiber.Ctx) error {
				return response.RateLimited(c, "Rate limit exceeded", 0)
			},
		})
	}

	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, clientKey(c))
		ctx, cancel := context.WithTimeout(c.UserContext(), redisTimeout)
		defer cancel()

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// Redis being down must not take generation down with it.
			rl.log.WithError(err).Warn("rate limit check failed, allowing request")
			return c.Next()
		}

		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			return response.RateLimited(c, "Rate limit exceeded", retryAfterSeconds(ttl))
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(maxRequests-int(count)))

		return c.Next()
	}
}

// GenerateLimit limits job submissions per hour.
func (rl *RateLimiter) GenerateLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("generate", maxPerHour, time.Hour)
}

// WatchLimit limits WebSocket status subscriptions opened per minute.
func (rl *RateLimiter) WatchLimit(maxPerMinute int) fiber.Handler {
	return rl.Limit("watch", maxPerMinute, time.Minute)
}

// PollThrottle rejects a status poll for the same job from the same client
// that arrives sooner than minInterval after the previous one.
func (rl *RateLimiter) PollThrottle(minInterval time.Duration) fiber.Handler {
	if minInterval <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	reject := func(c *fiber.Ctx, wait time.Duration) error {
		rl.metrics.RecordPollThrottled(c.UserContext())
		return response.RateLimited(c, "Polling too fast; slow down.", retryAfterSeconds(wait))
	}

	if rl.redis == nil {
		return limiter.New(limiter.Config{
			Max:          1,
			Expiration:   minInterval,
			KeyGenerator: func(c *fiber.Ctx) string { return "poll:" + clientKey(c) + ":" + c.Params("jobId") },
			LimitReached: func(c *fiber.Ctx) error { return reject(c, minInterval) },
		})
	}

	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("poll:%s:%s", clientKey(c), c.Params("jobId"))
		ctx, cancel := context.WithTimeout(c.UserContext(), redisTimeout)
		defer cancel()

		ok, err := rl.redis.SetNX(ctx, key, 1, minInterval).Result()
		if err != nil {
			rl.log.WithError(err).Warn("poll throttle check failed, allowing request")
			return c.Next()
		}
		if !ok {
			wait, _ := rl.redis.PTTL(ctx, key).Result()
			return reject(c, wait)
		}
		return c.Next()
	}
}

func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}
