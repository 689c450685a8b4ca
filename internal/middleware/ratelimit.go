package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimitMiddleware enforces a per-client request ceiling backed by Redis
// counters, keyed by client IP with second and day windows.
func RateLimitMiddleware(rdb *redis.Client, perSecond, perDay int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := context.Background()
		now := time.Now()
		client := c.IP()

		keySecond := fmt.Sprintf("rl:%s:second:%d", client, now.Unix())
		keyDay := fmt.Sprintf("rl:%s:day:%s", client, now.Format("2006-01-02"))

		if perSecond > 0 {
			count, err := rdb.Incr(ctx, keySecond).Result()
			if err == nil {
				rdb.Expire(ctx, keySecond, 2*time.Second)

				if count > int64(perSecond) {
					c.Set("X-RateLimit-Limit-Second", strconv.Itoa(perSecond))
					c.Set("X-RateLimit-Remaining-Second", "0")
					c.Set("Retry-After", "1")

					return c.Status(429).JSON(fiber.Map{
						"error":       "rate_limit_exceeded",
						"message":     "Too many requests per second",
						"retry_after": 1,
					})
				}
			}
		}

		if perDay > 0 {
			count, err := rdb.Incr(ctx, keyDay).Result()
			if err == nil {
				// 25 hours to handle timezone differences
				rdb.Expire(ctx, keyDay, 25*time.Hour)

				if count > int64(perDay) {
					tomorrow := now.AddDate(0, 0, 1)
					midnight := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(),
						0, 0, 0, 0, tomorrow.Location())
					retryAfter := int64(midnight.Sub(now).Seconds())

					c.Set("X-RateLimit-Limit-Day", strconv.Itoa(perDay))
					c.Set("X-RateLimit-Remaining-Day", "0")
					c.Set("Retry-After", strconv.FormatInt(retryAfter, 10))

					return c.Status(429).JSON(fiber.Map{
						"error":       "daily_quota_exceeded",
						"message":     "Daily quota exceeded",
						"retry_after": retryAfter,
						"reset_at":    midnight.Format(time.RFC3339),
					})
				}
				c.Set("X-RateLimit-Remaining-Day", strconv.FormatInt(int64(perDay)-count, 10))
			}
		}

		return c.Next()
	}
}
