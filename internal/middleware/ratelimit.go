package middleware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// KeyFunc extracts the rate limit subject from a request.
type KeyFunc func(c *fiber.Ctx) string

// RateLimit allows max requests per window for each subject returned by key, using a Redis
// counter. It falls back to the client IP when key yields nothing and fails open without Redis.
func RateLimit(cache *redis.Client, name string, max int, window time.Duration, key KeyFunc) fiber.Handler {
	if max <= 0 {
		max = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		subject := ""
		if key != nil {
			subject = key(c)
		}
		if subject == "" {
			subject = c.IP()
		}
		k := "rl:" + name + ":" + subject
		cnt, err := cache.Incr(c.UserContext(), k).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), k, window)
		}
		if cnt > int64(max) {
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}

// BodyField keys the limit on a top-level string field of the JSON body.
func BodyField(field string) KeyFunc {
	return func(c *fiber.Ctx) string {
		var body map[string]any
		if err := c.BodyParser(&body); err != nil {
			return ""
		}
		v, _ := body[field].(string)
		return v
	}
}
