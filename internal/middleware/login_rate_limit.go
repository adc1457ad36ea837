package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const loginRatePrefix = "registro:rl:login:"

// LoginRateLimit caps login attempts per username (or client IP when the
// body names none) per minute. Without Redis, or when Redis fails, it lets
// requests through.
func LoginRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		var req struct {
			User string `json:"user"`
		}
		_ = json.Unmarshal(c.Body(), &req)
		subject := strings.ToLower(strings.TrimSpace(req.User))
		if subject == "" {
			subject = c.IP()
		}
		key := loginRatePrefix + subject
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
		}
		return c.Next()
	}
}
