package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/custody/internal/auth"
	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/middleware"
)

const challengesPerMinute = 5

// RegisterAuthRoutes wires the sign-in endpoints. Challenges are rate limited per address.
func RegisterAuthRoutes(r fiber.Router, ids *identity.Handler, h *auth.Handler, cache *redis.Client) {
	group := r.Group("/auth")
	limiter := middleware.RateLimit(cache, "challenge", challengesPerMinute, time.Minute, middleware.BodyField("address"))
	group.Post("/challenge", limiter, ids.Challenge)
	group.Post("/login", h.Login)
}
