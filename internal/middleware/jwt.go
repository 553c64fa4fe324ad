package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/custody/internal/address"
	"github.com/congo-pay/custody/internal/auth"
)

const callerLocal = "caller"

// JWTAuth validates bearer access tokens and stores the caller address in the request locals.
func JWTAuth(tokens *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		caller, err := tokens.Parse(strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(callerLocal, caller)
		return c.Next()
	}
}

// Caller returns the authenticated caller set by JWTAuth.
func Caller(c *fiber.Ctx) (address.Address, bool) {
	caller, ok := c.Locals(callerLocal).(address.Address)
	return caller, ok
}

// WithCaller sets the caller directly. Handlers under test use it in place of JWTAuth.
func WithCaller(caller address.Address) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(callerLocal, caller)
		return c.Next()
	}
}
