package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"cooksa_backend/pkg/utils/jwt"
)

const userKey = "user"

// AuthMiddleware validates the bearer token and stores its claims in
// Locals under "user".
func AuthMiddleware(signer *jwt.Signer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == "" || token == header {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		claims, err := signer.ValidateToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(userKey, claims)
		return c.Next()
	}
}

// OptionalAuth stores claims when a valid token is present and lets the
// request through either way.
func OptionalAuth(signer *jwt.Signer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if token := strings.TrimPrefix(header, "Bearer "); token != header && token != "" {
			if claims, err := signer.ValidateToken(token); err == nil {
				c.Locals(userKey, claims)
			}
		}
		return c.Next()
	}
}

// CurrentUser returns the claims set by AuthMiddleware or OptionalAuth.
func CurrentUser(c *fiber.Ctx) (*jwt.Claims, bool) {
	claims, ok := c.Locals(userKey).(*jwt.Claims)
	return claims, ok && claims != nil
}
