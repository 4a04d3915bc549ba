package middleware

import (
	"github.com/gofiber/fiber/v2"

	"cooksa_backend/internal/model"
	"cooksa_backend/pkg/entitlements"
	"cooksa_backend/pkg/subscription"
)

const entitlementsKey = "entitlements"

// LoadEntitlements resolves the caller's tier and limits once per
// request. Guests get the guest limits without a store lookup. Must run
// after AuthMiddleware.
func LoadEntitlements(resolver *entitlements.Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := CurrentUser(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		if claims.Type == string(model.UserTypeGuest) {
			c.Locals(entitlementsKey, entitlements.Guest())
		} else {
			c.Locals(entitlementsKey, resolver.ResolveTier(c.UserContext(), claims.UserID))
		}
		return c.Next()
	}
}

// CurrentEntitlements returns the resolution set by LoadEntitlements, or
// the free tier when the middleware did not run.
func CurrentEntitlements(c *fiber.Ctx) entitlements.Resolution {
	if res, ok := c.Locals(entitlementsKey).(entitlements.Resolution); ok {
		return res
	}
	return entitlements.Resolution{Tier: subscription.Free, Entitlements: entitlements.FreeEntitlements()}
}
