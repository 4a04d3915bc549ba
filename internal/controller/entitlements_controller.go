package controller

import (
	"github.com/gofiber/fiber/v2"

	"cooksa_backend/internal/middleware"
	"cooksa_backend/pkg/entitlements"
	"cooksa_backend/pkg/subscription"
)

type EntitlementsController struct {
	resolver *entitlements.Resolver
}

func NewEntitlementsController(resolver *entitlements.Resolver) *EntitlementsController {
	return &EntitlementsController{resolver: resolver}
}

// Get returns the resolution loaded by middleware.LoadEntitlements and the
// caller's credit position.
func (e *EntitlementsController) Get(c *fiber.Ctx) error {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	res := middleware.CurrentEntitlements(c)
	check := entitlements.CreditCheck{
		Allowed:        true,
		CurrentCredits: subscription.Unlimited,
		Remaining:      subscription.Unlimited,
	}
	if res.Tier != entitlements.GuestTier {
		check = e.resolver.CheckCredits(c.UserContext(), claims.UserID, 1)
	}

	return c.JSON(fiber.Map{
		"tier":         res.Tier,
		"entitlements": res.Entitlements,
		"credits":      check,
	})
}
