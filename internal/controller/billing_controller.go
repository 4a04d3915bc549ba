package controller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"cooksa_backend/internal/middleware"
	"cooksa_backend/internal/model"
	"cooksa_backend/internal/store"
	"cooksa_backend/pkg/billing"
	"cooksa_backend/pkg/subscription"
)

const (
	minTopUpDollars  = 5
	maxTopUpDollars  = 10000
	creditsPerDollar = 100
)

type CheckoutInput struct {
	PriceID string `json:"priceId"`
}

type BuyCreditsInput struct {
	Amount float64 `json:"amount"`
}

type BillingController struct {
	store     *store.Store
	processor billing.Processor
	catalog   *subscription.Catalog
	appURL    string
}

func NewBillingController(s *store.Store, processor billing.Processor, catalog *subscription.Catalog, appURL string) *BillingController {
	return &BillingController{store: s, processor: processor, catalog: catalog, appURL: appURL}
}

// Checkout starts a hosted subscription checkout.
func (b *BillingController) Checkout(c *fiber.Ctx) error {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized. Please log in first.",
		})
	}

	input := new(CheckoutInput)
	if err := c.BodyParser(input); err != nil || input.PriceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Price ID is required",
		})
	}
	if _, ok := b.catalog.PriceDetails(input.PriceID); !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid price ID",
		})
	}

	ctx := c.UserContext()
	user, sub, err := b.loadAccount(ctx, claims.UserID)
	if err != nil {
		return accountError(c, err)
	}
	if sub.IsActive() && sub.Tier != subscription.Free {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "You already have an active subscription. Please cancel it first or use the Customer Portal to change plans.",
		})
	}

	customerID, err := b.ensureCustomer(ctx, user, sub)
	if err != nil {
		return processorError(c, "Failed to create checkout session", err)
	}

	url, err := b.processor.CreateCheckoutSession(ctx, billing.CheckoutRequest{
		Mode:       billing.ModeSubscription,
		CustomerID: customerID,
		PriceID:    input.PriceID,
		SuccessURL: b.appURL + "?success=true&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  b.appURL + "?canceled=true",
		Metadata:   map[string]string{"userId": userIDString(user.ID)},
	})
	if err != nil {
		return processorError(c, "Failed to create checkout session", err)
	}

	log.Info().Uint("user_id", user.ID).Str("price_id", input.PriceID).Msg("Checkout session created")
	return c.JSON(fiber.Map{"url": url})
}

// BuyCredits starts a one-time checkout for a credit pack. The amount is
// in dollars and buys creditsPerDollar credits per dollar.
func (b *BillingController) BuyCredits(c *fiber.Ctx) error {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized. Please log in first.",
		})
	}

	input := new(BuyCreditsInput)
	if err := c.BodyParser(input); err != nil || math.IsNaN(input.Amount) || input.Amount < minTopUpDollars {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Minimum purchase amount is $5",
		})
	}
	if math.IsInf(input.Amount, 0) || input.Amount > maxTopUpDollars {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Maximum purchase amount is $10000",
		})
	}

	ctx := c.UserContext()
	user, sub, err := b.loadAccount(ctx, claims.UserID)
	if err != nil {
		return accountError(c, err)
	}
	if sub == nil || !subscription.SupportsTopUp(sub.Tier) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Top-ups are only available to Pro users. Please upgrade to Pro first.",
		})
	}

	customerID, err := b.ensureCustomer(ctx, user, sub)
	if err != nil {
		return processorError(c, "Failed to create checkout session", err)
	}

	cents := int64(math.Round(input.Amount * 100))
	credits := int64(math.Round(input.Amount * creditsPerDollar))

	url, err := b.processor.CreateCheckoutSession(ctx, billing.CheckoutRequest{
		Mode:        billing.ModePayment,
		CustomerID:  customerID,
		UnitAmount:  cents,
		Currency:    "usd",
		ProductName: "Message Credits Top-Up",
		Description: fmt.Sprintf("%d message credits ($%.2f)", credits, input.Amount),
		SuccessURL:  fmt.Sprintf("%s?credits_purchased=true&amount=%d", b.appURL, credits),
		CancelURL:   b.appURL + "?credits_canceled=true",
		Metadata: map[string]string{
			"userId":  userIDString(user.ID),
			"credits": strconv.FormatInt(credits, 10),
			"type":    billing.TopUpMarker,
		},
	})
	if err != nil {
		return processorError(c, "Failed to create checkout session", err)
	}

	log.Info().Uint("user_id", user.ID).Int64("credits", credits).Msg("Top-up checkout session created")
	return c.JSON(fiber.Map{"url": url})
}

// Portal opens the processor's self-service billing portal.
func (b *BillingController) Portal(c *fiber.Ctx) error {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	ctx := c.UserContext()
	user, sub, err := b.loadAccount(ctx, claims.UserID)
	if err != nil {
		return accountError(c, err)
	}

	customerID := user.CustomerID()
	if customerID == "" {
		customerID = sub.CustomerID()
	}
	if customerID == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No Stripe customer found",
		})
	}

	url, err := b.processor.CreatePortalSession(ctx, customerID, b.appURL)
	if err != nil {
		log.Error().Err(err).Uint("user_id", user.ID).Msg("Portal session failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create portal session",
		})
	}
	return c.JSON(fiber.Map{"url": url})
}

// loadAccount returns the user and its subscription, which may be nil.
func (b *BillingController) loadAccount(ctx context.Context, userID uint) (*model.User, *model.Subscription, error) {
	user, err := b.store.UserByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	sub, err := b.store.SubscriptionByUserID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return user, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return user, sub, nil
}

// ensureCustomer reuses a known customer id or creates one and links it
// to the user.
func (b *BillingController) ensureCustomer(ctx context.Context, user *model.User, sub *model.Subscription) (string, error) {
	if id := user.CustomerID(); id != "" {
		return id, nil
	}
	if id := sub.CustomerID(); id != "" {
		return id, nil
	}

	id, err := b.processor.CreateCustomer(ctx, user.Email, user.ID)
	if err != nil {
		return "", err
	}
	if err := b.store.SetUserStripeCustomerID(ctx, user.ID, id); err != nil {
		return "", fmt.Errorf("link customer: %w", err)
	}
	user.StripeCustomerID = &id
	log.Info().Uint("user_id", user.ID).Str("customer_id", id).Msg("Created processor customer")
	return id, nil
}

func accountError(c *fiber.Ctx, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "User not found",
		})
	}
	log.Error().Err(err).Msg("Account lookup failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Could not load account",
	})
}

func processorError(c *fiber.Ctx, fallback string, err error) error {
	log.Error().Err(err).Msg(fallback)
	msg := billing.UpstreamMessage(err)
	if msg == "" {
		msg = fallback
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": msg,
	})
}

func userIDString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
