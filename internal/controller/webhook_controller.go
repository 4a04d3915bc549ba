package controller

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"cooksa_backend/pkg/billing"
)

type WebhookController struct {
	events *billing.EventHandler
}

func NewWebhookController(events *billing.EventHandler) *WebhookController {
	return &WebhookController{events: events}
}

// Status lets operators check that the route is reachable.
func (w *WebhookController) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message":   "Stripe webhook endpoint is active",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"status":    "ready",
	})
}

// Handle verifies and applies a processor event. Only errors the processor
// can fix by redelivering are answered with 5xx.
func (w *WebhookController) Handle(c *fiber.Ctx) error {
	event, err := w.events.ConstructEvent(c.Body(), c.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, billing.ErrMissingSignature):
		log.Warn().Msg("Webhook request without signature")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No signature provided",
		})
	case errors.Is(err, billing.ErrSecretNotSet):
		log.Error().Msg("STRIPE_WEBHOOK_SECRET is not configured")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Webhook secret not configured",
		})
	case err != nil:
		log.Warn().Err(err).Msg("Webhook signature verification failed")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid signature",
		})
	}

	logger := log.With().Str("event_id", event.ID).Str("type", string(event.Type)).Logger()
	logger.Info().Msg("Processing webhook event")

	if err := w.events.Handle(c.UserContext(), event); err != nil {
		logger.Error().Err(err).Msg("Webhook processing failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Webhook processing failed",
		})
	}

	return c.JSON(fiber.Map{"received": true})
}
