package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
	"gorm.io/datatypes"

	"cooksa_backend/internal/model"
	"cooksa_backend/internal/store"
	"cooksa_backend/pkg/credits"
	"cooksa_backend/pkg/subscription"
)

// TopUpMarker tags one-time checkout sessions that buy credits.
const TopUpMarker = "credit_topup"

// Notifier delivers user-facing billing notices after a commit.
type Notifier interface {
	SendPaymentFailed(ctx context.Context, to string, tier subscription.Tier, status subscription.Status) error
	SendCreditsAdded(ctx context.Context, to string, added, balance int64) error
}

// EventHandler verifies processor events and reconciles local
// subscription and credit state from them.
type EventHandler struct {
	secret    string
	store     *store.Store
	processor Processor
	catalog   *subscription.Catalog
	notifier  Notifier
}

func NewEventHandler(secret string, s *store.Store, processor Processor, catalog *subscription.Catalog, notifier Notifier) *EventHandler {
	return &EventHandler{
		secret:    secret,
		store:     s,
		processor: processor,
		catalog:   catalog,
		notifier:  notifier,
	}
}

// ConstructEvent checks the signature header against the configured
// secret before the body is parsed.
func (h *EventHandler) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	if strings.TrimSpace(sigHeader) == "" {
		return stripe.Event{}, ErrMissingSignature
	}
	if strings.TrimSpace(h.secret) == "" {
		return stripe.Event{}, ErrSecretNotSet
	}
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

type notice func(ctx context.Context)

// Handle applies an event at most once. The event id is claimed in the
// same transaction as the state change, so a failed attempt leaves the id
// free for the processor's retry.
func (h *EventHandler) Handle(ctx context.Context, event stripe.Event) error {
	var after notice
	err := h.store.Transaction(ctx, func(tx *store.Store) error {
		after = nil
		claimed, err := tx.ClaimEvent(ctx, event.ID, string(event.Type))
		if err != nil {
			return err
		}
		if !claimed {
			log.Info().Str("event_id", event.ID).Str("type", string(event.Type)).Msg("Duplicate webhook event ignored")
			return nil
		}
		after, err = h.dispatch(ctx, tx, event)
		return err
	})
	if err != nil {
		return err
	}
	if after != nil {
		after(ctx)
	}
	return nil
}

func (h *EventHandler) dispatch(ctx context.Context, tx *store.Store, event stripe.Event) (notice, error) {
	if event.Data == nil {
		return nil, fmt.Errorf("event %s has no data", event.ID)
	}
	at := time.Unix(event.Created, 0).UTC()

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("decode checkout.session: %w", err)
		}
		return h.handleCheckout(ctx, tx, &session, at)

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		_, _, err := h.applySubscription(ctx, tx, &sub, at)
		return nil, err

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		return nil, h.cancelSubscription(ctx, tx, &sub, at)

	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		return h.handlePaymentFailed(ctx, tx, &invoice, at)

	default:
		log.Info().Str("event_id", event.ID).Str("type", string(event.Type)).Msg("Unhandled webhook event type")
		return nil, nil
	}
}

func (h *EventHandler) handleCheckout(ctx context.Context, tx *store.Store, session *stripe.CheckoutSession, at time.Time) (notice, error) {
	logger := log.With().Str("session_id", session.ID).Str("mode", string(session.Mode)).Logger()

	switch {
	case session.Mode == stripe.CheckoutSessionModeSubscription && session.Subscription != nil && session.Subscription.ID != "":
		if err := h.linkCustomer(ctx, tx, session); err != nil {
			return nil, err
		}
		sub, err := h.processor.GetSubscription(ctx, session.Subscription.ID)
		if err != nil {
			return nil, err
		}
		_, _, err = h.applySubscription(ctx, tx, sub, at)
		return nil, err

	case session.Mode == stripe.CheckoutSessionModePayment && session.Metadata["type"] == TopUpMarker:
		return h.applyTopUp(ctx, tx, session)
	}

	logger.Info().Msg("Checkout session needs no action")
	return nil, nil
}

// linkCustomer attaches the checkout's customer to the user named in the
// session metadata when the link is missing, so the follow-up lookup by
// customer id succeeds.
func (h *EventHandler) linkCustomer(ctx context.Context, tx *store.Store, session *stripe.CheckoutSession) error {
	customerID := customerIDOf(session.Customer)
	userID, err := parseUserID(session.Metadata["userId"])
	if customerID == "" || err != nil {
		return nil
	}
	if _, err := tx.UserByStripeCustomerID(ctx, customerID); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	user, err := tx.UserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		log.Error().Uint("user_id", userID).Str("customer_id", customerID).Msg("Checkout references unknown user")
		return nil
	}
	if err != nil {
		return err
	}
	if user.CustomerID() != "" {
		return nil
	}
	log.Info().Uint("user_id", userID).Str("customer_id", customerID).Msg("Linking customer from checkout metadata")
	return tx.SetUserStripeCustomerID(ctx, userID, customerID)
}

// applySubscription runs the update path. Unresolvable input (no price,
// unlinked customer, unknown price, stale event) is logged and leaves
// every record untouched; the event is still acknowledged. A subscription
// in a terminal status is reset like a deletion.
func (h *EventHandler) applySubscription(ctx context.Context, tx *store.Store, sub *stripe.Subscription, at time.Time) (*model.User, *model.Subscription, error) {
	if isTerminal(sub.Status) {
		return nil, nil, h.cancelSubscription(ctx, tx, sub, at)
	}

	customerID := customerIDOf(sub.Customer)
	priceID := firstPriceID(sub)
	logger := log.With().
		Str("subscription_id", sub.ID).
		Str("customer_id", customerID).
		Str("price_id", priceID).
		Str("status", string(sub.Status)).
		Logger()

	if priceID == "" {
		logger.Error().Msg("No price id found on subscription")
		return nil, nil, nil
	}

	user, err := tx.UserByStripeCustomerID(ctx, customerID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Error().Msg("No user linked to customer, event acknowledged without changes")
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	logger = logger.With().Uint("user_id", user.ID).Logger()

	details, ok := h.catalog.PriceDetails(priceID)
	if !ok {
		logger.Error().Msg("Unknown price id, check the STRIPE_PRICE_* configuration")
		return nil, nil, nil
	}

	current, err := tx.LockSubscription(ctx, user.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}
	if isStale(current, at) {
		logger.Warn().Time("event_at", at).Msg("Stale subscription event skipped")
		return nil, nil, nil
	}

	h.syncAccountType(ctx, tx, user, details.Tier, logger)

	productMeta, err := h.processor.GetProductMetadata(ctx, priceID)
	if err != nil {
		logger.Error().Err(err).Msg("Fetching product metadata failed, using tier defaults")
		productMeta = map[string]string{}
	}

	periodStart := unixTime(sub.CurrentPeriodStart)
	periodEnd := unixTime(sub.CurrentPeriodEnd)

	credit, err := credits.NewLedger(tx).ApplySubscriptionCredit(ctx, user.ID, details.Tier, subscription.StringMetadata(productMeta), periodEnd)
	if err != nil {
		return nil, nil, err
	}

	interval := details.Interval
	rec := &model.Subscription{
		UserID:               user.ID,
		Tier:                 details.Tier,
		BillingInterval:      &interval,
		Status:               subscription.Status(sub.Status),
		StripeCustomerID:     optional(customerID),
		StripeSubscriptionID: optional(sub.ID),
		StripePriceID:        optional(priceID),
		CurrentPeriodStart:   periodStart,
		CurrentPeriodEnd:     periodEnd,
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		AvailableCredits:     credit.AvailableCredits,
		TotalCredits:         credit.TotalCredits,
		CreditsResetAt:       credit.CreditsResetAt,
		Metadata:             credit.Metadata,
		CreditSchemaVersion:  subscription.TierSchemaVersion,
		LastEventAt:          &at,
	}
	if err := tx.UpsertSubscription(ctx, rec); err != nil {
		return nil, nil, err
	}

	logger.Info().Str("tier", string(details.Tier)).Str("interval", string(details.Interval)).Msg("Subscription upserted")
	return user, rec, nil
}

// syncAccountType runs in a savepoint; a failure is logged and does not
// abort the surrounding event.
func (h *EventHandler) syncAccountType(ctx context.Context, tx *store.Store, user *model.User, tier subscription.Tier, logger zerolog.Logger) {
	accountType := model.AccountIndividual
	if tier.IsBusiness() {
		accountType = model.AccountBusiness
	}
	if user.AccountType == accountType {
		return
	}
	err := tx.Transaction(ctx, func(inner *store.Store) error {
		return inner.SetUserAccountType(ctx, user.ID, accountType)
	})
	if err != nil {
		logger.Error().Err(err).Msg("Updating account type failed")
		return
	}
	user.AccountType = accountType
}

func (h *EventHandler) cancelSubscription(ctx context.Context, tx *store.Store, sub *stripe.Subscription, at time.Time) error {
	customerID := customerIDOf(sub.Customer)
	logger := log.With().Str("subscription_id", sub.ID).Str("customer_id", customerID).Logger()

	user, err := tx.UserByStripeCustomerID(ctx, customerID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Error().Msg("No user linked to customer, cancellation acknowledged without changes")
		return nil
	}
	if err != nil {
		return err
	}

	current, err := tx.LockSubscription(ctx, user.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if isStale(current, at) {
		logger.Warn().Time("event_at", at).Msg("Stale cancellation skipped")
		return nil
	}

	rec := &model.Subscription{
		UserID:              user.ID,
		Tier:                subscription.Free,
		Status:              subscription.StatusCanceled,
		CancelAtPeriodEnd:   false,
		Metadata:            datatypes.JSONMap{},
		CreditSchemaVersion: subscription.TierSchemaVersion,
		LastEventAt:         &at,
	}
	if err := tx.UpsertSubscription(ctx, rec); err != nil {
		return err
	}
	logger.Info().Uint("user_id", user.ID).Msg("Subscription reset to free tier")
	return nil
}

func (h *EventHandler) handlePaymentFailed(ctx context.Context, tx *store.Store, invoice *stripe.Invoice, at time.Time) (notice, error) {
	if invoice.Subscription == nil || invoice.Subscription.ID == "" {
		log.Info().Str("invoice_id", invoice.ID).Msg("Failed invoice has no subscription")
		return nil, nil
	}
	sub, err := h.processor.GetSubscription(ctx, invoice.Subscription.ID)
	if err != nil {
		return nil, err
	}
	user, rec, err := h.applySubscription(ctx, tx, sub, at)
	if err != nil || user == nil || h.notifier == nil {
		return nil, err
	}
	return func(ctx context.Context) {
		if err := h.notifier.SendPaymentFailed(ctx, user.Email, rec.Tier, rec.Status); err != nil {
			log.Error().Err(err).Uint("user_id", user.ID).Msg("Could not send payment failed email")
		}
	}, nil
}

// applyTopUp credits the amount carried in the session metadata; the
// amount is not recomputed from the payment.
func (h *EventHandler) applyTopUp(ctx context.Context, tx *store.Store, session *stripe.CheckoutSession) (notice, error) {
	logger := log.With().Str("session_id", session.ID).Logger()

	userID, err := parseUserID(session.Metadata["userId"])
	if err != nil {
		logger.Error().Str("userId", session.Metadata["userId"]).Msg("Top-up missing user metadata")
		return nil, nil
	}
	amount, err := strconv.ParseInt(strings.TrimSpace(session.Metadata["credits"]), 10, 64)
	if err != nil || amount <= 0 {
		logger.Error().Str("credits", session.Metadata["credits"]).Msg("Top-up missing credit metadata")
		return nil, nil
	}
	logger = logger.With().Uint("user_id", userID).Int64("credits", amount).Logger()

	balance, err := credits.NewLedger(tx).ApplyTopUp(ctx, userID, amount)
	if errors.Is(err, credits.ErrNoSubscription) {
		logger.Error().Msg("No subscription found for top-up")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	logger.Info().Int64("balance", balance).Msg("Credit top-up applied")

	if h.notifier == nil {
		return nil, nil
	}
	user, err := tx.UserByID(ctx, userID)
	if err != nil {
		logger.Warn().Err(err).Msg("Top-up user lookup failed, skipping receipt")
		return nil, nil
	}
	return func(ctx context.Context) {
		if err := h.notifier.SendCreditsAdded(ctx, user.Email, amount, balance); err != nil {
			log.Error().Err(err).Uint("user_id", user.ID).Msg("Could not send credits receipt")
		}
	}, nil
}

// isStale reports whether the stored state is newer than at. A reset to
// free wins a tie, so an update sent in the same second as the deletion
// cannot bring the subscription back.
func isStale(current *model.Subscription, at time.Time) bool {
	if current == nil || current.LastEventAt == nil {
		return false
	}
	last := current.LastEventAt.Unix()
	if at.Unix() < last {
		return true
	}
	return at.Unix() == last && isReset(current)
}

func isReset(sub *model.Subscription) bool {
	return sub.Tier == subscription.Free && sub.Status == subscription.StatusCanceled
}

func isTerminal(status stripe.SubscriptionStatus) bool {
	return status == stripe.SubscriptionStatusCanceled || status == stripe.SubscriptionStatusIncompleteExpired
}

func firstPriceID(sub *stripe.Subscription) string {
	if sub.Items == nil {
		return ""
	}
	for _, item := range sub.Items.Data {
		if item != nil && item.Price != nil && strings.TrimSpace(item.Price.ID) != "" {
			return item.Price.ID
		}
	}
	return ""
}

func customerIDOf(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func parseUserID(raw string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return uint(id), nil
}

func unixTime(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
