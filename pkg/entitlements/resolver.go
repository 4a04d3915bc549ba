// Package entitlements answers what a user may do right now. It combines
// the static tier table with overrides carried on the subscription record.
package entitlements

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"cooksa_backend/internal/model"
	"cooksa_backend/internal/store"
	"cooksa_backend/pkg/credits"
	"cooksa_backend/pkg/subscription"
)

type Entitlements = subscription.Limits

type SubscriptionReader interface {
	SubscriptionByUserID(ctx context.Context, userID uint) (*model.Subscription, error)
}

type Resolver struct {
	subs SubscriptionReader
}

func NewResolver(subs SubscriptionReader) *Resolver {
	return &Resolver{subs: subs}
}

// FreeEntitlements returns the limits used whenever nothing better can be
// resolved.
func FreeEntitlements() Entitlements {
	return subscription.GetTierLimits(subscription.Free)
}

// Resolution is the effective tier together with its limits.
type Resolution struct {
	Tier         subscription.Tier `json:"tier"`
	Entitlements Entitlements      `json:"entitlements"`
}

// GuestTier labels resolutions for guest sessions.
const GuestTier subscription.Tier = "guest"

// Resolve never fails: lookup errors are logged and degrade to the free
// tier so message flow is not blocked.
func (r *Resolver) Resolve(ctx context.Context, userID uint) Entitlements {
	return r.ResolveTier(ctx, userID).Entitlements
}

func (r *Resolver) ResolveTier(ctx context.Context, userID uint) Resolution {
	free := Resolution{Tier: subscription.Free, Entitlements: FreeEntitlements()}

	sub, err := r.subs.SubscriptionByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Uint("user_id", userID).Msg("Entitlements lookup failed, using free tier")
		}
		return free
	}
	if !sub.IsActive() {
		return free
	}
	if !sub.Tier.Valid() {
		log.Error().Uint("user_id", userID).Str("tier", string(sub.Tier)).Msg("Unknown subscription tier, using free tier")
		return free
	}
	return Resolution{Tier: sub.Tier, Entitlements: ForSubscription(sub)}
}

// Guest returns the resolution for guest sessions.
func Guest() Resolution {
	return Resolution{Tier: GuestTier, Entitlements: subscription.GetGuestLimits()}
}

// ForSubscription applies per-field metadata overrides to the tier limits.
func ForSubscription(sub *model.Subscription) Entitlements {
	ent := subscription.GetTierLimits(sub.Tier)
	meta := map[string]any(sub.Metadata)

	overrideInt(&ent.MessagesPerMonth, meta, subscription.MetaMessagesPerMonth)
	overrideInt(&ent.MessagesPerDay, meta, subscription.MetaMessagesPerDay)
	overrideInt(&ent.AIAgentCount, meta, subscription.MetaAIAgentCount)
	overrideInt(&ent.TeamSeats, meta, subscription.MetaTeamSeats)
	if v, ok := subscription.MetadataFloat(meta, subscription.MetaFinetuneStorageMB); ok {
		ent.FinetuneStorageMB = subscription.Float(v)
	}
	if v, ok := subscription.MetadataInt(meta, subscription.MetaSavedRecipes); ok {
		ent.SavedRecipes = v
	}
	if v, ok := subscription.MetadataInt(meta, subscription.MetaVectorDocs); ok {
		ent.VectorDocs = v
	}

	switch {
	case sub.AvailableCredits != nil:
		ent.MessageCredits = subscription.Int(*sub.AvailableCredits)
	default:
		overrideInt(&ent.MessageCredits, meta, subscription.MetaMessageCredits)
	}
	// early records conflated monthly messages with credits
	if ent.MessageCredits == nil && ent.MessagesPerMonth != nil && (sub.Tier == subscription.Pro || sub.Tier == subscription.Power) {
		ent.MessageCredits = subscription.Int(*ent.MessagesPerMonth)
	}
	return ent
}

func overrideInt(field **int64, meta map[string]any, key string) {
	if v, ok := subscription.MetadataInt(meta, key); ok {
		*field = subscription.Int(v)
	}
}

type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

type LimitCheck struct {
	Allowed   bool  `json:"allowed"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
}

// CheckMessageLimit compares used messages in the period against the
// resolved limit. A missing or unlimited limit always allows.
func (r *Resolver) CheckMessageLimit(ctx context.Context, userID uint, used int64, period Period) LimitCheck {
	ent := r.Resolve(ctx, userID)

	var limit *int64
	if period == PeriodDay {
		limit = ent.MessagesPerDay
	} else {
		limit = ent.MessagesPerMonth
		if limit == nil {
			limit = ent.MessageCredits
		}
	}
	if limit == nil || *limit == subscription.Unlimited {
		return LimitCheck{Allowed: true, Limit: subscription.Unlimited, Remaining: subscription.Unlimited}
	}
	remaining := *limit - used
	if remaining < 0 {
		remaining = 0
	}
	return LimitCheck{Allowed: used < *limit, Limit: *limit, Remaining: remaining}
}

type CreditCheck struct {
	Allowed        bool  `json:"allowed"`
	CurrentCredits int64 `json:"currentCredits"`
	Remaining      int64 `json:"remaining"`
}

// CheckCredits reports whether the user can spend required credits.
func (r *Resolver) CheckCredits(ctx context.Context, userID uint, required int64) CreditCheck {
	ent := r.Resolve(ctx, userID)
	if ent.MessageCredits == nil || *ent.MessageCredits == subscription.Unlimited {
		return CreditCheck{Allowed: true, CurrentCredits: subscription.Unlimited, Remaining: subscription.Unlimited}
	}
	current := *ent.MessageCredits
	return CreditCheck{
		Allowed:        current >= required,
		CurrentCredits: current,
		Remaining:      credits.Subtract(current, required),
	}
}
