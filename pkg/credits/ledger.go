package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"cooksa_backend/internal/model"
	"cooksa_backend/internal/store"
	"cooksa_backend/pkg/subscription"
)

// SubscriptionStore is the subset of the store the ledger writes through.
type SubscriptionStore interface {
	LockSubscription(ctx context.Context, userID uint) (*model.Subscription, error)
	UpsertSubscription(ctx context.Context, sub *model.Subscription) error
}

// Ledger mutates credit balances. Every write is a full-record upsert built
// from the current row.
type Ledger struct {
	store SubscriptionStore
}

func NewLedger(s SubscriptionStore) *Ledger {
	return &Ledger{store: s}
}

// CreditState is the credit portion of a subscription snapshot.
type CreditState struct {
	AvailableCredits *int64
	TotalCredits     *int64
	CreditsResetAt   *time.Time
	Metadata         datatypes.JSONMap
}

// AvailableCredits reads the balance: the dedicated column, then the legacy
// metadata mirror, then the tier allowance. It reports false when the tier
// has no credit model.
func AvailableCredits(sub *model.Subscription) (int64, bool) {
	if sub == nil {
		return 0, false
	}
	if sub.AvailableCredits != nil {
		return *sub.AvailableCredits, true
	}
	if v, ok := subscription.MetadataInt(sub.Metadata, subscription.MetaMessageCredits); ok {
		return v, true
	}
	return subscription.CreditAllowance(sub.Tier)
}

// Subtract debits n from balance without going below zero. Unlimited
// balances are returned unchanged.
func Subtract(balance, n int64) int64 {
	if balance == subscription.Unlimited {
		return balance
	}
	if n >= balance {
		return 0
	}
	return balance - n
}

// ApplyTopUp adds delta credits to the user's balance and returns the new
// balance. Callers must apply it once per payment event.
func (l *Ledger) ApplyTopUp(ctx context.Context, userID uint, delta int64) (int64, error) {
	if delta <= 0 {
		return 0, ErrInvalidAmount
	}

	sub, err := l.store.LockSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrNoSubscription
		}
		return 0, fmt.Errorf("load subscription: %w", err)
	}

	current, ok := AvailableCredits(sub)
	if ok && current == subscription.Unlimited {
		return current, nil
	}
	if !ok {
		current = 0
	}
	next := current + delta

	rec := sub.Clone()
	rec.AvailableCredits = &next
	rec.Metadata = mirror(rec.Metadata, next)
	rec.CreditSchemaVersion = subscription.TierSchemaVersion
	if err := l.store.UpsertSubscription(ctx, rec); err != nil {
		return 0, err
	}
	return next, nil
}

// ApplySubscriptionCredit computes the credit fields for a subscription
// moving to tier. A messageCredits value in the product metadata replaces
// the tier grant, so available never starts above total. Unlimited tiers
// clear both counters; the metadata mirror then carries -1. A stored balance is carried over only while the tier and
// the billing period are unchanged.
func (l *Ledger) ApplySubscriptionCredit(ctx context.Context, userID uint, tier subscription.Tier, metadata map[string]any, periodEnd *time.Time) (CreditState, error) {
	meta := make(datatypes.JSONMap, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}

	allowance, ok := subscription.CreditAllowance(tier)
	if !ok {
		return CreditState{Metadata: meta}, nil
	}
	if allowance == subscription.Unlimited {
		meta[subscription.MetaMessageCredits] = subscription.Unlimited
		return CreditState{Metadata: meta}, nil
	}

	total := allowance
	if v, ok := subscription.MetadataInt(meta, subscription.MetaMessageCredits); ok {
		if v == subscription.Unlimited {
			meta[subscription.MetaMessageCredits] = subscription.Unlimited
			return CreditState{Metadata: meta}, nil
		}
		if v >= 0 {
			total = v
		}
	}
	available := total

	current, err := l.store.LockSubscription(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return CreditState{}, fmt.Errorf("load subscription: %w", err)
	}
	if current != nil && current.Tier == tier && samePeriod(current.CreditsResetAt, periodEnd) {
		if balance, ok := AvailableCredits(current); ok && balance != subscription.Unlimited {
			available = balance
		}
	}

	meta[subscription.MetaMessageCredits] = available
	return CreditState{
		AvailableCredits: &available,
		TotalCredits:     &total,
		CreditsResetAt:   periodEnd,
		Metadata:         meta,
	}, nil
}

// Debit removes n credits, clamping at zero. It reports whether the balance
// covered n. Unlimited and non-credit tiers are never debited.
func (l *Ledger) Debit(ctx context.Context, userID uint, n int64) (int64, bool, error) {
	if n < 0 {
		return 0, false, ErrInvalidAmount
	}

	sub, err := l.store.LockSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, false, ErrNoSubscription
		}
		return 0, false, fmt.Errorf("load subscription: %w", err)
	}

	current, ok := AvailableCredits(sub)
	if !ok || current == subscription.Unlimited {
		return subscription.Unlimited, true, nil
	}

	next := Subtract(current, n)
	rec := sub.Clone()
	rec.AvailableCredits = &next
	rec.Metadata = mirror(rec.Metadata, next)
	rec.CreditSchemaVersion = subscription.TierSchemaVersion
	if err := l.store.UpsertSubscription(ctx, rec); err != nil {
		return 0, false, err
	}
	return next, current >= n, nil
}

func mirror(meta datatypes.JSONMap, balance int64) datatypes.JSONMap {
	if meta == nil {
		meta = datatypes.JSONMap{}
	}
	meta[subscription.MetaMessageCredits] = balance
	return meta
}

func samePeriod(a, b *time.Time) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Unix() == b.Unix()
}
