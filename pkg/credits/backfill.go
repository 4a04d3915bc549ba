package credits

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"cooksa_backend/internal/model"
	"cooksa_backend/pkg/subscription"
)

type BackfillStore interface {
	ActiveSubscriptionsWithoutCredits(ctx context.Context, belowVersion int) ([]model.Subscription, error)
	UpsertSubscription(ctx context.Context, sub *model.Subscription) error
}

// Backfill brings active legacy rows to the current credit schema. Bounded
// tiers get their balance moved from metadata into the credit columns;
// unlimited tiers and tiers outside the credit model are stamped with the
// current version and their counters cleared. It returns the number of
// rows migrated and is safe to run repeatedly.
func Backfill(ctx context.Context, s BackfillStore) (int, error) {
	subs, err := s.ActiveSubscriptionsWithoutCredits(ctx, subscription.TierSchemaVersion)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}

	migrated := 0
	for i := range subs {
		sub := &subs[i]
		rec := sub.Clone()
		rec.CreditSchemaVersion = subscription.TierSchemaVersion

		allowance, ok := subscription.CreditAllowance(sub.Tier)
		switch {
		case !ok:
			clearCredits(rec)
		case allowance == subscription.Unlimited:
			clearCredits(rec)
			rec.Metadata = mirror(rec.Metadata, subscription.Unlimited)
		default:
			available := allowance
			if v, ok := subscription.MetadataInt(sub.Metadata, subscription.MetaMessageCredits); ok {
				available = v
			}
			total := allowance
			rec.AvailableCredits = &available
			rec.TotalCredits = &total
			rec.CreditsResetAt = sub.CurrentPeriodEnd
			rec.Metadata = mirror(rec.Metadata, available)
		}

		if err := s.UpsertSubscription(ctx, rec); err != nil {
			return migrated, fmt.Errorf("backfill user %d: %w", sub.UserID, err)
		}

		ev := log.Info().Uint("user_id", sub.UserID).Str("tier", string(sub.Tier))
		if rec.AvailableCredits != nil {
			ev = ev.Int64("available", *rec.AvailableCredits).Int64("total", *rec.TotalCredits)
		}
		ev.Msg("Backfilled credits")
		migrated++
	}
	return migrated, nil
}

func clearCredits(rec *model.Subscription) {
	rec.AvailableCredits = nil
	rec.TotalCredits = nil
	rec.CreditsResetAt = nil
}
