package cron

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"cooksa_backend/internal/model"
	"cooksa_backend/pkg/subscription"
)

const endingWarningDays = 3

type EndingStore interface {
	SubscriptionsEndingBetween(ctx context.Context, from, to time.Time) ([]model.Subscription, error)
	UserByID(ctx context.Context, id uint) (*model.User, error)
}

type EndingMailer interface {
	SendSubscriptionEnding(ctx context.Context, to string, tier subscription.Tier, endsAt time.Time, daysLeft int) error
}

// SubscriptionEnding warns users whose cancelled subscription runs out in
// three days. It looks at a one-day window so a daily schedule mails each
// subscription once.
type SubscriptionEnding struct {
	store  EndingStore
	mailer EndingMailer
	now    func() time.Time
}

func NewSubscriptionEnding(store EndingStore, mailer EndingMailer) *SubscriptionEnding {
	return &SubscriptionEnding{store: store, mailer: mailer, now: time.Now}
}

func (j *SubscriptionEnding) Name() string { return "subscription-ending" }

func (j *SubscriptionEnding) Run(ctx context.Context) error {
	from := j.now().Add(endingWarningDays * 24 * time.Hour)
	subs, err := j.store.SubscriptionsEndingBetween(ctx, from, from.Add(24*time.Hour))
	if err != nil {
		return err
	}

	log.Info().Int("count", len(subs)).Msg("Found subscriptions ending soon")

	sent := 0
	for _, sub := range subs {
		if sub.CurrentPeriodEnd == nil || sub.Tier == subscription.Free {
			continue
		}
		user, err := j.store.UserByID(ctx, sub.UserID)
		if err != nil {
			log.Error().Err(err).Uint("user_id", sub.UserID).Msg("Could not load user for ending notice")
			continue
		}
		if err := j.mailer.SendSubscriptionEnding(ctx, user.Email, sub.Tier, *sub.CurrentPeriodEnd, endingWarningDays); err != nil {
			log.Error().Err(err).Uint("user_id", sub.UserID).Msg("Could not send ending notice")
			continue
		}
		sent++
	}

	log.Info().Int("sent", sent).Msg("Subscription ending notices sent")
	return nil
}
