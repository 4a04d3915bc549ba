package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cooksa_backend/internal/model"
	"cooksa_backend/internal/store/storetest"
	"cooksa_backend/pkg/subscription"
)

type endingMail struct {
	to       string
	tier     subscription.Tier
	daysLeft int
}

type fakeMailer struct {
	sent []endingMail
}

func (f *fakeMailer) SendSubscriptionEnding(_ context.Context, to string, tier subscription.Tier, _ time.Time, daysLeft int) error {
	f.sent = append(f.sent, endingMail{to: to, tier: tier, daysLeft: daysLeft})
	return nil
}

func TestSubscriptionEndingMailsWindowOnly(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	now := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)

	mk := func(email string, ends time.Time, cancel bool) {
		u := &model.User{Email: email}
		require.NoError(t, s.CreateUser(ctx, u))
		require.NoError(t, s.UpsertSubscription(ctx, &model.Subscription{
			UserID:            u.ID,
			Tier:              subscription.Pro,
			Status:            subscription.StatusActive,
			CurrentPeriodEnd:  &ends,
			CancelAtPeriodEnd: cancel,
		}))
	}
	mk("soon@example.com", now.Add(3*24*time.Hour+time.Hour), true)
	mk("later@example.com", now.Add(5*24*time.Hour), true)
	mk("renewing@example.com", now.Add(3*24*time.Hour+time.Hour), false)

	mailer := &fakeMailer{}
	job := NewSubscriptionEnding(s, mailer)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(ctx))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, endingMail{to: "soon@example.com", tier: subscription.Pro, daysLeft: 3}, mailer.sent[0])
}

func TestEventRetention(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)

	claimed, err := s.ClaimEvent(ctx, "evt_old", "invoice.paid")
	require.NoError(t, err)
	require.True(t, claimed)

	job := NewEventRetention(s, time.Hour)
	job.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	require.NoError(t, job.Run(ctx))

	claimed, err = s.ClaimEvent(ctx, "evt_old", "invoice.paid")
	require.NoError(t, err)
	assert.True(t, claimed, "pruned id can be claimed again")
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(context.Background())
	assert.Error(t, s.Add("not a spec", NewEventRetention(nil, 0)))
}
