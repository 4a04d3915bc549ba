package seed_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"cooksa_backend/internal/model"
	"cooksa_backend/internal/store/storetest"
	"cooksa_backend/pkg/seed"
	"cooksa_backend/pkg/subscription"
)

func TestAccountsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	created, err := seed.Accounts(ctx, s, now)
	require.NoError(t, err)
	assert.Equal(t, 6, created)

	created, err = seed.Accounts(ctx, s, now)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestAccountsSeedsTierState(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	_, err := seed.Accounts(ctx, s, time.Now())
	require.NoError(t, err)

	starter, err := s.UserByEmail(ctx, seed.DemoEmail(subscription.BusinessStarter))
	require.NoError(t, err)
	assert.Equal(t, model.AccountBusiness, starter.AccountType)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(starter.Password), []byte(seed.DemoPassword)))

	sub, err := s.SubscriptionByUserID(ctx, starter.ID)
	require.NoError(t, err)
	require.NotNil(t, sub.AvailableCredits)
	assert.Equal(t, int64(10000), *sub.AvailableCredits)

	unlimited, err := s.UserByEmail(ctx, seed.DemoEmail(subscription.BusinessPro))
	require.NoError(t, err)
	sub, err = s.SubscriptionByUserID(ctx, unlimited.ID)
	require.NoError(t, err)
	assert.Nil(t, sub.AvailableCredits)

	free, err := s.UserByEmail(ctx, seed.DemoEmail(subscription.Free))
	require.NoError(t, err)
	sub, err = s.SubscriptionByUserID(ctx, free.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.Free, sub.Tier)
	assert.Nil(t, sub.CurrentPeriodEnd)
}
