// Package seed creates demo accounts for local development, one per tier.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"cooksa_backend/internal/model"
	"cooksa_backend/internal/store"
	"cooksa_backend/pkg/subscription"
)

// DemoPassword is shared by every seeded account.
const DemoPassword = "cooksa-demo"

var demoTiers = []subscription.Tier{
	subscription.Free,
	subscription.Pro,
	subscription.Power,
	subscription.BusinessFree,
	subscription.BusinessStarter,
	subscription.BusinessPro,
}

func DemoEmail(tier subscription.Tier) string {
	return fmt.Sprintf("demo+%s@cooksa.app", tier)
}

// Accounts creates the demo users and their subscriptions. Existing users
// are left alone, so it can run on every start of a dev database.
func Accounts(ctx context.Context, s *store.Store, now time.Time) (int, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash demo password: %w", err)
	}

	created := 0
	for _, tier := range demoTiers {
		email := DemoEmail(tier)
		if _, err := s.UserByEmail(ctx, email); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return created, err
		}

		accountType := model.AccountIndividual
		if tier.IsBusiness() {
			accountType = model.AccountBusiness
		}
		user := &model.User{
			Email:       email,
			Password:    string(hashed),
			Type:        model.UserTypeRegular,
			AccountType: accountType,
		}
		if err := s.CreateUser(ctx, user); err != nil {
			return created, fmt.Errorf("create %s: %w", email, err)
		}
		if err := s.UpsertSubscription(ctx, demoSubscription(user.ID, tier, now)); err != nil {
			return created, fmt.Errorf("subscribe %s: %w", email, err)
		}

		log.Info().Str("email", email).Str("tier", string(tier)).Msg("Seeded demo account")
		created++
	}
	return created, nil
}

func demoSubscription(userID uint, tier subscription.Tier, now time.Time) *model.Subscription {
	start := now.UTC().Truncate(time.Second)
	end := start.AddDate(0, 1, 0)
	sub := &model.Subscription{
		UserID:              userID,
		Tier:                tier,
		Status:              subscription.StatusActive,
		CreditSchemaVersion: subscription.TierSchemaVersion,
	}
	if tier == subscription.Free {
		return sub
	}

	interval := subscription.Monthly
	sub.BillingInterval = &interval
	sub.CurrentPeriodStart = &start
	sub.CurrentPeriodEnd = &end

	if allowance, ok := subscription.CreditAllowance(tier); ok && allowance != subscription.Unlimited {
		available, total := allowance, allowance
		sub.AvailableCredits = &available
		sub.TotalCredits = &total
		sub.CreditsResetAt = &end
	}
	return sub
}
