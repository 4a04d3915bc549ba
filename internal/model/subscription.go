package model

import (
	"time"

	"gorm.io/datatypes"

	"cooksa_backend/pkg/subscription"
)

// Subscription is the per-user billing snapshot. Rows are upserted by
// user and never deleted; cancellation resets them to the free tier.
type Subscription struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	UserID uint `json:"user_id" gorm:"uniqueIndex;not null"`

	Tier            subscription.Tier             `json:"tier" gorm:"not null;default:'free'"`
	BillingInterval *subscription.BillingInterval `json:"billing_interval"`
	Status          subscription.Status           `json:"status" gorm:"not null;default:'active'"`

	StripeCustomerID     *string `json:"stripe_customer_id" gorm:"index"`
	StripeSubscriptionID *string `json:"stripe_subscription_id" gorm:"index"`
	StripePriceID        *string `json:"stripe_price_id"`

	CurrentPeriodStart *time.Time `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end" gorm:"not null;default:false"`

	// -1 is unlimited, nil means the tier does not use credits.
	AvailableCredits *int64     `json:"available_credits"`
	TotalCredits     *int64     `json:"total_credits"`
	CreditsResetAt   *time.Time `json:"credits_reset_at"`

	Metadata datatypes.JSONMap `json:"metadata"`

	CreditSchemaVersion int        `json:"credit_schema_version" gorm:"not null;default:1"`
	LastEventAt         *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Subscription) IsActive() bool {
	return s != nil && s.Status == subscription.StatusActive
}

func (s *Subscription) CustomerID() string {
	if s == nil || s.StripeCustomerID == nil {
		return ""
	}
	return *s.StripeCustomerID
}

// Clone returns a deep copy, so callers can build the next full state
// without touching the row they read.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	out := *s
	if s.Metadata != nil {
		out.Metadata = make(datatypes.JSONMap, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
