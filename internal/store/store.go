package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cooksa_backend/internal/model"
)

// Store wraps the gorm handle. A Store obtained inside Transaction is bound
// to that transaction.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// Models lists every table the store owns, in migration order.
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.Subscription{},
		&model.ProcessedEvent{},
	}
}

func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Users

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrEmailUsed
	}
	return s.db.WithContext(ctx).Create(user).Error
}

func (s *Store) UserByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// UserByStripeCustomerID resolves the processor customer link. The user
// column is checked first, then the subscription snapshot.
func (s *Store) UserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	if customerID == "" {
		return nil, ErrNotFound
	}
	var user model.User
	err := s.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var sub model.Subscription
	if err := s.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&sub).Error; err != nil {
		return nil, notFound(err)
	}
	return s.UserByID(ctx, sub.UserID)
}

func (s *Store) SetUserStripeCustomerID(ctx context.Context, userID uint, customerID string) error {
	return s.updateUser(ctx, userID, "stripe_customer_id", customerID)
}

func (s *Store) SetUserAccountType(ctx context.Context, userID uint, accountType model.AccountType) error {
	return s.updateUser(ctx, userID, "account_type", accountType)
}

func (s *Store) SetUserAvatarURL(ctx context.Context, userID uint, url string) error {
	return s.updateUser(ctx, userID, "avatar_url", url)
}

func (s *Store) updateUser(ctx context.Context, userID uint, column string, value interface{}) error {
	res := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("update user %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Subscriptions

// subscriptionColumns are replaced on every upsert; id and created_at are
// kept from the first insert.
var subscriptionColumns = []string{
	"tier", "billing_interval", "status",
	"stripe_customer_id", "stripe_subscription_id", "stripe_price_id",
	"current_period_start", "current_period_end", "cancel_at_period_end",
	"available_credits", "total_credits", "credits_reset_at",
	"metadata", "credit_schema_version", "last_event_at", "updated_at",
}

func (s *Store) SubscriptionByUserID(ctx context.Context, userID uint) (*model.Subscription, error) {
	var sub model.Subscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

// LockSubscription reads the row with SELECT ... FOR UPDATE. Only useful
// inside Transaction.
func (s *Store) LockSubscription(ctx context.Context, userID uint) (*model.Subscription, error) {
	var sub model.Subscription
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&sub).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

// UpsertSubscription writes the full record keyed by user id.
func (s *Store) UpsertSubscription(ctx context.Context, sub *model.Subscription) error {
	if sub.UserID == 0 {
		return errors.New("upsert subscription: user id is required")
	}
	rec := sub.Clone()
	rec.ID = 0
	rec.CreatedAt = time.Time{}
	rec.UpdatedAt = time.Now()

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(subscriptionColumns),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// ActiveSubscriptionsWithoutCredits returns active rows with no credit
// columns that are still below the given credit schema version.
func (s *Store) ActiveSubscriptionsWithoutCredits(ctx context.Context, belowVersion int) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := s.db.WithContext(ctx).
		Where("available_credits IS NULL AND credit_schema_version < ? AND status = ?", belowVersion, "active").
		Order("id").
		Find(&subs).Error
	return subs, err
}

// SubscriptionsEndingBetween returns subscriptions set to cancel whose
// period ends in [from, to).
func (s *Store) SubscriptionsEndingBetween(ctx context.Context, from, to time.Time) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := s.db.WithContext(ctx).
		Where("cancel_at_period_end = ? AND status = ?", true, "active").
		Where("current_period_end >= ? AND current_period_end < ?", from, to).
		Find(&subs).Error
	return subs, err
}

// Processed events

// ClaimEvent records an event id. It reports false when the id was already
// recorded, which makes redelivery a no-op when called in the same
// transaction as the state change.
func (s *Store) ClaimEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	if eventID == "" {
		return false, errors.New("claim event: empty event id")
	}
	ev := model.ProcessedEvent{
		EventID:     eventID,
		Type:        eventType,
		ProcessedAt: time.Now(),
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&ev)
	if res.Error != nil {
		return false, fmt.Errorf("claim event: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("processed_at < ?", before).Delete(&model.ProcessedEvent{})
	return res.RowsAffected, res.Error
}
