package email

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/rs/zerolog/log"

	"cooksa_backend/pkg/subscription"
)

var (
	ErrInvalidConfig     = errors.New("invalid email configuration")
	ErrFailedToSendEmail = errors.New("failed to send email")
)

type Message struct {
	From     string
	To       string
	Subject  string
	Tag      string
	HTMLBody string
}

// Sender delivers a rendered message.
type Sender interface {
	SendEmail(ctx context.Context, msg Message) error
}

// Service renders the billing notices. A nil *Service drops every message.
type Service struct {
	sender    Sender
	from      string
	appURL    string
	templates *template.Template
}

type PaymentFailedData struct {
	TierName  string
	Status    string
	PortalURL string
}

type CreditsAddedData struct {
	Added   int64
	Balance int64
	AppURL  string
}

type SubscriptionEndingData struct {
	TierName  string
	EndsAt    time.Time
	DaysLeft  int
	PortalURL string
}

func NewService(sender Sender, from, appURL string) (*Service, error) {
	if sender == nil {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidConfig)
	}
	if from == "" {
		return nil, fmt.Errorf("%w: sender address is required", ErrInvalidConfig)
	}

	templates, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("error loading email templates: %w", err)
	}

	return &Service{
		sender:    sender,
		from:      from,
		appURL:    appURL,
		templates: templates,
	}, nil
}

func (s *Service) sendTemplateEmail(ctx context.Context, to, subject, tag, templateName string, data interface{}) error {
	if s == nil {
		return nil
	}
	if to == "" {
		return fmt.Errorf("%w: empty recipient", ErrFailedToSendEmail)
	}

	body, err := render(s.templates, templateName, data)
	if err != nil {
		return err
	}

	log.Debug().Str("template", templateName).Msg("Sending email")

	return s.sender.SendEmail(ctx, Message{
		From:     s.from,
		To:       to,
		Subject:  subject,
		Tag:      tag,
		HTMLBody: body,
	})
}

func (s *Service) SendPaymentFailed(ctx context.Context, to string, tier subscription.Tier, status subscription.Status) error {
	if s == nil {
		return nil
	}
	data := PaymentFailedData{
		TierName:  tierName(tier),
		Status:    string(status),
		PortalURL: s.appURL + "/settings/billing",
	}
	return s.sendTemplateEmail(ctx, to, "We couldn't process your payment", "payment-failed", "payment_failed.html", data)
}

func (s *Service) SendCreditsAdded(ctx context.Context, to string, added, balance int64) error {
	if s == nil {
		return nil
	}
	data := CreditsAddedData{
		Added:   added,
		Balance: balance,
		AppURL:  s.appURL,
	}
	return s.sendTemplateEmail(ctx, to, fmt.Sprintf("%d credits added to your account", added), "credits-added", "credits_added.html", data)
}

func (s *Service) SendSubscriptionEnding(ctx context.Context, to string, tier subscription.Tier, endsAt time.Time, daysLeft int) error {
	if s == nil {
		return nil
	}
	data := SubscriptionEndingData{
		TierName:  tierName(tier),
		EndsAt:    endsAt,
		DaysLeft:  daysLeft,
		PortalURL: s.appURL + "/settings/billing",
	}
	return s.sendTemplateEmail(ctx, to, fmt.Sprintf("Your plan ends in %d days", daysLeft), "subscription-ending", "subscription_ending.html", data)
}

func tierName(t subscription.Tier) string {
	switch t {
	case subscription.Pro:
		return "Pro"
	case subscription.Power:
		return "Power"
	case subscription.BusinessFree:
		return "Business Free"
	case subscription.BusinessStarter:
		return "Business Starter"
	case subscription.BusinessPro:
		return "Business Pro"
	default:
		return "Free"
	}
}
