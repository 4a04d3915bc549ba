package credits

import "errors"

var (
	ErrNoSubscription = errors.New("credits: user has no subscription")
	ErrInvalidAmount  = errors.New("credits: amount must be positive")
)
