package billing

import "errors"

var (
	ErrMissingSignature = errors.New("billing: no signature provided")
	ErrSecretNotSet     = errors.New("billing: webhook secret not configured")
	ErrInvalidSignature = errors.New("billing: invalid signature")
)
