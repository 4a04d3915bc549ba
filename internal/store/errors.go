package store

import "errors"

var (
	ErrNotFound  = errors.New("record not found")
	ErrEmailUsed = errors.New("email already registered")
)
