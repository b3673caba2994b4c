package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("auth: not found")
	ErrConflict      = errors.New("auth: already exists")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrUnauthorized  = errors.New("auth: invalid email or password")
	ErrMissingSecret = errors.New("auth: signing secret is not configured")

	// ErrInvalidToken covers malformed, tampered and expired tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTokenExpired is returned for well-signed tokens past their expiry.
	// errors.Is(ErrTokenExpired, ErrInvalidToken) holds.
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrInvalidToken)
)
