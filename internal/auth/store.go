package auth

import (
	"context"
	"strings"
)

// CredentialStore persists accounts. Implementations return ErrNotFound from
// Find when no account matches and ErrConflict from Create when the
// identifier is already taken.
type CredentialStore interface {
	Find(ctx context.Context, identifier string) (*Account, error)
	Create(ctx context.Context, account *Account) error
}

// NormalizeIdentifier trims and lower-cases an identifier so lookups and the
// uniqueness check agree.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
