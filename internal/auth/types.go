package auth

import "time"

// Account is a registered identity. It is created once and never mutated.
type Account struct {
	ID           string
	Identifier   string
	PasswordHash string
	CreatedAt    time.Time
}

// Identity is what a verified session token proves.
type Identity struct {
	Identifier string
	TokenID    string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// IssuedToken is a freshly signed session token handed to the client.
type IssuedToken struct {
	Token      string
	Identifier string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}
