package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chatdocs.app/internal/ids"
)

// Service runs the registration and login flow on top of a credential store
// and the token service.
type Service struct {
	store  CredentialStore
	tokens *Tokens
	cost   int
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithPasswordCost sets the bcrypt cost used for new accounts.
func WithPasswordCost(cost int) ServiceOption {
	return func(s *Service) {
		s.cost = cost
	}
}

// WithServiceClock overrides the time source used for account timestamps.
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs Service with optional configuration.
func NewService(store CredentialStore, tokens *Tokens, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: credential store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	svc := &Service{store: store, tokens: tokens, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Tokens exposes the underlying token service.
func (s *Service) Tokens() *Tokens { return s.tokens }

// Register creates an account. A taken identifier is rejected with
// ErrConflict.
func (s *Service) Register(ctx context.Context, identifier, password string) (Account, error) {
	identifier = NormalizeIdentifier(identifier)
	if identifier == "" {
		return Account{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if password == "" {
		return Account{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	_, err := s.store.Find(ctx, identifier)
	switch {
	case err == nil:
		return Account{}, ErrConflict
	case !errors.Is(err, ErrNotFound):
		return Account{}, fmt.Errorf("lookup account: %w", err)
	}

	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return Account{}, err
	}
	now := s.now().UTC()
	acc := &Account{
		ID:           ids.NewAt(now),
		Identifier:   identifier,
		PasswordHash: hash,
		CreatedAt:    now,
	}
	if err := s.store.Create(ctx, acc); err != nil {
		if errors.Is(err, ErrConflict) {
			return Account{}, ErrConflict
		}
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	return *acc, nil
}

// Login checks credentials and issues a session token. Unknown identifiers
// and wrong passwords both return ErrUnauthorized.
func (s *Service) Login(ctx context.Context, identifier, password string) (IssuedToken, error) {
	identifier = NormalizeIdentifier(identifier)
	if identifier == "" || password == "" {
		return IssuedToken{}, ErrUnauthorized
	}
	acc, err := s.store.Find(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Same bcrypt work as a real mismatch.
			_ = VerifyPassword(s.dummy(), password)
			return IssuedToken{}, ErrUnauthorized
		}
		return IssuedToken{}, fmt.Errorf("lookup account: %w", err)
	}
	if err := VerifyPassword(acc.PasswordHash, password); err != nil {
		return IssuedToken{}, ErrUnauthorized
	}
	return s.tokens.Issue(acc.Identifier)
}

// Verify validates a session token.
func (s *Service) Verify(token string) (Identity, error) {
	return s.tokens.Verify(token)
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = HashPassword(ids.New(), s.cost)
	})
	return s.dummyHash
}
