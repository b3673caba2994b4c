package auth

import (
	"context"
	"sync"
	"time"

	"chatdocs.app/internal/ids"
)

var _ CredentialStore = (*MemoryStore)(nil)

// MemoryStore keeps accounts in process memory. Contents are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]Account)}
}

func (s *MemoryStore) Find(_ context.Context, identifier string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[NormalizeIdentifier(identifier)]
	if !ok {
		return nil, ErrNotFound
	}
	return &acc, nil
}

func (s *MemoryStore) Create(_ context.Context, account *Account) error {
	key := NormalizeIdentifier(account.Identifier)
	if key == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[key]; exists {
		return ErrConflict
	}
	if account.ID == "" {
		account.ID = ids.New()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	account.Identifier = key
	s.accounts[key] = *account
	return nil
}

// Len reports the number of stored accounts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}
