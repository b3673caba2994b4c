// Package sqlite stores accounts in a local SQLite file for single-node
// deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"chatdocs.app/internal/auth"
	"chatdocs.app/internal/ids"
)

type Store struct {
	db *sql.DB
}

var _ auth.CredentialStore = (*Store)(nil)

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// one writer at a time
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Find(ctx context.Context, identifier string) (*auth.Account, error) {
	var acc auth.Account
	err := s.db.QueryRowContext(ctx,
		`select id, identifier, password_hash, created_at from accounts where identifier = ?`,
		auth.NormalizeIdentifier(identifier),
	).Scan(&acc.ID, &acc.Identifier, &acc.PasswordHash, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *Store) Create(ctx context.Context, acc *auth.Account) error {
	acc.Identifier = auth.NormalizeIdentifier(acc.Identifier)
	if acc.Identifier == "" {
		return auth.ErrInvalidInput
	}
	if acc.ID == "" {
		acc.ID = ids.New()
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into accounts(id, identifier, password_hash, created_at) values(?, ?, ?, ?)`,
		acc.ID, acc.Identifier, acc.PasswordHash, acc.CreatedAt,
	)
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return auth.ErrConflict
	}
	return err
}
