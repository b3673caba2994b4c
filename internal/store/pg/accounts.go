package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"chatdocs.app/internal/auth"
	"chatdocs.app/internal/ids"
)

const pgErrUniqueViolation = "23505"

// Store persists accounts in PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ auth.CredentialStore = (*Store)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Find(ctx context.Context, identifier string) (*auth.Account, error) {
	var acc auth.Account
	err := s.db.QueryRowContext(ctx,
		`select id, identifier, password_hash, created_at from accounts where identifier = $1`,
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
		`insert into accounts(id, identifier, password_hash, created_at) values($1, $2, $3, $4)`,
		acc.ID, acc.Identifier, acc.PasswordHash, acc.CreatedAt,
	)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return auth.ErrConflict
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
