// Package store opens the configured credential store backend.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"chatdocs.app/internal/auth"
	"chatdocs.app/internal/config"
	"chatdocs.app/internal/store/migrations"
	"chatdocs.app/internal/store/pg"
	"chatdocs.app/internal/store/sqlite"
)

// Handle bundles the account store with the SQL handle behind it, if any.
type Handle struct {
	Accounts auth.CredentialStore
	DB       *sql.DB
	Dialect  string
}

// Open builds the backend named by cfg.Driver. SQL backends are pinged and,
// when AutoMigrate is set, brought to the latest schema.
func Open(ctx context.Context, cfg config.StoreConfig) (*Handle, error) {
	switch cfg.Driver {
	case "", config.DriverMemory:
		return &Handle{Accounts: auth.NewMemoryStore()}, nil
	case config.DriverPostgres:
		s, err := pg.Open(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return finish(ctx, &Handle{Accounts: s, DB: s.DB(), Dialect: "pgx"}, cfg.AutoMigrate)
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return finish(ctx, &Handle{Accounts: s, DB: s.DB(), Dialect: "sqlite3"}, cfg.AutoMigrate)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func finish(ctx context.Context, h *Handle, migrate bool) (*Handle, error) {
	if err := h.DB.PingContext(ctx); err != nil {
		_ = h.DB.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	if migrate {
		if err := migrations.Up(ctx, h.DB, h.Dialect); err != nil {
			_ = h.DB.Close()
			return nil, err
		}
	}
	return h, nil
}

// Ping reports backend readiness. The memory store is always ready.
func (h *Handle) Ping(ctx context.Context) error {
	if h.DB == nil {
		return nil
	}
	return h.DB.PingContext(ctx)
}

func (h *Handle) Close() error {
	if h.DB == nil {
		return nil
	}
	return h.DB.Close()
}
