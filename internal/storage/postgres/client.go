package postgres

import (
	"context"
	"fmt"
	"github.com/basit-dev-64/notification-system-backend/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool creates a pgx connection pool for the job store.
// The pool connects lazily; Ping it to fail fast.
func NewPool(cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to parse dsn: %w", err)
	}
	if cfg.Postgres.Pool.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Postgres.Pool.MaxConns
	}
	if cfg.Postgres.Pool.MinConns > 0 {
		poolCfg.MinConns = cfg.Postgres.Pool.MinConns
	}
	if cfg.Postgres.Pool.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.Postgres.Pool.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}
	return pool, nil
}
