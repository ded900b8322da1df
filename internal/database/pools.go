package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rickgao/boss-relay/internal/config"
)

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Migrate creates the relay's tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		account_id     TEXT PRIMARY KEY,
		username       TEXT NOT NULL DEFAULT '',
		password       TEXT NOT NULL DEFAULT '',
		token          TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL DEFAULT 'offline',
		stop_requested BOOLEAN NOT NULL DEFAULT FALSE,
		recent_events  JSONB NOT NULL DEFAULT '[]'::jsonb,
		recent_logs    JSONB NOT NULL DEFAULT '[]'::jsonb,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_status ON accounts (status)`,
	`CREATE TABLE IF NOT EXISTS battle_steps (
		id          UUID PRIMARY KEY,
		account_id  TEXT NOT NULL,
		boss_id     TEXT NOT NULL DEFAULT '',
		captured_at TIMESTAMPTZ NOT NULL,
		payload     JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_battle_steps_account_time ON battle_steps (account_id, captured_at)`,
}
