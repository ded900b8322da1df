package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/boss-relay/internal/config"
	"github.com/rickgao/boss-relay/internal/database"
	"github.com/rickgao/boss-relay/internal/model"
)

var (
	// ErrNotFound is returned when no record exists for an account.
	ErrNotFound = errors.New("account not found")
)

// Store is the durable session-state contract.
type Store interface {
	// Get returns the record for id or ErrNotFound. History that cannot be
	// decoded is returned empty rather than failing the read.
	Get(ctx context.Context, id string) (model.AccountRecord, error)

	// Put overwrites the full record and adds its id to the index.
	Put(ctx context.Context, rec model.AccountRecord) error

	SetStatus(ctx context.Context, id string, status model.Status) error
	SetStopRequested(ctx context.Context, id string, stop bool) error

	// AppendLog and AppendEvent add to the rolling window. They are no-ops
	// for unknown accounts.
	AppendLog(ctx context.Context, id string, entry model.LogEntry) error
	AppendEvent(ctx context.Context, id string, e model.Event) error

	// Delete removes the record and its index entry.
	Delete(ctx context.Context, id string) error

	ListAllIDs(ctx context.Context) ([]string, error)
	ListOnlineIDs(ctx context.Context) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open creates the backend selected by cfg.Type and verifies it is reachable.
func Open(ctx context.Context, cfg config.StoreConfig, capacity int, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity < 1 {
		capacity = model.HistoryCapacity
	}

	switch cfg.Type {
	case config.StoreMemory:
		logger.Info("using memory store")
		return NewMemory(capacity), nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		s := NewRedis(client, capacity)
		s.logger = logger
		if err := s.Ping(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info("using redis store", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
		return s, nil

	case config.StorePostgres:
		pool, err := database.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("using postgres store", "host", cfg.Postgres.Host, "database", cfg.Postgres.Name)
		s := NewPostgres(pool, capacity)
		s.logger = logger
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
