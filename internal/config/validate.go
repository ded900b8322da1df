package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *RelayConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Upstream.RestURL == "" {
		return errors.New("upstream.rest_url is required")
	}
	if c.Upstream.WSURL == "" {
		return errors.New("upstream.ws_url is required")
	}
	if c.Upstream.ServiceAccount.Username == "" || c.Upstream.ServiceAccount.Password == "" {
		return errors.New("upstream.service_account username and password are required")
	}

	switch c.Store.Type {
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required")
		}
	case StorePostgres:
		if err := c.Store.Postgres.validate("store.postgres"); err != nil {
			return err
		}
	case StoreMemory:
	default:
		return fmt.Errorf("store.type must be one of redis, postgres, memory, got %q", c.Store.Type)
	}

	if c.Archive.Enabled {
		if err := c.Store.Postgres.validate("store.postgres"); err != nil {
			return fmt.Errorf("archive requires postgres: %w", err)
		}
		if c.Archive.BatchSize < 1 {
			return errors.New("archive.batch_size must be >= 1")
		}
		if c.Archive.BufferSize < 1 {
			return errors.New("archive.buffer_size must be >= 1")
		}
	}

	if c.Session.HistoryCapacity < 1 {
		return errors.New("session.history_capacity must be >= 1")
	}
	if c.Session.JoinInterval <= 0 {
		return errors.New("session.join_interval must be > 0")
	}
	if c.Recovery.HealInterval <= 0 {
		return errors.New("recovery.heal_interval must be > 0")
	}
	if c.Recovery.MaxBackoff < c.Recovery.HealInterval {
		return fmt.Errorf("recovery.max_backoff (%s) cannot be shorter than heal_interval (%s)",
			c.Recovery.MaxBackoff, c.Recovery.HealInterval)
	}
	if c.Encounter.PollInterval <= 0 {
		return errors.New("encounter.poll_interval must be > 0")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
