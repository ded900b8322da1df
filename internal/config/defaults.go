package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL          = "https://boundless.wenzi.games"
	DefaultWSURL            = "wss://boundless.wenzi.games/socket.io/?EIO=4&transport=websocket"
	DefaultAPITimeout       = 30 * time.Second
	DefaultMaxRetries       = 3
	DefaultStoreType        = StoreRedis
	DefaultRedisAddr        = "localhost:6379"
	DefaultRedisMaxRetries  = 3
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultJoinDelay        = 1 * time.Second
	DefaultJoinInterval     = 30 * time.Second
	DefaultPingTimeout      = 60 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultStoreTimeout     = 5 * time.Second
	DefaultHistoryCapacity  = 20
	DefaultHealInterval     = 1 * time.Minute
	DefaultAccountDelay     = 1 * time.Second
	DefaultConnectJitter    = 3 * time.Second
	DefaultMaxBackoff       = 30 * time.Minute
	DefaultPollInterval     = 5 * time.Second
	DefaultArchiveBatchSize = 500
	DefaultArchiveFlush     = 2 * time.Second
	DefaultArchiveBuffer    = 10000
	DefaultServerPort       = 3333
)

// Store backend types.
const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

func (c *RelayConfig) applyDefaults() {
	// Upstream defaults
	if c.Upstream.RestURL == "" {
		c.Upstream.RestURL = DefaultRestURL
	}
	if c.Upstream.WSURL == "" {
		c.Upstream.WSURL = DefaultWSURL
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = DefaultAPITimeout
	}
	if c.Upstream.MaxRetries == 0 {
		c.Upstream.MaxRetries = DefaultMaxRetries
	}

	// Store defaults
	if c.Store.Type == "" {
		c.Store.Type = DefaultStoreType
	}
	if c.Store.Redis.Addr == "" {
		c.Store.Redis.Addr = DefaultRedisAddr
	}
	if c.Store.Redis.MaxRetries == 0 {
		c.Store.Redis.MaxRetries = DefaultRedisMaxRetries
	}
	applyDBDefaults(&c.Store.Postgres)

	// Session defaults
	if c.Session.JoinDelay == 0 {
		c.Session.JoinDelay = DefaultJoinDelay
	}
	if c.Session.JoinInterval == 0 {
		c.Session.JoinInterval = DefaultJoinInterval
	}
	if c.Session.PingTimeout == 0 {
		c.Session.PingTimeout = DefaultPingTimeout
	}
	if c.Session.WriteTimeout == 0 {
		c.Session.WriteTimeout = DefaultWriteTimeout
	}
	if c.Session.StoreTimeout == 0 {
		c.Session.StoreTimeout = DefaultStoreTimeout
	}
	if c.Session.HistoryCapacity == 0 {
		c.Session.HistoryCapacity = DefaultHistoryCapacity
	}

	// Recovery defaults
	if c.Recovery.HealInterval == 0 {
		c.Recovery.HealInterval = DefaultHealInterval
	}
	if c.Recovery.AccountDelay == 0 {
		c.Recovery.AccountDelay = DefaultAccountDelay
	}
	if c.Recovery.ConnectJitter == 0 {
		c.Recovery.ConnectJitter = DefaultConnectJitter
	}
	if c.Recovery.MaxBackoff == 0 {
		c.Recovery.MaxBackoff = DefaultMaxBackoff
	}

	// Encounter defaults
	if c.Encounter.PollInterval == 0 {
		c.Encounter.PollInterval = DefaultPollInterval
	}

	// Archive defaults
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultArchiveBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultArchiveFlush
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultArchiveBuffer
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
