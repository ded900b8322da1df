package config

import "time"

// RelayConfig is the root configuration for a relay instance.
type RelayConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Store     StoreConfig     `yaml:"store"`
	Session   SessionConfig   `yaml:"session"`
	Recovery  RecoveryConfig  `yaml:"recovery"`
	Encounter EncounterConfig `yaml:"encounter"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Server    ServerConfig    `yaml:"server"`
}

// InstanceConfig identifies this relay.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// UpstreamConfig holds the upstream REST and WebSocket endpoints.
type UpstreamConfig struct {
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	Origin     string        `yaml:"origin"` // Optional Origin header for the WS handshake
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`

	// ServiceAccount is used by the encounter poller to look up the current
	// boss and request challenge ids. It is never registered as a session.
	ServiceAccount AccountConfig `yaml:"service_account"`
}

// AccountConfig holds upstream credentials.
type AccountConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// StoreConfig selects and configures the durable session store.
type StoreConfig struct {
	Type     string      `yaml:"type"` // "redis", "postgres", "memory"
	Redis    RedisConfig `yaml:"redis"`
	Postgres DBConfig    `yaml:"postgres"`
}

// RedisConfig holds a Redis connection.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
}

// DBConfig holds a single PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// SessionConfig holds per-account upstream session settings.
type SessionConfig struct {
	JoinDelay       time.Duration `yaml:"join_delay"`    // Wait after auth before the first join
	JoinInterval    time.Duration `yaml:"join_interval"` // Join resend interval
	PingTimeout     time.Duration `yaml:"ping_timeout"`  // Max silence before the socket is considered stale
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	StoreTimeout    time.Duration `yaml:"store_timeout"` // Per-call deadline for store writes
	HistoryCapacity int           `yaml:"history_capacity"`
}

// RecoveryConfig holds reconciliation settings.
type RecoveryConfig struct {
	HealInterval  time.Duration `yaml:"heal_interval"`
	AccountDelay  time.Duration `yaml:"account_delay"`  // Pause between accounts in one pass
	ConnectJitter time.Duration `yaml:"connect_jitter"` // Max random delay before connect
	MaxBackoff    time.Duration `yaml:"max_backoff"`    // Cap for repeated auth failures
}

// EncounterConfig holds encounter poller settings.
type EncounterConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ArchiveConfig holds the optional battle-step archive writer settings.
// The archive writes into store.postgres.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}
