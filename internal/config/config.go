package config

import "time"

// Config is the root configuration for a quotefeed instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Feed     FeedConfig     `yaml:"feed"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Sessions SessionsConfig `yaml:"sessions"`
	Status   StatusConfig   `yaml:"status"`
}

// InstanceConfig identifies this coordinator instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig holds upstream streaming feed settings.
type FeedConfig struct {
	WSURL                string        `yaml:"ws_url"`
	APIKey               string        `yaml:"api_key"` // Bearer token for the upstream handshake
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"` // Fixed delay between attempts
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	BufferSize           int           `yaml:"buffer_size"` // Inbound message channel capacity
}

// DatabaseConfig holds the relational store for tickers, splits, candles,
// and the query-activity log.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
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

// RedisConfig holds the real-time quote sink settings.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	QuoteTTL  time.Duration `yaml:"quote_ttl"` // Expiry on the latest-quote hash
}

// MonitorConfig holds ticker activity monitor settings.
type MonitorConfig struct {
	Interval            time.Duration `yaml:"interval"`
	SymbolLimit         int           `yaml:"symbol_limit"` // Most-recent-N distinct symbols to keep live
	BackfillTimeout     time.Duration `yaml:"backfill_timeout"`
	BackfillConcurrency int           `yaml:"backfill_concurrency"`
	AllowedTypes        []string      `yaml:"allowed_types"` // Asset classes the upstream feed accepts
}

// SessionsConfig holds client session housekeeping settings.
type SessionsConfig struct {
	MaxIdle         time.Duration `yaml:"max_idle"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// StatusConfig holds the operational HTTP endpoint settings.
type StatusConfig struct {
	Port int `yaml:"port"`
}
