package config

import (
	"time"

	"github.com/rickgao/quotefeed/internal/model"
)

// Default values for optional configuration fields.
const (
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultReconnectDelay       = 5 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultWriteTimeout         = 5 * time.Second
	DefaultFeedBufferSize       = 10000
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultRedisAddr            = "localhost:6379"
	DefaultRedisKeyPrefix       = "quotefeed"
	DefaultQuoteTTL             = 24 * time.Hour
	DefaultMonitorInterval      = 2 * time.Minute
	DefaultSymbolLimit          = 50
	DefaultBackfillTimeout      = 10 * time.Second
	DefaultBackfillConcurrency  = 5
	DefaultSessionMaxIdle       = 30 * time.Minute
	DefaultCleanupInterval      = 10 * time.Minute
	DefaultStatusPort           = 8080
)

// DefaultAllowedTypes lists the asset classes the upstream feed accepts.
var DefaultAllowedTypes = []string{
	model.AssetStock,
	model.AssetETF,
	model.AssetIndex,
	model.AssetCrypto,
	model.AssetForex,
	model.AssetCommodity,
}

func (c *Config) applyDefaults() {
	// Feed defaults
	if c.Feed.HeartbeatInterval == 0 {
		c.Feed.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Feed.ReconnectDelay == 0 {
		c.Feed.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Feed.MaxReconnectAttempts == 0 {
		c.Feed.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultFeedBufferSize
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if c.Redis.QuoteTTL == 0 {
		c.Redis.QuoteTTL = DefaultQuoteTTL
	}

	// Monitor defaults
	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = DefaultMonitorInterval
	}
	if c.Monitor.SymbolLimit == 0 {
		c.Monitor.SymbolLimit = DefaultSymbolLimit
	}
	if c.Monitor.BackfillTimeout == 0 {
		c.Monitor.BackfillTimeout = DefaultBackfillTimeout
	}
	if c.Monitor.BackfillConcurrency == 0 {
		c.Monitor.BackfillConcurrency = DefaultBackfillConcurrency
	}
	if len(c.Monitor.AllowedTypes) == 0 {
		c.Monitor.AllowedTypes = append([]string(nil), DefaultAllowedTypes...)
	}

	// Sessions defaults
	if c.Sessions.MaxIdle == 0 {
		c.Sessions.MaxIdle = DefaultSessionMaxIdle
	}
	if c.Sessions.CleanupInterval == 0 {
		c.Sessions.CleanupInterval = DefaultCleanupInterval
	}

	// Status defaults
	if c.Status.Port == 0 {
		c.Status.Port = DefaultStatusPort
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
