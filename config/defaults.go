package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultNodePort         = 2333
	DefaultShardCount       = 1
	DefaultBackoffBase      = 1 * time.Second
	DefaultBackoffMax       = 3 * time.Minute
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultPayloadTimeout   = 10 * time.Second
	DefaultFrameBufferSize  = 512
	DefaultRestTimeout      = 30 * time.Second
	DefaultRestMaxRetries   = 3
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultBatchSize        = 100
	DefaultFlushInterval    = 10 * time.Second
	DefaultBufferSize       = 1000
)

func (c *Config) applyDefaults() {
	if c.Client.ShardCount == 0 {
		c.Client.ShardCount = DefaultShardCount
	}

	for i := range c.Nodes {
		if c.Nodes[i].Port == 0 {
			c.Nodes[i].Port = DefaultNodePort
		}
	}

	// Tuning defaults
	if c.Tuning.BackoffBase == 0 {
		c.Tuning.BackoffBase = DefaultBackoffBase
	}
	if c.Tuning.BackoffMax == 0 {
		c.Tuning.BackoffMax = DefaultBackoffMax
	}
	if c.Tuning.HandshakeTimeout == 0 {
		c.Tuning.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Tuning.WriteTimeout == 0 {
		c.Tuning.WriteTimeout = DefaultWriteTimeout
	}
	if c.Tuning.PayloadTimeout == 0 {
		c.Tuning.PayloadTimeout = DefaultPayloadTimeout
	}
	if c.Tuning.FrameBufferSize == 0 {
		c.Tuning.FrameBufferSize = DefaultFrameBufferSize
	}
	if c.Tuning.RestTimeout == 0 {
		c.Tuning.RestTimeout = DefaultRestTimeout
	}
	if c.Tuning.RestMaxRetries == 0 {
		c.Tuning.RestMaxRetries = DefaultRestMaxRetries
	}

	// Stats defaults
	if c.Stats.Enabled {
		applyDBDefaults(&c.Stats.Database)
		if c.Stats.BatchSize == 0 {
			c.Stats.BatchSize = DefaultBatchSize
		}
		if c.Stats.FlushInterval == 0 {
			c.Stats.FlushInterval = DefaultFlushInterval
		}
		if c.Stats.BufferSize == 0 {
			c.Stats.BufferSize = DefaultBufferSize
		}
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
