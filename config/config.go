package config

import (
	"fmt"
	"time"

	"github.com/audiolink/audiolink/connection"
)

// Config is the root configuration for an audiolink client process.
type Config struct {
	Client Client       `yaml:"client"`
	Nodes  []NodeConfig `yaml:"nodes"`
	Tuning TuningConfig `yaml:"tuning"`
	Stats  StatsConfig  `yaml:"stats"`
}

// Client identifies the bot this process connects on behalf of.
type Client struct {
	UserID     string `yaml:"user_id"`
	ShardCount int    `yaml:"shard_count"`
}

// NodeConfig describes one audio node.
type NodeConfig struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	Secure   bool   `yaml:"secure"`

	// ResumeTimeout > 0 asks the node to keep the session alive that long
	// after a disconnect so the client can resume it.
	ResumeKey     string        `yaml:"resume_key"`
	ResumeTimeout time.Duration `yaml:"resume_timeout"`

	AutoPlay bool `yaml:"auto_play"`
}

// TuningConfig holds connection behavior shared by all nodes.
type TuningConfig struct {
	BackoffBase      time.Duration `yaml:"backoff_base"`
	BackoffMax       time.Duration `yaml:"backoff_max"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PayloadTimeout   time.Duration `yaml:"payload_timeout"`
	FrameBufferSize  int           `yaml:"frame_buffer_size"`

	RestTimeout    time.Duration `yaml:"rest_timeout"`
	RestMaxRetries int           `yaml:"rest_max_retries"`
}

// StatsConfig holds the optional node-stats persistence settings.
type StatsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
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

// ConnectionConfig assembles the session config for one node from the node
// entry, the shared tuning, and the client identity.
func (c *Config) ConnectionConfig(n NodeConfig) connection.Config {
	return connection.Config{
		Host:             n.Host,
		Port:             n.Port,
		Password:         n.Password,
		Secure:           n.Secure,
		UserID:           c.Client.UserID,
		ShardCount:       c.Client.ShardCount,
		ResumeKey:        n.ResumeKey,
		ResumeTimeout:    n.ResumeTimeout,
		PayloadTimeout:   c.Tuning.PayloadTimeout,
		BackoffBase:      c.Tuning.BackoffBase,
		BackoffMax:       c.Tuning.BackoffMax,
		HandshakeTimeout: c.Tuning.HandshakeTimeout,
		WriteTimeout:     c.Tuning.WriteTimeout,
		FrameBufferSize:  c.Tuning.FrameBufferSize,
	}
}

// RestBaseURL builds the node's HTTP root from host, port, and secure flag.
func (n NodeConfig) RestBaseURL() string {
	scheme := "http"
	if n.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, n.Host, n.Port)
}
