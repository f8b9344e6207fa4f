package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Client.UserID == "" {
		return errors.New("client.user_id is required")
	}
	if c.Client.ShardCount < 1 {
		return errors.New("client.shard_count must be >= 1")
	}

	if len(c.Nodes) == 0 {
		return errors.New("at least one node is required")
	}
	seen := make(map[string]bool, len(c.Nodes))
	for i, n := range c.Nodes {
		prefix := fmt.Sprintf("nodes[%d]", i)
		if n.Name == "" {
			return fmt.Errorf("%s.name is required", prefix)
		}
		if seen[n.Name] {
			return fmt.Errorf("%s.name %q is duplicated", prefix, n.Name)
		}
		seen[n.Name] = true
		if n.Host == "" {
			return fmt.Errorf("%s.host is required", prefix)
		}
		if n.Port < 1 || n.Port > 65535 {
			return fmt.Errorf("%s.port must be between 1 and 65535, got %d", prefix, n.Port)
		}
		if n.Password == "" {
			return fmt.Errorf("%s.password is required", prefix)
		}
		if n.ResumeTimeout < 0 {
			return fmt.Errorf("%s.resume_timeout cannot be negative", prefix)
		}
	}

	if c.Tuning.BackoffMax < c.Tuning.BackoffBase {
		return errors.New("tuning.backoff_max cannot be less than tuning.backoff_base")
	}
	if c.Tuning.FrameBufferSize < 1 {
		return errors.New("tuning.frame_buffer_size must be >= 1")
	}

	if c.Stats.Enabled {
		if err := c.Stats.Database.validate("stats.database"); err != nil {
			return err
		}
		if c.Stats.BatchSize < 1 {
			return errors.New("stats.batch_size must be >= 1")
		}
		if c.Stats.BufferSize < 1 {
			return errors.New("stats.buffer_size must be >= 1")
		}
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
