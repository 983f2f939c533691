package config

import (
	"errors"
	"fmt"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Ingest.BatchSize < 1 {
		return errors.New("ingest.batch_size must be >= 1")
	}
	if c.Ingest.BufferSize < 1 {
		return errors.New("ingest.buffer_size must be >= 1")
	}
	if c.Ingest.FlushInterval <= 0 {
		return errors.New("ingest.flush_interval must be > 0")
	}

	if c.Backfill.Concurrency < 1 {
		return errors.New("backfill.concurrency must be >= 1")
	}
	if c.Backfill.BatchesPerSecond < 0 {
		return fmt.Errorf("backfill.batches_per_second must be >= 0, got %g", c.Backfill.BatchesPerSecond)
	}

	if c.Query.BatchWindow <= 0 {
		return errors.New("query.batch_window must be > 0")
	}
	if c.Query.Timeout <= 0 {
		return errors.New("query.timeout must be > 0")
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
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
