package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 10
	DefaultMinConns            = 2
	DefaultBatchSize           = 500
	DefaultFlushInterval       = 1 * time.Second
	DefaultBufferSize          = 10000
	DefaultBackfillConcurrency = 4
	DefaultQueryBatchWindow    = 24 * time.Hour
	DefaultQueryTimeout        = 30 * time.Second
	DefaultLogLevel            = "info"
)

func (c *Config) applyDefaults() {
	applyDBDefaults(&c.Database)

	// Ingest defaults
	if c.Ingest.BatchSize == 0 {
		c.Ingest.BatchSize = DefaultBatchSize
	}
	if c.Ingest.FlushInterval == 0 {
		c.Ingest.FlushInterval = DefaultFlushInterval
	}
	if c.Ingest.BufferSize == 0 {
		c.Ingest.BufferSize = DefaultBufferSize
	}

	// Backfill defaults
	if c.Backfill.Concurrency == 0 {
		c.Backfill.Concurrency = DefaultBackfillConcurrency
	}

	// Query defaults
	if c.Query.BatchWindow == 0 {
		c.Query.BatchWindow = DefaultQueryBatchWindow
	}
	if c.Query.Timeout == 0 {
		c.Query.Timeout = DefaultQueryTimeout
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
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
