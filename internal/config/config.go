package config

import (
	"log/slog"
	"time"
)

// Config is the root configuration for the ingest and query tools.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Database DBConfig       `yaml:"database"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Backfill BackfillConfig `yaml:"backfill"`
	Query    QueryConfig    `yaml:"query"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InstanceConfig identifies this process in logs.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// DBConfig holds the market database connection.
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

// IngestConfig holds batch writer settings.
type IngestConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// BackfillConfig holds settings for historical loads.
type BackfillConfig struct {
	Concurrency      int     `yaml:"concurrency"`        // instruments loaded in parallel
	BatchesPerSecond float64 `yaml:"batches_per_second"` // 0 disables pacing
}

// QueryConfig holds query engine settings.
type QueryConfig struct {
	BatchWindow time.Duration `yaml:"batch_window"` // max span fetched per Retrieve round trip
	Timeout     time.Duration `yaml:"timeout"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// SlogLevel maps Level to a slog level. Unknown values map to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
