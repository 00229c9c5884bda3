// Package database provides encrypted SQLite connection management and
// embedded schema migrations for the daemon's single on-disk database.
package database

import (
	"fmt"
	"time"
)

// Config holds connection settings for the single SQLite database file.
type Config struct {
	Path          string
	BusyTimeoutMs int

	// Connection pool settings for the read pool. The write path always
	// uses exactly one connection (see Client).
	MaxOpenReadConns int
	ConnMaxLifetime  time.Duration
}

// DefaultConfig returns production-ready defaults, generalizing the
// teacher's DB_* environment default pattern to a single-file SQLite
// database instead of a Postgres connection.
func DefaultConfig(path string) Config {
	return Config{
		Path:             path,
		BusyTimeoutMs:    5000,
		MaxOpenReadConns: 8,
		ConnMaxLifetime:  time.Hour,
	}
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.BusyTimeoutMs < 0 {
		return fmt.Errorf("busy timeout must not be negative")
	}
	if c.MaxOpenReadConns < 1 {
		return fmt.Errorf("max open read conns must be at least 1")
	}
	return nil
}
