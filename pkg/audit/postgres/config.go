package postgres

import "time"

// Config holds connection pool settings for the audit ledger.
type Config struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// MaxConns is the maximum pool size (default: 10).
	MaxConns int32

	// MinConns is the minimum number of idle connections (default: 1).
	MinConns int32

	// MaxConnLifetime recycles connections older than this (default: 5m).
	MaxConnLifetime time.Duration

	// MigrateOnStart applies embedded schema migrations in New.
	MigrateOnStart bool
}

func (c *Config) defaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MinConns == 0 {
		c.MinConns = 1
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = 5 * time.Minute
	}
}
