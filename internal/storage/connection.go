// Package storage provides the PostgreSQL-backed staging store for vinsync.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const connectTimeout = 5 * time.Second

// ErrNoDatabaseConnection is returned when a store is constructed without a connection.
var ErrNoDatabaseConnection = errors.New("database connection is required")

// Connection wraps *sql.DB with pool configuration applied from Config.
// A single Connection is shared by every store and constructed once per
// process; it is safe for concurrent use.
type Connection struct {
	DB     *sql.DB
	config *Config
}

// NewConnection opens a PostgreSQL connection pool, applies the pool settings
// from cfg and verifies connectivity with a bounded ping.
func NewConnection(cfg *Config) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage configuration: %w", err)
	}

	db, err := sql.Open("postgres", cfg.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Connection{DB: db, config: cfg}, nil
}

// ExecContext executes a statement through the underlying pool.
func (c *Connection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.DB.ExecContext(ctx, query, args...)
}

// QueryContext runs a query through the underlying pool.
func (c *Connection) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.DB.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query through the underlying pool.
func (c *Connection) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.DB.QueryRowContext(ctx, query, args...)
}

// BeginTx starts a transaction.
func (c *Connection) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.DB.BeginTx(ctx, opts)
}

// HealthCheck verifies database connectivity.
func (c *Connection) HealthCheck(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close closes the database connection pool gracefully.
// This method is safe to call multiple times.
func (c *Connection) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}

	return nil
}
