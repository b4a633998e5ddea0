// Copyright 2025 ZeroXBridge
//
// Journal client: the pooled PostgreSQL handle shared by every repository,
// plus schema migration support. Migrations are embedded .sql files applied
// in filename order; the runner records each applied version itself, inside
// the same transaction as the migration body, so a crash mid-migration
// leaves neither half behind.

package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/GideonBature/ZeroXBridge-Sequencer/pkg/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Client is the journal's database handle with connection pooling.
type Client struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewClient opens the journal connection pool. A nil logger falls back to
// slog's default.
func NewClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database URL cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MinConns)
	db.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.MaxLifetime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("journal connected",
		"max_conns", cfg.Database.MaxConns, "min_conns", cfg.Database.MinConns)

	return &Client{db: db, logger: logger}, nil
}

// DB returns the underlying *sql.DB for direct access
func (c *Client) DB() *sql.DB {
	return c.db
}

// Close closes the journal connection pool
func (c *Client) Close() error {
	if c.db != nil {
		c.logger.Info("closing journal connection")
		return c.db.Close()
	}
	return nil
}

// Ping verifies the journal connection is alive
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// ============================================================================
// MIGRATION SUPPORT
// ============================================================================

// MigrateUp applies every embedded migration that is not yet recorded in
// schema_migrations. The bookkeeping table is created first, so a fresh
// journal and an up-to-date one take the same path.
func (c *Client) MigrateUp(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("failed to ensure migration table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := c.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(files)

	pending := 0
	for _, file := range files {
		version := strings.TrimSuffix(path.Base(file), ".sql")
		if applied[version] {
			continue
		}

		body, err := migrationsFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", version, err)
		}

		// The migration body and its version record commit together.
		err = c.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return fmt.Errorf("failed to apply migration %s: %w", version, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
				return fmt.Errorf("failed to record migration %s: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		c.logger.Info("applied journal migration", "version", version)
		pending++
	}

	c.logger.Info("journal schema up to date",
		"migrations", len(files), "applied_now", pending)
	return nil
}

// ============================================================================
// TRANSACTION AND QUERY HELPERS
// ============================================================================

// withTx runs fn inside one transaction, committing on success and rolling
// back on any error. Repositories use it for every write that must land
// atomically with another.
func (c *Client) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ExecContext executes a query that doesn't return rows
func (c *Client) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows
func (c *Client) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query that returns at most one row
func (c *Client) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}
