package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const migrateLockID = 7462839

// ErrMigrationRunning is returned when another process holds the migration lock.
var ErrMigrationRunning = errors.New("another migrator is currently running")

// SchemaChecksum is the sha256 of the embedded DDL.
func SchemaChecksum() string {
	sum := sha256.Sum256([]byte(schemaSQL))
	return hex.EncodeToString(sum[:])
}

// Migrate applies the embedded schema under a session advisory lock and records
// its checksum in schema_migrations. It reports false when the recorded
// checksum already matches and nothing was run.
func Migrate(ctx context.Context, pool *pgxpool.Pool) (bool, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", migrateLockID).Scan(&locked); err != nil {
		return false, fmt.Errorf("failed to query advisory lock: %w", err)
	}
	if !locked {
		return false, ErrMigrationRunning
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			checksum   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return false, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	checksum := SchemaChecksum()
	var recorded string
	err = conn.QueryRow(ctx, "SELECT checksum FROM schema_migrations WHERE version = 'schema'").Scan(&recorded)
	switch {
	case err == nil && recorded == checksum:
		return false, nil
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		return false, fmt.Errorf("failed to read schema_migrations: %w", err)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, schemaSQL); err != nil {
		return false, fmt.Errorf("failed to apply schema: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO schema_migrations (version, checksum) VALUES ('schema', $1)
		ON CONFLICT (version) DO UPDATE SET checksum = EXCLUDED.checksum, applied_at = now()
	`, checksum); err != nil {
		return false, fmt.Errorf("failed to record migration: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit migration: %w", err)
	}
	return true, nil
}
