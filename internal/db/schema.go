package db

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the embedded DDL.
func Schema() string { return schemaSQL }

// ApplySchema runs the embedded DDL. It is safe to run repeatedly.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

//go:embed seed.sql
var seedSQL string

// Seed inserts starter reference data: models, accessories, checklist items,
// a supplier and cash accounts. Existing rows are left alone.
func Seed(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, seedSQL); err != nil {
		return fmt.Errorf("failed to seed reference data: %w", err)
	}
	return nil
}
