// migrate applies the embedded database schema.
//
// Usage: go run ./cmd/migrate
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"phone-resale/internal/config"
	"phone-resale/internal/db"
	"phone-resale/internal/logging"
)

func main() {
	_ = godotenv.Load()
	logger := logging.New("info")

	cfg, err := config.Load(".env", "", logger)
	if err != nil {
		logger.WithError(err).Fatal("config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Fatal("database")
	}
	defer pool.Close()

	applied, err := db.Migrate(ctx, pool)
	if err != nil {
		logger.WithError(err).Error("migration failed")
		os.Exit(1)
	}
	if applied {
		logger.WithField("checksum", db.SchemaChecksum()).Info("schema applied")
	} else {
		logger.Info("schema up to date")
	}
}
