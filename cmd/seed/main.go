// seed loads starter reference data (models, accessories, checklist, cash accounts).
// Run it after migrate on a fresh database, or to restore wiped reference rows.
//
// Usage: go run ./cmd/seed
package main

import (
	"context"

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

	if err := db.Seed(ctx, pool); err != nil {
		logger.WithError(err).Fatal("seed")
	}
	logger.Info("reference data seeded")
}
