// sweep-shifts closes employee shifts left open past their day, once, and exits.
// Meant for cron; the server runs the same sweep on a ticker.
package main

import (
	"context"
	"os"

	"github.com/bsm/redislock"
	"github.com/joho/godotenv"

	"phone-resale/internal/config"
	"phone-resale/internal/core"
	"phone-resale/internal/db"
	"phone-resale/internal/jobs"
	"phone-resale/internal/logging"
	"phone-resale/internal/notify"
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

	var locker *redislock.Client
	if cfg.Redis.Addr != "" {
		if rdb, err := notify.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
			logger.WithError(err).Warn("redis unavailable; sweeping without lock")
		} else {
			defer rdb.Close()
			locker = redislock.New(rdb)
		}
	}

	sweeper := jobs.NewShiftSweeper(core.NewShiftService(pool), locker, logger, cfg.Lifecycle.ShiftSweepInterval)
	closed, err := sweeper.RunOnce(ctx)
	if err != nil {
		logging.LogError(logger, "sweep-shifts", "main", "sweep", nil, err)
		os.Exit(1)
	}
	logger.WithField("closed", closed).Info("sweep finished")
}
