package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	webAdapter "phone-resale/internal/adapters/web"
	"phone-resale/internal/app"
	"phone-resale/internal/config"
	"phone-resale/internal/core"
	"phone-resale/internal/db"
	"phone-resale/internal/jobs"
	"phone-resale/internal/logging"
	"phone-resale/internal/notify"
)

func main() {
	_ = godotenv.Load()

	bootLog := logging.New("info")
	cfg, err := config.Load(".env", "", bootLog)
	if err != nil {
		bootLog.WithError(err).Fatal("config")
	}
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Fatal("database")
	}
	defer pool.Close()

	inspection, err := cfg.InspectionPolicy()
	if err != nil {
		logger.WithError(err).Fatal("inspection policy")
	}
	sales, err := cfg.SalePolicy()
	if err != nil {
		logger.WithError(err).Fatal("sale policy")
	}

	// Redis is optional: without it notifications are dropped and the sweep runs unlocked.
	var notifier core.Notifier = core.NopNotifier()
	var locker *redislock.Client
	if cfg.Redis.Addr != "" {
		rdb, err := notify.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable; notifications disabled")
		} else {
			defer func(c *redis.Client) { _ = c.Close() }(rdb)
			notifier = notify.NewRedisNotifier(rdb, cfg.Redis.NotificationChannel)
			locker = redislock.New(rdb)
		}
	}
	notifier = notify.Logged(notifier, logger)

	audit := core.NewAuditTrail(pool)
	ledger := core.NewLedger(pool, core.NewCategoryResolver())
	inventory := core.NewInventoryService(pool)
	lifecycle := core.NewLifecycleService(pool, inventory, audit, inspection)
	shifts := core.NewShiftService(pool)

	svc := app.NewAppService(app.Services{
		Lifecycle: lifecycle,
		Inventory: inventory,
		Sales:     core.NewSaleService(pool, inventory, lifecycle, ledger, sales),
		Purchases: core.NewPurchaseOrderService(pool, lifecycle, inventory, audit, ledger, notifier),
		Repairs:   core.NewRepairService(pool, lifecycle, inventory, audit, ledger, notifier, sales),
		Ledger:    ledger,
		Shifts:    shifts,
	}, cfg.DefaultLocation())

	sweeper := jobs.NewShiftSweeper(shifts, locker, logger, cfg.Lifecycle.ShiftSweepInterval)
	go sweeper.Run(ctx)

	if cfg.Server.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           webAdapter.NewHandler(svc, cfg.Server.AllowedOrigins, cfg.Server.JWTSecret, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("port", cfg.Server.Port).Info("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("server")
	}
}
