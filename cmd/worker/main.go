package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mms-dairy/mms/internal/app"
	"github.com/mms-dairy/mms/internal/inventory"
	"github.com/mms-dairy/mms/internal/platform/cache"
	"github.com/mms-dairy/mms/internal/platform/db"
	"github.com/mms-dairy/mms/internal/sales"
	"github.com/mms-dairy/mms/internal/shared"
	"github.com/mms-dairy/mms/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolConfig())
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, 0)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var locker shared.Locker = shared.NoopLocker{}
	if cfg.LedgerRedisLocks {
		locker = shared.NewRedisLocker(redisClient, cfg.LedgerLockTimeout*2, cfg.LedgerLockWait)
	}
	idempotency := shared.NewIdempotencyStore(pool)
	snapshots := inventory.NewSnapshotCache(redisClient, cfg.StockCacheTTL, logger)
	ledger := inventory.NewLedger(inventory.LedgerConfig{
		Locker:      locker,
		Idempotency: idempotency,
		Audit:       shared.NewAuditLogger(pool),
		Listeners:   []inventory.MovementListener{snapshots},
		Logger:      logger,
	})

	inventoryService := inventory.NewService(inventory.NewRepository(pool, cfg.TxConfig()), ledger, snapshots, logger)
	salesService := sales.NewService(sales.NewRepository(pool, cfg.TxConfig()), ledger, logger)

	generateJob := jobs.NewSubscriptionGenerateJob(salesService, cfg.SystemActorID, logger, nil)
	reconcileJob := jobs.NewLedgerReconcileJob(inventoryService, logger, nil)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotency, logger, nil)

	generateTask, err := jobs.NewSubscriptionGenerateTask(time.Time{})
	if err != nil {
		logger.Error("build subscription task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.KeyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSubscriptionGenerate, Handler: generateJob.Handle},
			{Type: jobs.TaskLedgerReconcile, Handler: reconcileJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SubscriptionCron, Task: generateTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.ReconcileCron, Task: jobs.NewLedgerReconcileTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: cfg.CleanupCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
