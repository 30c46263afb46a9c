package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/mms-dairy/mms/cmd/mms/cli"
	"github.com/mms-dairy/mms/internal/app"
	"github.com/mms-dairy/mms/internal/inventory"
	"github.com/mms-dairy/mms/internal/masterdata"
	"github.com/mms-dairy/mms/internal/observability"
	"github.com/mms-dairy/mms/internal/platform/cache"
	"github.com/mms-dairy/mms/internal/platform/db"
	"github.com/mms-dairy/mms/internal/sales"
	"github.com/mms-dairy/mms/internal/shared"
	"github.com/mms-dairy/mms/jobs"
	"github.com/mms-dairy/mms/migrations"
)

const usage = `usage: mms [command]

commands:
  serve                         run the HTTP API (default)
  migrate                       apply pending schema migrations
  reconcile [-json]             compare stock rows with the movement log
  enqueue <job> [-date YYYY-MM-DD] [-retention 168h]
                                enqueue subscriptions:generate, ledger:reconcile or idempotency:cleanup
  queue                         print default queue statistics
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	command, args := "serve", []string(nil)
	if len(os.Args) > 1 {
		command, args = os.Args[1], os.Args[2:]
	}

	switch command {
	case "serve":
		err = serve(ctx, stop, cfg, logger)
	case "migrate":
		err = migrate(ctx, cfg, logger)
	case "reconcile":
		os.Exit(reconcile(ctx, cfg, logger, args))
	case "enqueue":
		err = enqueue(ctx, cfg, logger, args)
	case "queue":
		err = queueStats(ctx, cfg)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(command, slog.Any("error", err))
		os.Exit(1)
	}
}

func connectPostgres(ctx context.Context, cfg *app.Config) (*pgxpool.Pool, error) {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolConfig())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := connectPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := migrations.Apply(ctx, pool)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", slog.Any("names", applied))
	return nil
}

func reconcile(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	pool, err := connectPostgres(ctx, cfg)
	if err != nil {
		logger.Error("reconcile", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	service := inventory.NewService(inventory.NewRepository(pool, cfg.TxConfig()), inventory.NewLedger(inventory.LedgerConfig{Logger: logger}), nil, logger)
	return cli.ReconcileCommand(ctx, service, cli.ReconcileOptions{JSONOutput: *jsonOutput})
}

func enqueue(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		return errors.New("enqueue: job name required")
	}
	name := args[0]
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	date := fs.String("date", "", "delivery day for subscriptions:generate (YYYY-MM-DD)")
	retention := fs.Duration("retention", cfg.KeyRetention, "key retention for idempotency:cleanup")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	opts := cli.TriggerOptions{Retention: *retention}
	if *date != "" {
		day, err := time.Parse(time.DateOnly, *date)
		if err != nil {
			return fmt.Errorf("enqueue: invalid date %q", *date)
		}
		opts.Date = day
	}

	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()
	info, err := jobsCLI.Trigger(ctx, name, opts)
	if err != nil {
		return err
	}
	logger.Info("job enqueued", slog.String("job", name), slog.String("task_id", info.ID), slog.String("queue", info.Queue))
	return nil
}

func queueStats(ctx context.Context, cfg *app.Config) error {
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() { _ = jobsCLI.Close() }()
	stats, err := jobsCLI.InspectQueue(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	return nil
}

func newLocker(cfg *app.Config, client *redis.Client) shared.Locker {
	if !cfg.LedgerRedisLocks || client == nil {
		return shared.NoopLocker{}
	}
	return shared.NewRedisLocker(client, cfg.LedgerLockTimeout*2, cfg.LedgerLockWait)
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := connectPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, 0)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	snapshots := inventory.NewSnapshotCache(redisClient, cfg.StockCacheTTL, logger)

	ledger := inventory.NewLedger(inventory.LedgerConfig{
		Locker:      newLocker(cfg, redisClient),
		Idempotency: shared.NewIdempotencyStore(dbpool),
		Audit:       shared.NewAuditLogger(dbpool),
		Metrics:     metrics,
		Listeners:   []inventory.MovementListener{snapshots},
		Logger:      logger,
	})

	masterDataService := masterdata.NewService(masterdata.NewRepository(dbpool))
	inventoryService := inventory.NewService(inventory.NewRepository(dbpool, cfg.TxConfig()), ledger, snapshots, logger)
	salesService := sales.NewService(sales.NewRepository(dbpool, cfg.TxConfig()), ledger, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		MasterDataHandler: masterdata.NewHandler(logger, masterDataService),
		InventoryHandler:  inventory.NewHandler(logger, inventoryService),
		SalesHandler:      sales.NewHandler(logger, salesService),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
