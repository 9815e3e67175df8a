package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pampa-erp/pampa-erp/internal/app"
	"github.com/pampa-erp/pampa-erp/internal/audit"
	"github.com/pampa-erp/pampa-erp/internal/firms"
	"github.com/pampa-erp/pampa-erp/internal/observability"
	"github.com/pampa-erp/pampa-erp/internal/periods"
	"github.com/pampa-erp/pampa-erp/internal/platform/db"
	"github.com/pampa-erp/pampa-erp/internal/shared"
	"github.com/pampa-erp/pampa-erp/internal/valuation"
	"github.com/pampa-erp/pampa-erp/internal/works"
	"github.com/pampa-erp/pampa-erp/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditLogger := audit.NewLogger(pool)
	firmsService := firms.NewService(firms.NewRepository(pool))
	worksService := works.NewService(works.NewRepository(pool), auditLogger)
	valuationService := valuation.NewService(logger, valuation.NewRepository(pool), firmsService, valuation.NewMarketPrices(pool), auditLogger)
	periodsService := periods.NewService(logger, periods.NewRepository(pool, auditLogger), worksService, nil, nil)

	metrics := observability.NewMetrics()

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(time.Now().UTC())
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{
				Type: jobs.TaskCloseValuation,
				Handler: metrics.InstrumentJob(jobs.TaskCloseValuation,
					jobs.NewCloseValuationHandler(logger, periodsService, firmsService, valuationService)),
			},
			{
				Type: jobs.TaskIdempotencyCleanup,
				Handler: metrics.InstrumentJob(jobs.TaskIdempotencyCleanup,
					jobs.NewIdempotencyCleanupHandler(logger, shared.NewIdempotencyStore(pool))),
			},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
