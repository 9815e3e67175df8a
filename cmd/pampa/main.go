package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pampa-erp/pampa-erp/internal/app"
	"github.com/pampa-erp/pampa-erp/internal/audit"
	"github.com/pampa-erp/pampa-erp/internal/auth"
	"github.com/pampa-erp/pampa-erp/internal/firms"
	"github.com/pampa-erp/pampa-erp/internal/observability"
	"github.com/pampa-erp/pampa-erp/internal/periods"
	"github.com/pampa-erp/pampa-erp/internal/platform/cache"
	"github.com/pampa-erp/pampa-erp/internal/platform/db"
	"github.com/pampa-erp/pampa-erp/internal/reports"
	"github.com/pampa-erp/pampa-erp/internal/shared"
	"github.com/pampa-erp/pampa-erp/internal/valuation"
	"github.com/pampa-erp/pampa-erp/internal/works"
	"github.com/pampa-erp/pampa-erp/jobs"
)

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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "pampa_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	authService := auth.NewService(auth.NewRepository(pool))
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	auditLogger := audit.NewLogger(pool)
	auditService := audit.NewService(audit.NewRepository(pool))
	auditHandler := audit.NewHandler(logger, auditService)

	firmsService := firms.NewService(firms.NewRepository(pool))
	firmsHandler := firms.NewHandler(logger, firmsService)

	worksService := works.NewService(works.NewRepository(pool), auditLogger)
	worksHandler := works.NewHandler(logger, worksService)

	valuationService := valuation.NewService(logger, valuation.NewRepository(pool), firmsService, valuation.NewMarketPrices(pool), auditLogger)
	valuationHandler := valuation.NewHandler(logger, valuationService, shared.NewIdempotencyStore(pool))

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	periodsService := periods.NewService(logger, periods.NewRepository(pool, auditLogger), worksService, jobsClient, reportCache)
	periodsHandler := periods.NewHandler(logger, periodsService)

	reportsService := reports.NewService(reportCache, periodsService, worksService, valuationService)
	reportsHandler := reports.NewHandler(logger, reportsService)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterDeps{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Metrics:          metrics,
		AuthService:      authService,
		AuthHandler:      authHandler,
		FirmsHandler:     firmsHandler,
		PeriodsHandler:   periodsHandler,
		WorksHandler:     worksHandler,
		ValuationHandler: valuationHandler,
		ReportsHandler:   reportsHandler,
		AuditHandler:     auditHandler,
		JobsHandler:      jobsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
