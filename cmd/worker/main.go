package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/rvgrafica/rvgrafica-erp/internal/accounting"
	"github.com/rvgrafica/rvgrafica-erp/internal/app"
	"github.com/rvgrafica/rvgrafica-erp/internal/contacts"
	"github.com/rvgrafica/rvgrafica-erp/internal/documents"
	"github.com/rvgrafica/rvgrafica-erp/internal/integration"
	"github.com/rvgrafica/rvgrafica-erp/internal/inventory"
	jobmetrics "github.com/rvgrafica/rvgrafica-erp/internal/jobs"
	"github.com/rvgrafica/rvgrafica-erp/internal/observability"
	"github.com/rvgrafica/rvgrafica-erp/internal/platform/cache"
	"github.com/rvgrafica/rvgrafica-erp/internal/platform/db"
	"github.com/rvgrafica/rvgrafica-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, 0)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, 0)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	domainMetrics := observability.NewDomainMetrics(metrics.Registerer())
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	accountingService := accounting.NewService(accounting.NewRepository(pool), logger)
	accountingService.WithMetrics(domainMetrics)
	contactsService := contacts.NewService(contacts.NewRepository(pool), logger)
	hooks := integration.NewHooks(accountingService, contactsService, cfg.Rounding(), logger)

	documentsService := documents.NewService(documents.NewRepository(pool), documents.ServiceConfig{
		DefaultRates:     cfg.Rates(),
		Rounding:         cfg.Rounding(),
		MaxNumberRetries: cfg.NumberingMaxRetries,
	}, hooks, logger)
	documentsService.WithCache(documents.NewTotalsCache(redisClient, cfg.TotalsCacheTTL))
	documentsService.WithMetrics(domainMetrics)

	inventoryService := inventory.NewService(inventory.NewRepository(pool), inventory.ServiceConfig{
		AllowNegativeStock: cfg.InventoryAllowNegative,
	}, logger)

	ledgerJob := jobs.NewLedgerVerifyJob(accountingService, logger, jobMetrics)
	stockJob := jobs.NewStockAuditJob(inventoryService, logger, jobMetrics)
	recomputeJob := jobs.NewRecomputeJob(documentsService, logger, jobMetrics)

	now := time.Now()
	ledgerTask, err := jobs.NewLedgerVerifyTask(now)
	if err != nil {
		logger.Error("build ledger verify task", slog.Any("error", err))
		os.Exit(1)
	}
	stockTask, err := jobs.NewStockAuditTask(now)
	if err != nil {
		logger.Error("build stock audit task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerVerify, Handler: ledgerJob.Handle},
			{Type: jobs.TaskStockAudit, Handler: stockJob.Handle},
			{Type: jobs.TaskDocumentsRecompute, Handler: recomputeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 1 * * *", Task: ledgerTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 2 * * *", Task: stockTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadTimeout: 5 * time.Second}
	go func() {
		logger.Info("starting worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
