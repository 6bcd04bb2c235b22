package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/rvgrafica/rvgrafica-erp/cmd/erp/cli"
	"github.com/rvgrafica/rvgrafica-erp/internal/accounting"
	"github.com/rvgrafica/rvgrafica-erp/internal/app"
	"github.com/rvgrafica/rvgrafica-erp/internal/contacts"
	"github.com/rvgrafica/rvgrafica-erp/internal/documents"
	"github.com/rvgrafica/rvgrafica-erp/internal/expenses"
	"github.com/rvgrafica/rvgrafica-erp/internal/finance"
	"github.com/rvgrafica/rvgrafica-erp/internal/integration"
	"github.com/rvgrafica/rvgrafica-erp/internal/inventory"
	"github.com/rvgrafica/rvgrafica-erp/internal/observability"
	"github.com/rvgrafica/rvgrafica-erp/internal/platform/cache"
	"github.com/rvgrafica/rvgrafica-erp/internal/platform/db"
	"github.com/rvgrafica/rvgrafica-erp/jobs"
)

const usage = `usage:
  erp                              start the HTTP server
  erp migrate                      apply pending schema migrations
  erp jobs trigger <name> [doc-id] enqueue a job (ledger:verify, inventory:stock-audit, documents:recompute)
  erp jobs stats                   show default queue counters`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	args := os.Args[1:]
	if len(args) > 0 {
		if err := runCommand(ctx, cfg, logger, args); err != nil {
			logger.Error("command failed", slog.String("command", args[0]), slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, stop, cfg, logger); err != nil {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	switch args[0] {
	case "migrate":
		version, err := db.Migrate(cfg.PGDSN)
		if err != nil {
			return err
		}
		logger.Info("schema migrated", slog.Uint64("version", uint64(version)))
		return nil
	case "jobs":
		return runJobs(ctx, cfg, args[1:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return errors.New("missing jobs subcommand")
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			return errors.New("jobs trigger: missing job name")
		}
		var documentID int64
		if len(args) > 2 {
			documentID, err = strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("jobs trigger: invalid document id %q", args[2])
			}
		}
		info, err := jobsCLI.Trigger(ctx, args[1], documentID)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return nil
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return nil
	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown jobs subcommand %q", args[0])
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, cfg.PGDSN, 0)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, 0)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	domainMetrics := observability.NewDomainMetrics(metrics.Registerer())

	contactsService := contacts.NewService(contacts.NewRepository(dbpool), logger)

	accountingService := accounting.NewService(accounting.NewRepository(dbpool), logger)
	accountingService.WithMetrics(domainMetrics)

	hooks := integration.NewHooks(accountingService, contactsService, cfg.Rounding(), logger)

	documentsService := documents.NewService(documents.NewRepository(dbpool), documents.ServiceConfig{
		DefaultRates:     cfg.Rates(),
		Rounding:         cfg.Rounding(),
		MaxNumberRetries: cfg.NumberingMaxRetries,
	}, hooks, logger)
	documentsService.WithCache(documents.NewTotalsCache(redisClient, cfg.TotalsCacheTTL))
	documentsService.WithMetrics(domainMetrics)

	financeService := finance.NewService(finance.NewRepository(dbpool), hooks, logger)

	expensesService := expenses.NewService(expenses.NewRepository(dbpool), hooks, expenses.ServiceConfig{
		DefaultVATRate: cfg.Rates().VAT,
		Rounding:       cfg.Rounding(),
	}, logger)

	inventoryService := inventory.NewService(inventory.NewRepository(dbpool), inventory.ServiceConfig{
		AllowNegativeStock: cfg.InventoryAllowNegative,
	}, logger)
	inventoryService.WithMetrics(domainMetrics)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		ContactsHandler:   contacts.NewHandler(logger, contactsService),
		DocumentsHandler:  documents.NewHandler(logger, documentsService).WithEnqueuer(jobClient),
		FinanceHandler:    finance.NewHandler(logger, financeService),
		ExpensesHandler:   expenses.NewHandler(logger, expensesService),
		InventoryHandler:  inventory.NewHandler(logger, inventoryService),
		AccountingHandler: accounting.NewHandler(logger, accountingService),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
		Ready:             readiness(dbpool, redisClient),
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

func readiness(pool *pgxpool.Pool, client *redis.Client) func(*http.Request) error {
	return func(r *http.Request) error {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}
}
