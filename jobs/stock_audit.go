package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/rvgrafica/rvgrafica-erp/internal/inventory"
	jobmetrics "github.com/rvgrafica/rvgrafica-erp/internal/jobs"
)

// StockAuditor exposes the inventory checks run by the audit.
type StockAuditor interface {
	VerifyStock(ctx context.Context) ([]inventory.StockDiscrepancy, error)
	ListBelowMinimum(ctx context.Context) ([]inventory.Material, error)
}

// StockAuditJob reports stock drift and materials below their minimum.
type StockAuditJob struct {
	Inventory StockAuditor
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewStockAuditJob initialises the stock audit handler.
func NewStockAuditJob(inv StockAuditor, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockAuditJob {
	return &StockAuditJob{Inventory: inv, Logger: logger, Metrics: metrics}
}

// Handle runs both checks concurrently.
func (j *StockAuditJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Inventory == nil {
		return errors.New("stock audit: handler not configured")
	}
	tracker := j.Metrics.Track(TaskStockAudit)
	defer func() { err = tracker.End(err) }()

	logger := jobLogger(j.Logger, TaskStockAudit)
	var (
		drift []inventory.StockDiscrepancy
		low   []inventory.Material
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		drift, err = j.Inventory.VerifyStock(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		low, err = j.Inventory.ListBelowMinimum(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("stock audit failed", slog.Any("error", err))
		return err
	}
	for _, m := range low {
		logger.Warn("material below minimum stock",
			slog.Int64("material_id", m.ID),
			slog.String("name", m.Name),
			slog.String("current_stock", m.CurrentStock.String()),
			slog.String("minimum_stock", m.MinimumStock.String()),
		)
	}
	j.Metrics.AddFindings(TaskStockAudit, "stock_drift", len(drift))
	j.Metrics.AddFindings(TaskStockAudit, "below_minimum", len(low))
	logger.Info("stock audited", slog.Int("drift", len(drift)), slog.Int("below_minimum", len(low)))
	return nil
}
