package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rvgrafica/rvgrafica-erp/internal/observability"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetMaterial(ctx context.Context, id int64) (Material, error)
	ListMaterials(ctx context.Context, filter MaterialFilter) ([]Material, int, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, int, error)
	StockDiscrepancies(ctx context.Context) ([]StockDiscrepancy, error)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// Service coordinates inventory operations.
type Service struct {
	repo     RepositoryPort
	allowNeg bool
	validate *validator.Validate
	metrics  *observability.DomainMetrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		allowNeg: cfg.AllowNegativeStock,
		validate: shared.NewValidator(),
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches domain metrics.
func (s *Service) WithMetrics(m *observability.DomainMetrics) {
	s.metrics = m
}

// CreateMaterial stores a material. A non-zero initial stock is recorded as
// the first movement so stock always equals the sum of movements.
func (s *Service) CreateMaterial(ctx context.Context, in CreateMaterialInput) (Material, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Material{}, fmt.Errorf("inventory: %w", err)
	}
	if in.Unit == "" {
		in.Unit = DefaultUnit
	}
	var id int64
	var moved []StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.InsertMaterial(ctx, Material{
			Name:         in.Name,
			SKU:          in.SKU,
			Category:     in.Category,
			Unit:         in.Unit,
			MinimumStock: in.MinimumStock,
			UnitCost:     in.UnitCost,
			CreatedBy:    in.ActorID,
		})
		if err != nil {
			return err
		}
		if in.InitialStock.IsZero() {
			return nil
		}
		mv, err := s.adjustInTx(ctx, tx, AdjustStockInput{
			MaterialID: id,
			Delta:      in.InitialStock,
			Reason:     InitialReason,
			ActorID:    in.ActorID,
		})
		if err != nil {
			return err
		}
		moved = append(moved, mv)
		return nil
	})
	if err != nil {
		return Material{}, err
	}
	s.recordMoved(moved...)
	return s.repo.GetMaterial(ctx, id)
}

// GetMaterial loads a material.
func (s *Service) GetMaterial(ctx context.Context, id int64) (Material, error) {
	return s.repo.GetMaterial(ctx, id)
}

// ListMaterials lists materials ordered by name.
func (s *Service) ListMaterials(ctx context.Context, filter MaterialFilter) ([]Material, int, error) {
	return s.repo.ListMaterials(ctx, filter)
}

// ListBelowMinimum returns every material whose stock is under its minimum.
func (s *Service) ListBelowMinimum(ctx context.Context) ([]Material, error) {
	var out []Material
	offset := 0
	for {
		page, total, err := s.repo.ListMaterials(ctx, MaterialFilter{BelowMinimum: true, Limit: 200, Offset: offset})
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		offset += len(page)
		if len(page) == 0 || offset >= total {
			return out, nil
		}
	}
}

// AdjustStock records a signed stock movement and applies it to the
// material in one transaction. It returns the movement id.
func (s *Service) AdjustStock(ctx context.Context, in AdjustStockInput) (int64, error) {
	var mv StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		mv, err = s.adjustInTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.recordMoved(mv)
	return mv.ID, nil
}

// RecordUsage withdraws material consumed by a production order, referencing
// the order number on the movement.
func (s *Service) RecordUsage(ctx context.Context, in UsageInput) (MaterialUsage, error) {
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return MaterialUsage{}, fmt.Errorf("inventory: %w", err)
	}
	var usage MaterialUsage
	var mv StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.OrderNumber(ctx, in.OrderID)
		if err != nil {
			return err
		}
		orderID := in.OrderID
		mv, err = s.adjustInTx(ctx, tx, AdjustStockInput{
			MaterialID: in.MaterialID,
			Delta:      in.Quantity.Neg(),
			Reason:     UsageReason,
			Reference:  number,
			OrderID:    &orderID,
			ActorID:    in.ActorID,
		})
		if err != nil {
			return err
		}
		usage = MaterialUsage{
			OrderID:    in.OrderID,
			MaterialID: in.MaterialID,
			Quantity:   in.Quantity,
			MovementID: mv.ID,
			CreatedAt:  mv.CreatedAt,
		}
		usage.ID, err = tx.InsertUsage(ctx, usage)
		return err
	})
	if err != nil {
		return MaterialUsage{}, err
	}
	s.recordMoved(mv)
	return usage, nil
}

// ListMovements lists stock movements newest first.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, int, error) {
	return s.repo.ListMovements(ctx, filter)
}

// VerifyStock reports materials whose stock differs from their movements.
func (s *Service) VerifyStock(ctx context.Context) ([]StockDiscrepancy, error) {
	issues, err := s.repo.StockDiscrepancies(ctx)
	if err != nil {
		return nil, err
	}
	for _, issue := range issues {
		s.logger.Error("material stock out of sync with movements",
			slog.Int64("material_id", issue.MaterialID),
			slog.String("name", issue.Name),
			slog.String("current_stock", issue.CurrentStock.String()),
			slog.String("movement_sum", issue.MovementSum.String()),
		)
	}
	return issues, nil
}

func (s *Service) adjustInTx(ctx context.Context, tx TxRepository, in AdjustStockInput) (StockMovement, error) {
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return StockMovement{}, fmt.Errorf("inventory: %w", err)
	}
	if in.Delta.IsZero() {
		return StockMovement{}, ErrInvalidQuantity
	}
	material, err := tx.GetMaterialForUpdate(ctx, in.MaterialID)
	if err != nil {
		return StockMovement{}, err
	}
	stock := material.CurrentStock.Add(in.Delta)
	if !s.allowNeg && stock.IsNegative() {
		return StockMovement{}, fmt.Errorf("%w: %s would drop to %s", ErrNegativeStock, material.Name, stock)
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = DefaultReason
	}
	mv := StockMovement{
		MaterialID:   material.ID,
		Quantity:     in.Delta,
		BalanceAfter: stock,
		Reason:       reason,
		Reference:    in.Reference,
		OrderID:      in.OrderID,
		CreatedBy:    in.ActorID,
		CreatedAt:    s.now(),
	}
	if mv.ID, err = tx.InsertMovement(ctx, mv); err != nil {
		return StockMovement{}, err
	}
	if err := tx.UpdateStock(ctx, material.ID, stock, in.ActorID); err != nil {
		return StockMovement{}, err
	}
	return mv, nil
}

func (s *Service) recordMoved(movements ...StockMovement) {
	for _, mv := range movements {
		s.metrics.StockAdjusted(mv.Direction())
		s.logger.Info("stock adjusted",
			slog.Int64("material_id", mv.MaterialID),
			slog.Int64("movement_id", mv.ID),
			slog.String("quantity", mv.Quantity.String()),
			slog.String("balance", mv.BalanceAfter.String()),
			slog.String("reason", mv.Reason),
		)
	}
}
