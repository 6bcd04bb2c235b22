package expenses

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/rvgrafica/rvgrafica-erp/internal/accounting"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// RepositoryPort abstracts expense persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetExpense(ctx context.Context, id int64) (Expense, error)
	ListExpenses(ctx context.Context, filter ListFilter) ([]Expense, int, error)
	TotalsByCategory(ctx context.Context, filter ListFilter) ([]CategoryTotal, error)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	DefaultVATRate decimal.Decimal
	Rounding       shared.RoundingMode
}

// Service records operating expenses.
type Service struct {
	repo        RepositoryPort
	integration IntegrationHandler
	vatRate     decimal.Decimal
	rounding    shared.RoundingMode
	validate    *validator.Validate
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, integration IntegrationHandler, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	rate := cfg.DefaultVATRate
	if rate.IsZero() {
		rate = DefaultVATRate
	}
	rounding := cfg.Rounding
	if rounding == "" {
		rounding = shared.RoundHalfUp
	}
	return &Service{
		repo:        repo,
		integration: integration,
		vatRate:     rate,
		rounding:    rounding,
		validate:    shared.NewValidator(),
		logger:      logger,
		now:         time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Rounding is the rounding mode applied to expense VAT.
func (s *Service) Rounding() shared.RoundingMode {
	return s.rounding
}

// RecordExpense stores an expense and hands it to the integration handler
// once committed. When posting fails the stored expense is still returned
// together with the error; RepostExpense retries.
func (s *Service) RecordExpense(ctx context.Context, in RecordInput) (Expense, error) {
	in.Category = accounting.ExpenseCategory(strings.ToUpper(string(in.Category)))
	in.Description = strings.TrimSpace(in.Description)
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Expense{}, fmt.Errorf("expenses: %w", err)
	}
	if !in.Category.Valid() {
		return Expense{}, fmt.Errorf("expenses: unknown category %q: %w", in.Category, shared.ErrValidation)
	}
	exp := Expense{
		Date:        in.Date,
		Category:    in.Category,
		Description: in.Description,
		SupplierID:  in.SupplierID,
		Amount:      in.Amount,
		Taxable:     in.Taxable == nil || *in.Taxable,
		VATRate:     s.vatRate,
		Receipt:     in.Receipt,
		Notes:       in.Notes,
		CreatedBy:   in.ActorID,
	}
	if in.VATRate != nil {
		if in.VATRate.IsNegative() || in.VATRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return Expense{}, fmt.Errorf("expenses: vat rate %s out of range: %w", in.VATRate, shared.ErrValidation)
		}
		exp.VATRate = *in.VATRate
	}
	if !exp.Taxable {
		exp.VATRate = decimal.Zero
	}
	if exp.Date.IsZero() {
		exp.Date = s.now()
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if exp.SupplierID != nil {
			ok, err := tx.SupplierExists(ctx, *exp.SupplierID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrSupplierNotFound
			}
		}
		var err error
		exp.ID, err = tx.InsertExpense(ctx, exp)
		return err
	})
	if err != nil {
		return Expense{}, err
	}
	s.logger.Info("expense recorded",
		slog.Int64("expense_id", exp.ID),
		slog.String("category", string(exp.Category)),
		slog.String("total", exp.TotalWithVAT(s.rounding).String()),
	)
	return exp, s.notify(ctx, exp, in.ActorID)
}

// RepostExpense hands a stored expense to the integration handler again.
func (s *Service) RepostExpense(ctx context.Context, id, actorID int64) error {
	exp, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return err
	}
	return s.notify(ctx, exp, actorID)
}

func (s *Service) notify(ctx context.Context, exp Expense, actorID int64) error {
	if s.integration == nil {
		return nil
	}
	err := s.integration.HandleExpenseRecorded(ctx, ExpenseRecordedEvent{
		ID:          exp.ID,
		Date:        exp.Date,
		Category:    exp.Category,
		Description: exp.Description,
		Amount:      exp.Amount,
		Taxable:     exp.Taxable,
		VATRate:     exp.VATRate,
		ActorID:     actorID,
	})
	if err != nil {
		s.logger.Error("post expense", slog.Int64("expense_id", exp.ID), slog.Any("error", err))
		return fmt.Errorf("expenses: post expense %d: %w", exp.ID, err)
	}
	return nil
}

// GetExpense loads an expense.
func (s *Service) GetExpense(ctx context.Context, id int64) (Expense, error) {
	return s.repo.GetExpense(ctx, id)
}

// ListExpenses lists expenses newest first.
func (s *Service) ListExpenses(ctx context.Context, filter ListFilter) ([]Expense, int, error) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, 0, fmt.Errorf("expenses: unknown category %q: %w", filter.Category, shared.ErrValidation)
	}
	return s.repo.ListExpenses(ctx, filter)
}

// TotalsByCategory sums expenses per category, listing every category even
// when it has no expenses.
func (s *Service) TotalsByCategory(ctx context.Context, from, to *time.Time) ([]CategoryTotal, error) {
	totals, err := s.repo.TotalsByCategory(ctx, ListFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}
	byCategory := make(map[accounting.ExpenseCategory]CategoryTotal, len(totals))
	for _, t := range totals {
		byCategory[t.Category] = t
	}
	out := make([]CategoryTotal, 0, len(accounting.ExpenseCategories()))
	for _, c := range accounting.ExpenseCategories() {
		t, ok := byCategory[c]
		if !ok {
			t = CategoryTotal{Category: c, Amount: decimal.Zero}
		}
		out = append(out, t)
	}
	return out, nil
}
