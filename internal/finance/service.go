package finance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// RepositoryPort abstracts finance persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetMovement(ctx context.Context, id int64) (Movement, error)
	ListMovements(ctx context.Context, filter ListFilter) ([]Movement, int, error)
	ContactBalance(ctx context.Context, contactID int64) (decimal.Decimal, error)
}

// Service records collections and payments.
type Service struct {
	repo        RepositoryPort
	integration IntegrationHandler
	validate    *validator.Validate
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, integration IntegrationHandler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		integration: integration,
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

// RecordMovement stores a movement and hands it to the integration handler
// once committed. When posting fails the stored movement is still returned
// together with the error; RepostMovement retries.
func (s *Service) RecordMovement(ctx context.Context, in RecordInput) (Movement, error) {
	in.Kind = Kind(strings.ToUpper(string(in.Kind)))
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Movement{}, fmt.Errorf("finance: %w", err)
	}
	if !in.Kind.Valid() {
		return Movement{}, fmt.Errorf("finance: unknown kind %q: %w", in.Kind, shared.ErrValidation)
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}
	mv := Movement{
		ContactID: in.ContactID,
		InvoiceID: in.InvoiceID,
		Kind:      in.Kind,
		Date:      in.Date,
		Amount:    in.Amount,
		Method:    in.Method,
		Reference: in.Reference,
		Notes:     in.Notes,
		CreatedBy: in.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		name, err := tx.ContactName(ctx, in.ContactID)
		if err != nil {
			return err
		}
		mv.ContactName = name
		if in.InvoiceID != nil {
			owned, err := tx.InvoiceBelongsTo(ctx, *in.InvoiceID, in.ContactID)
			if err != nil {
				return err
			}
			if !owned {
				return fmt.Errorf("finance: invoice %d belongs to another contact: %w", *in.InvoiceID, shared.ErrValidation)
			}
		}
		mv.ID, err = tx.InsertMovement(ctx, mv)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	s.logger.Info("finance movement recorded",
		slog.Int64("movement_id", mv.ID),
		slog.String("kind", string(mv.Kind)),
		slog.String("amount", mv.Amount.String()),
	)
	return mv, s.notify(ctx, mv, in.ActorID)
}

// RepostMovement hands a stored movement to the integration handler again.
func (s *Service) RepostMovement(ctx context.Context, id, actorID int64) error {
	mv, err := s.repo.GetMovement(ctx, id)
	if err != nil {
		return err
	}
	return s.notify(ctx, mv, actorID)
}

func (s *Service) notify(ctx context.Context, mv Movement, actorID int64) error {
	if s.integration == nil {
		return nil
	}
	err := s.integration.HandleMovementRecorded(ctx, MovementRecordedEvent{
		ID:          mv.ID,
		Kind:        mv.Kind,
		Date:        mv.Date,
		Amount:      mv.Amount,
		ContactName: mv.ContactName,
		Reference:   mv.Reference,
		ActorID:     actorID,
	})
	if err != nil {
		s.logger.Error("post finance movement", slog.Int64("movement_id", mv.ID), slog.Any("error", err))
		return fmt.Errorf("finance: post movement %d: %w", mv.ID, err)
	}
	return nil
}

// GetMovement loads a movement.
func (s *Service) GetMovement(ctx context.Context, id int64) (Movement, error) {
	return s.repo.GetMovement(ctx, id)
}

// ListMovements lists movements newest first.
func (s *Service) ListMovements(ctx context.Context, filter ListFilter) ([]Movement, int, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, 0, fmt.Errorf("finance: unknown kind %q: %w", filter.Kind, shared.ErrValidation)
	}
	return s.repo.ListMovements(ctx, filter)
}

// ContactBalance is the net of a contact's collections minus payments.
func (s *Service) ContactBalance(ctx context.Context, contactID int64) (decimal.Decimal, error) {
	return s.repo.ContactBalance(ctx, contactID)
}
