package contacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// RepositoryPort abstracts contact persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, c Contact) (int64, error)
	Get(ctx context.Context, id int64) (Contact, error)
	List(ctx context.Context, filter ListFilter) ([]Contact, int, error)
	InsertPaymentTerm(ctx context.Context, term PaymentTerm) (int64, error)
	GetPaymentTerm(ctx context.Context, id int64) (PaymentTerm, error)
	ListPaymentTerms(ctx context.Context) ([]PaymentTerm, error)
	GetAccount(ctx context.Context, contactID int64) (Account, bool, error)
	UpsertAccount(ctx context.Context, account Account) error
}

// Service manages clients and suppliers.
type Service struct {
	repo     RepositoryPort
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, validate: shared.NewValidator(), logger: logger}
}

// Create stores a new contact. Tax ids are unique.
func (s *Service) Create(ctx context.Context, in CreateInput) (Contact, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.TaxID = normalizeTaxID(in.TaxID)
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Contact{}, fmt.Errorf("contacts: %w", err)
	}
	id, err := s.repo.Insert(ctx, Contact{
		Name:       in.Name,
		TradeName:  strings.TrimSpace(in.TradeName),
		TaxID:      in.TaxID,
		Email:      in.Email,
		Phone:      in.Phone,
		Address:    in.Address,
		City:       in.City,
		Province:   in.Province,
		IsClient:   in.IsClient,
		IsSupplier: in.IsSupplier,
		Notes:      in.Notes,
		CreatedBy:  in.ActorID,
		UpdatedBy:  in.ActorID,
	})
	if err != nil {
		return Contact{}, err
	}
	s.logger.Info("contact created", slog.Int64("contact_id", id), slog.String("tax_id", in.TaxID))
	return s.repo.Get(ctx, id)
}

// Get loads a contact.
func (s *Service) Get(ctx context.Context, id int64) (Contact, error) {
	return s.repo.Get(ctx, id)
}

// List lists contacts ordered by name.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Contact, int, error) {
	if filter.Role != "" && filter.Role != RoleClient && filter.Role != RoleSupplier {
		return nil, 0, fmt.Errorf("contacts: unknown role %q: %w", filter.Role, shared.ErrValidation)
	}
	filter.Search = strings.TrimSpace(filter.Search)
	return s.repo.List(ctx, filter)
}

// CreatePaymentTerm stores a named credit period.
func (s *Service) CreatePaymentTerm(ctx context.Context, in PaymentTermInput) (PaymentTerm, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return PaymentTerm{}, fmt.Errorf("contacts: %w", err)
	}
	id, err := s.repo.InsertPaymentTerm(ctx, PaymentTerm{
		Name:        in.Name,
		Days:        in.Days,
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   in.ActorID,
	})
	if err != nil {
		return PaymentTerm{}, err
	}
	return s.repo.GetPaymentTerm(ctx, id)
}

// ListPaymentTerms lists terms ordered by days.
func (s *Service) ListPaymentTerms(ctx context.Context) ([]PaymentTerm, error) {
	return s.repo.ListPaymentTerms(ctx)
}

// Account returns the credit conditions of a contact, with the default term
// expanded.
func (s *Service) Account(ctx context.Context, contactID int64) (Account, error) {
	if _, err := s.repo.Get(ctx, contactID); err != nil {
		return Account{}, err
	}
	account, found, err := s.repo.GetAccount(ctx, contactID)
	if err != nil {
		return Account{}, err
	}
	if !found {
		return Account{ContactID: contactID, CreditLimit: decimal.Zero}, nil
	}
	if account.PaymentTermID != nil {
		term, err := s.repo.GetPaymentTerm(ctx, *account.PaymentTermID)
		if err != nil {
			return Account{}, err
		}
		account.PaymentTerm = &term
	}
	return account, nil
}

// SetAccount replaces the credit limit and default payment term of a contact.
func (s *Service) SetAccount(ctx context.Context, contactID int64, in AccountInput) (Account, error) {
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return Account{}, fmt.Errorf("contacts: %w", err)
	}
	if in.CreditLimit.IsNegative() {
		return Account{}, fmt.Errorf("contacts: credit limit must not be negative: %w", shared.ErrValidation)
	}
	if _, err := s.repo.Get(ctx, contactID); err != nil {
		return Account{}, err
	}
	if in.PaymentTermID != nil {
		if _, err := s.repo.GetPaymentTerm(ctx, *in.PaymentTermID); err != nil {
			if errors.Is(err, ErrPaymentTermNotFound) {
				return Account{}, fmt.Errorf("contacts: payment term %d: %w", *in.PaymentTermID, shared.ErrReference)
			}
			return Account{}, err
		}
	}
	err := s.repo.UpsertAccount(ctx, Account{
		ContactID:     contactID,
		CreditLimit:   shared.RoundHalfUp.Round2(in.CreditLimit),
		PaymentTermID: in.PaymentTermID,
		UpdatedBy:     in.ActorID,
	})
	if err != nil {
		return Account{}, err
	}
	s.logger.Info("contact account updated", slog.Int64("contact_id", contactID), slog.String("credit_limit", in.CreditLimit.StringFixed(2)))
	return s.Account(ctx, contactID)
}

// normalizeTaxID strips the separators CUIT numbers are often typed with.
func normalizeTaxID(raw string) string {
	return strings.NewReplacer("-", "", " ", "", ".", "").Replace(strings.TrimSpace(raw))
}
