package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/rvgrafica/rvgrafica-erp/internal/numbering"
	"github.com/rvgrafica/rvgrafica-erp/internal/observability"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDocument(ctx context.Context, id int64) (Document, error)
	ListDocuments(ctx context.Context, filter ListFilter) ([]Document, int, error)
	ListRecomputable(ctx context.Context) ([]int64, error)
}

// ServiceConfig groups tunables.
type ServiceConfig struct {
	DefaultRates     Rates
	Rounding         shared.RoundingMode
	MaxNumberRetries int
	DefaultCurrency  string
}

// Service coordinates document lifecycle, lines and totals.
type Service struct {
	repo        RepositoryPort
	cfg         ServiceConfig
	calc        Calculator
	validate    *validator.Validate
	integration IntegrationHandler
	cache       *TotalsCache
	metrics     *observability.DomainMetrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the documents service.
func NewService(repo RepositoryPort, cfg ServiceConfig, integration IntegrationHandler, logger *slog.Logger) *Service {
	if cfg.MaxNumberRetries <= 0 {
		cfg.MaxNumberRetries = 3
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "ARS"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		cfg:         cfg,
		calc:        Calculator{Rounding: cfg.Rounding},
		validate:    shared.NewValidator(),
		integration: integration,
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

// WithCache attaches the totals snapshot cache.
func (s *Service) WithCache(cache *TotalsCache) {
	s.cache = cache
}

// WithMetrics attaches domain metrics.
func (s *Service) WithMetrics(m *observability.DomainMetrics) {
	s.metrics = m
}

// Calculator exposes the aggregate calculator used by the service.
func (s *Service) Calculator() Calculator {
	return s.calc
}

// CreateDocument numbers and stores a new document with its lines. A lost
// numbering race is retried with a fresh transaction.
func (s *Service) CreateDocument(ctx context.Context, in CreateInput) (Document, error) {
	if err := s.validateCreate(in); err != nil {
		return Document{}, err
	}
	var id int64
	var err error
	for attempt := 1; attempt <= s.cfg.MaxNumberRetries; attempt++ {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var txErr error
			id, txErr = s.createInTx(ctx, tx, in)
			return txErr
		})
		if !errors.Is(err, shared.ErrConflict) {
			break
		}
		s.metrics.NumberingRetry(string(in.Kind))
		s.logger.Warn("document number conflict, retrying",
			slog.String("kind", string(in.Kind)),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}
	if err != nil {
		return Document{}, err
	}
	return s.reload(ctx, id)
}

func (s *Service) validateCreate(in CreateInput) error {
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return fmt.Errorf("documents: %w", err)
	}
	if !in.Kind.Valid() {
		return fmt.Errorf("documents: unknown kind %q: %w", in.Kind, shared.ErrValidation)
	}
	if in.Kind == KindInvoice && !in.InvoiceType.Valid() {
		return fmt.Errorf("documents: invoice type %q invalid: %w", in.InvoiceType, shared.ErrValidation)
	}
	if in.Kind != KindInvoice && in.InvoiceType != "" {
		return fmt.Errorf("documents: invoice type only applies to invoices: %w", shared.ErrValidation)
	}
	if in.Kind != KindInvoice && in.OrderID != nil {
		return fmt.Errorf("documents: only invoices reference an order: %w", shared.ErrValidation)
	}
	if !in.Jurisdiction.Valid() {
		return fmt.Errorf("documents: jurisdiction %q invalid: %w", in.Jurisdiction, shared.ErrValidation)
	}
	if in.Kind != KindInvoice && (in.Jurisdiction != JurisdictionNone || in.PaymentTermID != nil) {
		return fmt.Errorf("documents: jurisdiction and payment term only apply to invoices: %w", shared.ErrValidation)
	}
	if err := ValidateRates(s.ratesFor(in.Kind, in.Rates)); err != nil {
		return err
	}
	for idx, line := range in.Lines {
		if err := ValidateLine(line); err != nil {
			return fmt.Errorf("line %d: %w", idx+1, err)
		}
	}
	return nil
}

// ratesFor applies configured defaults to invoices; budgets and orders are
// untaxed unless rates are given explicitly.
func (s *Service) ratesFor(kind Kind, in RatesInput) Rates {
	defaults := Rates{VAT: decimal.Zero, Perception: decimal.Zero, GrossIncome: decimal.Zero}
	if kind == KindInvoice {
		defaults = s.cfg.DefaultRates
	}
	return ResolveRates(in, defaults)
}

func (s *Service) createInTx(ctx context.Context, tx TxRepository, in CreateInput) (int64, error) {
	ok, err := tx.ContactExists(ctx, in.ContactID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("documents: contact %d: %w", in.ContactID, shared.ErrReference)
	}
	if in.OrderID != nil {
		order, err := tx.GetDocumentForUpdate(ctx, *in.OrderID)
		if errors.Is(err, ErrDocumentNotFound) {
			return 0, fmt.Errorf("documents: order %d: %w", *in.OrderID, shared.ErrReference)
		}
		if err != nil {
			return 0, fmt.Errorf("documents: order %d: %w", *in.OrderID, err)
		}
		if order.Kind != KindProductionOrder {
			return 0, fmt.Errorf("documents: document %d is not a production order: %w", order.ID, shared.ErrValidation)
		}
	}
	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	dueDate, err := s.dueDate(ctx, tx, in, date)
	if err != nil {
		return 0, err
	}
	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	doc := Document{
		Kind:         in.Kind,
		Status:       InitialStatus(in.Kind),
		Date:         date,
		DueDate:      dueDate,
		Jurisdiction: in.Jurisdiction,
		ContactID:    in.ContactID,
		Title:        in.Title,
		Reference:    in.Reference,
		Notes:        in.Notes,
		InvoiceType:  in.InvoiceType,
		Currency:     currency,
		OrderID:      in.OrderID,
		Rates:        s.ratesFor(in.Kind, in.Rates),
		CreatedBy:    in.ActorID,
		UpdatedBy:    in.ActorID,
	}
	return s.insertWithLines(ctx, tx, doc, in.Lines, in.ActorID)
}

func (s *Service) insertWithLines(ctx context.Context, tx TxRepository, doc Document, lines []LineInput, actorID int64) (int64, error) {
	series, err := NumberSeries(doc.Kind, doc.InvoiceType)
	if err != nil {
		return 0, err
	}
	doc.Number, err = numbering.AssignNumber(ctx, tx, series, doc.Date)
	if err != nil {
		return 0, err
	}
	id, err := tx.InsertDocument(ctx, doc)
	if err != nil {
		return 0, err
	}
	for _, line := range lines {
		if err := s.checkMaterial(ctx, tx, line.MaterialID); err != nil {
			return 0, err
		}
		if _, err := tx.InsertLine(ctx, s.calc.PriceLine(id, line)); err != nil {
			return 0, err
		}
	}
	if _, err := s.dispatch(ctx, tx, actorID, RecomputeRequested{DocumentID: id}); err != nil {
		return 0, err
	}
	return id, nil
}

// dueDate keeps an explicit due date. Otherwise an invoice falls due after
// the given payment term, or the contact's default term when none is given.
func (s *Service) dueDate(ctx context.Context, tx TxRepository, in CreateInput, date time.Time) (*time.Time, error) {
	if in.DueDate != nil || in.Kind != KindInvoice {
		return in.DueDate, nil
	}
	days, found, err := tx.PaymentTermDays(ctx, in.ContactID, in.PaymentTermID)
	if err != nil || !found {
		return nil, err
	}
	due := date.AddDate(0, 0, days)
	return &due, nil
}

func (s *Service) checkMaterial(ctx context.Context, tx TxRepository, materialID *int64) error {
	if materialID == nil {
		return nil
	}
	ok, err := tx.MaterialExists(ctx, *materialID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("documents: material %d: %w", *materialID, shared.ErrReference)
	}
	return nil
}

// dispatch handles in-transaction document events in order.
// dispatched records what handled events changed inside the transaction.
type dispatched struct {
	totals map[int64]Totals
}

func (d dispatched) Totals(documentID int64) Totals {
	return d.totals[documentID]
}

func (s *Service) dispatch(ctx context.Context, tx TxRepository, actorID int64, events ...Event) (dispatched, error) {
	out := dispatched{totals: make(map[int64]Totals)}
	for _, evt := range events {
		switch e := evt.(type) {
		case RecomputeRequested:
			totals, err := s.recomputeInTx(ctx, tx, e.DocumentID, actorID)
			if err != nil {
				return out, err
			}
			out.totals[e.DocumentID] = totals
		case InvoiceIssued:
			if e.OrderID == nil || !e.Type.CompletesOrder() {
				continue
			}
			if err := s.completeOrder(ctx, tx, *e.OrderID, actorID); err != nil {
				return out, err
			}
		default:
			return out, fmt.Errorf("documents: unhandled event %T", evt)
		}
	}
	return out, nil
}

func (s *Service) recomputeInTx(ctx context.Context, tx TxRepository, id, actorID int64) (Totals, error) {
	doc, err := tx.GetDocumentForUpdate(ctx, id)
	if err != nil {
		return Totals{}, err
	}
	lines, err := tx.ListLines(ctx, id)
	if err != nil {
		return Totals{}, err
	}
	totals := s.calc.ComputeTotals(lines, doc.Rates)
	if err := tx.UpdateTotals(ctx, id, totals, actorID); err != nil {
		return Totals{}, err
	}
	s.metrics.Recomputed(string(doc.Kind))
	return totals, nil
}

func (s *Service) completeOrder(ctx context.Context, tx TxRepository, orderID, actorID int64) error {
	order, err := tx.GetDocumentForUpdate(ctx, orderID)
	if err != nil {
		return fmt.Errorf("documents: order %d: %w", orderID, err)
	}
	if order.Status == StatusCompleted {
		return nil
	}
	if err := ValidateTransition(order.Kind, order.Status, StatusCompleted); err != nil {
		return err
	}
	return tx.UpdateStatus(ctx, orderID, StatusCompleted, actorID)
}

// RecomputeTotals rebuilds a document's aggregates from its lines and
// returns the stored snapshot.
func (s *Service) RecomputeTotals(ctx context.Context, documentID int64) (Totals, error) {
	var totals Totals
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		done, err := s.dispatch(ctx, tx, shared.ActorFromContext(ctx), RecomputeRequested{DocumentID: documentID})
		totals = done.Totals(documentID)
		return err
	})
	if err != nil {
		return Totals{}, err
	}
	s.invalidateTotals(ctx, documentID)
	return totals, nil
}

// RecomputeAll rebuilds every document whose lines can still change and
// reports how many were processed.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	ids, err := s.repo.ListRecomputable(ctx)
	if err != nil {
		return 0, err
	}
	for idx, id := range ids {
		if err := ctx.Err(); err != nil {
			return idx, err
		}
		if _, err := s.RecomputeTotals(ctx, id); err != nil {
			return idx, fmt.Errorf("documents: recompute %d: %w", id, err)
		}
	}
	return len(ids), nil
}

// Totals returns the cached totals snapshot of a document, loading it from
// storage on a miss.
func (s *Service) Totals(ctx context.Context, documentID int64) (Totals, error) {
	load := func(ctx context.Context) (Totals, error) {
		doc, err := s.repo.GetDocument(ctx, documentID)
		if err != nil {
			return Totals{}, err
		}
		return doc.Totals, nil
	}
	if s.cache == nil {
		return load(ctx)
	}
	return s.cache.Fetch(ctx, documentID, load)
}

// GetDocument loads a document with lines.
func (s *Service) GetDocument(ctx context.Context, id int64) (Document, error) {
	return s.repo.GetDocument(ctx, id)
}

// ListDocuments lists documents.
func (s *Service) ListDocuments(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	return s.repo.ListDocuments(ctx, filter)
}

// AddLine appends a line and recomputes the owning document.
func (s *Service) AddLine(ctx context.Context, documentID int64, in LineInput, actorID int64) (LineItem, Totals, error) {
	if err := s.validateLine(in); err != nil {
		return LineItem{}, Totals{}, err
	}
	var line LineItem
	var totals Totals
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := s.editableDocument(ctx, tx, documentID); err != nil {
			return err
		}
		if err := s.checkMaterial(ctx, tx, in.MaterialID); err != nil {
			return err
		}
		line = s.calc.PriceLine(documentID, in)
		id, err := tx.InsertLine(ctx, line)
		if err != nil {
			return err
		}
		line.ID = id
		done, err := s.dispatch(ctx, tx, actorID, RecomputeRequested{DocumentID: documentID})
		totals = done.Totals(documentID)
		return err
	})
	if err != nil {
		return LineItem{}, Totals{}, err
	}
	s.invalidateTotals(ctx, documentID)
	return line, totals, nil
}

// UpdateLine replaces the editable fields of a line and recomputes the document.
func (s *Service) UpdateLine(ctx context.Context, documentID, lineID int64, in LineInput, actorID int64) (LineItem, Totals, error) {
	if err := s.validateLine(in); err != nil {
		return LineItem{}, Totals{}, err
	}
	var line LineItem
	var totals Totals
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := s.editableDocument(ctx, tx, documentID); err != nil {
			return err
		}
		current, err := tx.GetLine(ctx, documentID, lineID)
		if err != nil {
			return err
		}
		if err := s.checkMaterial(ctx, tx, in.MaterialID); err != nil {
			return err
		}
		line = s.calc.PriceLine(documentID, in)
		line.ID = current.ID
		line.Position = current.Position
		if err := tx.UpdateLine(ctx, line); err != nil {
			return err
		}
		done, err := s.dispatch(ctx, tx, actorID, RecomputeRequested{DocumentID: documentID})
		totals = done.Totals(documentID)
		return err
	})
	if err != nil {
		return LineItem{}, Totals{}, err
	}
	s.invalidateTotals(ctx, documentID)
	return line, totals, nil
}

// DeleteLine removes a line and recomputes the document.
func (s *Service) DeleteLine(ctx context.Context, documentID, lineID int64, actorID int64) (Totals, error) {
	var totals Totals
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := s.editableDocument(ctx, tx, documentID); err != nil {
			return err
		}
		if err := tx.DeleteLine(ctx, documentID, lineID); err != nil {
			return err
		}
		done, err := s.dispatch(ctx, tx, actorID, RecomputeRequested{DocumentID: documentID})
		totals = done.Totals(documentID)
		return err
	})
	if err != nil {
		return Totals{}, err
	}
	s.invalidateTotals(ctx, documentID)
	return totals, nil
}

// UpdateRates changes the tax rates of a document and recomputes it.
func (s *Service) UpdateRates(ctx context.Context, documentID int64, in RatesInput, actorID int64) (Totals, error) {
	var totals Totals
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := s.editableDocument(ctx, tx, documentID)
		if err != nil {
			return err
		}
		rates := ResolveRates(in, doc.Rates)
		if err := ValidateRates(rates); err != nil {
			return err
		}
		if err := tx.UpdateRates(ctx, documentID, rates, actorID); err != nil {
			return err
		}
		done, err := s.dispatch(ctx, tx, actorID, RecomputeRequested{DocumentID: documentID})
		totals = done.Totals(documentID)
		return err
	})
	if err != nil {
		return Totals{}, err
	}
	s.invalidateTotals(ctx, documentID)
	return totals, nil
}

func (s *Service) validateLine(in LineInput) error {
	if err := shared.ValidateStruct(s.validate, in); err != nil {
		return fmt.Errorf("documents: %w", err)
	}
	return ValidateLine(in)
}

func (s *Service) editableDocument(ctx context.Context, tx TxRepository, id int64) (Document, error) {
	doc, err := tx.GetDocumentForUpdate(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if LinesLocked(doc.Kind, doc.Status) {
		return Document{}, fmt.Errorf("documents: %s %s is %s and can no longer change: %w", doc.Kind, doc.Number, doc.Status, shared.ErrValidation)
	}
	return doc, nil
}

// Transition moves a document to target. Invoices are issued through IssueInvoice.
func (s *Service) Transition(ctx context.Context, documentID int64, target Status, actorID int64) (Document, error) {
	var doc Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		doc, err = tx.GetDocumentForUpdate(ctx, documentID)
		if err != nil {
			return err
		}
		if doc.Kind == KindInvoice {
			return fmt.Errorf("documents: invoices change status by being issued: %w", shared.ErrValidation)
		}
		if err := ValidateTransition(doc.Kind, doc.Status, target); err != nil {
			return err
		}
		return tx.UpdateStatus(ctx, documentID, target, actorID)
	})
	if err != nil {
		return Document{}, err
	}
	s.logger.Info("document status changed",
		slog.Int64("document_id", documentID),
		slog.String("number", doc.Number),
		slog.String("from", string(doc.Status)),
		slog.String("to", string(target)),
	)
	return s.repo.GetDocument(ctx, documentID)
}

// ConvertBudgetToOrder copies every line of a budget into a new production
// order and marks the budget approved. Any budget status may be converted.
func (s *Service) ConvertBudgetToOrder(ctx context.Context, budgetID int64, actorID int64) (int64, error) {
	var orderID int64
	var err error
	for attempt := 1; attempt <= s.cfg.MaxNumberRetries; attempt++ {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			budget, err := tx.GetDocumentForUpdate(ctx, budgetID)
			if err != nil {
				return err
			}
			if budget.Kind != KindBudget {
				return fmt.Errorf("documents: document %d is not a budget: %w", budgetID, shared.ErrValidation)
			}
			lines, err := tx.ListLines(ctx, budgetID)
			if err != nil {
				return err
			}
			inputs := make([]LineInput, 0, len(lines))
			for _, line := range lines {
				inputs = append(inputs, lineInputOf(line))
			}
			order := Document{
				Kind:      KindProductionOrder,
				Status:    InitialStatus(KindProductionOrder),
				Date:      s.now(),
				DueDate:   budget.DueDate,
				ContactID: budget.ContactID,
				Title:     budget.Title,
				Reference: budget.Number,
				Notes:     budget.Notes,
				Currency:  budget.Currency,
				BudgetID:  &budget.ID,
				Rates:     budget.Rates,
				CreatedBy: actorID,
				UpdatedBy: actorID,
			}
			orderID, err = s.insertWithLines(ctx, tx, order, inputs, actorID)
			if err != nil {
				return err
			}
			if budget.Status != StatusApproved {
				return tx.UpdateStatus(ctx, budgetID, StatusApproved, actorID)
			}
			return nil
		})
		if !errors.Is(err, shared.ErrConflict) {
			break
		}
		s.metrics.NumberingRetry(string(KindProductionOrder))
	}
	if err != nil {
		return 0, err
	}
	s.logger.Info("budget converted to order", slog.Int64("budget_id", budgetID), slog.Int64("order_id", orderID))
	if _, err := s.reload(ctx, orderID); err != nil {
		return orderID, err
	}
	return orderID, nil
}

// IssueInvoice moves a draft invoice to issued, completes the linked order
// for sales and delivery notes, and hands the issued invoice to the
// integration handler once committed.
func (s *Service) IssueInvoice(ctx context.Context, invoiceID int64, actorID int64) (Document, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetDocumentForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if doc.Kind != KindInvoice {
			return fmt.Errorf("documents: document %d is not an invoice: %w", invoiceID, shared.ErrValidation)
		}
		if err := ValidateTransition(doc.Kind, doc.Status, StatusIssued); err != nil {
			return err
		}
		lines, err := tx.ListLines(ctx, invoiceID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return fmt.Errorf("documents: invoice %s has no lines: %w", doc.Number, shared.ErrValidation)
		}
		if _, err := s.dispatch(ctx, tx, actorID, RecomputeRequested{DocumentID: invoiceID}); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, invoiceID, StatusIssued, actorID); err != nil {
			return err
		}
		_, err = s.dispatch(ctx, tx, actorID, InvoiceIssued{InvoiceID: invoiceID, Type: doc.InvoiceType, OrderID: doc.OrderID})
		return err
	})
	if err != nil {
		return Document{}, err
	}
	doc, err := s.reload(ctx, invoiceID)
	if err != nil {
		return Document{}, err
	}
	if err := s.notifyIssued(ctx, doc, actorID); err != nil {
		return doc, err
	}
	return doc, nil
}

// RepostInvoice hands an issued invoice to the integration handler again.
// Posting is idempotent, so an already posted invoice is left untouched.
func (s *Service) RepostInvoice(ctx context.Context, invoiceID int64, actorID int64) error {
	doc, err := s.repo.GetDocument(ctx, invoiceID)
	if err != nil {
		return err
	}
	if doc.Kind != KindInvoice || doc.Status != StatusIssued {
		return fmt.Errorf("documents: only issued invoices can be posted: %w", shared.ErrValidation)
	}
	return s.notifyIssued(ctx, doc, actorID)
}

func (s *Service) notifyIssued(ctx context.Context, doc Document, actorID int64) error {
	if s.integration == nil || doc.InvoiceType == InvoiceDeliveryNote {
		return nil
	}
	if err := s.integration.HandleInvoiceIssued(ctx, issuedEventFrom(doc, actorID)); err != nil {
		s.logger.Error("post issued invoice",
			slog.Int64("invoice_id", doc.ID),
			slog.String("number", doc.Number),
			slog.Any("error", err),
		)
		return fmt.Errorf("documents: post invoice %s: %w", doc.Number, err)
	}
	return nil
}

func (s *Service) reload(ctx context.Context, id int64) (Document, error) {
	s.invalidateTotals(ctx, id)
	return s.repo.GetDocument(ctx, id)
}

// invalidateTotals runs after commit. A failed invalidation leaves the
// previous snapshot until it expires.
func (s *Service) invalidateTotals(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.Warn("invalidate document totals", slog.Int64("document_id", id), slog.Any("error", err))
	}
}
