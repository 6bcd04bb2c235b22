package integration

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rvgrafica/rvgrafica-erp/internal/accounting"
	"github.com/rvgrafica/rvgrafica-erp/internal/contacts"
	"github.com/rvgrafica/rvgrafica-erp/internal/documents"
	"github.com/rvgrafica/rvgrafica-erp/internal/expenses"
	"github.com/rvgrafica/rvgrafica-erp/internal/finance"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// Ledger exposes the posting operation required by integrations.
type Ledger interface {
	PostEvent(ctx context.Context, evt accounting.Event, actorID int64) (int64, error)
}

// ContactDirectory resolves the contact names printed on entries.
type ContactDirectory interface {
	Get(ctx context.Context, id int64) (contacts.Contact, error)
}

// Hooks wires committed events from operational modules into the ledger.
type Hooks struct {
	ledger   Ledger
	contacts ContactDirectory
	rounding shared.RoundingMode
	logger   *slog.Logger
}

// NewHooks constructs integration hooks.
func NewHooks(ledger Ledger, directory ContactDirectory, rounding shared.RoundingMode, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{ledger: ledger, contacts: directory, rounding: rounding, logger: logger}
}

func (h *Hooks) post(ctx context.Context, evt accounting.Event, actorID int64) error {
	entryID, err := h.ledger.PostEvent(ctx, evt, actorID)
	if err != nil {
		if errors.Is(err, shared.ErrAlreadyPosted) {
			module, sourceID := accounting.SourceOf(evt)
			h.logger.Debug("event already in ledger", slog.String("source_module", module), slog.String("source_id", sourceID.String()))
			return nil
		}
		return err
	}
	h.logger.Debug("event posted", slog.Int64("entry_id", entryID))
	return nil
}

// HandleInvoiceIssued posts an issued invoice or credit note.
func (h *Hooks) HandleInvoiceIssued(ctx context.Context, evt documents.InvoiceIssuedEvent) error {
	if h == nil || h.ledger == nil {
		return nil
	}
	if evt.Type == documents.InvoiceDeliveryNote || evt.Total.IsZero() {
		return nil
	}
	name := ""
	if h.contacts != nil && evt.ContactID > 0 {
		contact, err := h.contacts.Get(ctx, evt.ContactID)
		if err != nil {
			return err
		}
		name = contact.DisplayName()
	}
	return h.post(ctx, invoiceEvent(evt, name), evt.ActorID)
}

// HandleMovementRecorded posts a collection or payment.
func (h *Hooks) HandleMovementRecorded(ctx context.Context, evt finance.MovementRecordedEvent) error {
	if h == nil || h.ledger == nil || evt.Amount.IsZero() {
		return nil
	}
	return h.post(ctx, movementEvent(evt), evt.ActorID)
}

// HandleExpenseRecorded posts an operating expense.
func (h *Hooks) HandleExpenseRecorded(ctx context.Context, evt expenses.ExpenseRecordedEvent) error {
	if h == nil || h.ledger == nil || evt.Amount.IsZero() {
		return nil
	}
	return h.post(ctx, expenseEvent(evt, h.rounding), evt.ActorID)
}

var (
	_ documents.IntegrationHandler = (*Hooks)(nil)
	_ finance.IntegrationHandler   = (*Hooks)(nil)
	_ expenses.IntegrationHandler  = (*Hooks)(nil)
)
