package documents

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Event is raised inside a document transaction and handled before commit.
type Event interface {
	documentID() int64
}

// RecomputeRequested asks for the totals of a document to be rebuilt from its lines.
type RecomputeRequested struct {
	DocumentID int64
}

func (e RecomputeRequested) documentID() int64 { return e.DocumentID }

// InvoiceIssued is raised when an invoice leaves draft.
type InvoiceIssued struct {
	InvoiceID int64
	Type      InvoiceType
	OrderID   *int64
}

func (e InvoiceIssued) documentID() int64 { return e.InvoiceID }

// InvoiceIssuedEvent is delivered to the integration handler after the
// issuing transaction commits.
type InvoiceIssuedEvent struct {
	ID                int64
	Number            string
	Type              InvoiceType
	Date              time.Time
	ContactID         int64
	Subtotal          decimal.Decimal
	VATAmount         decimal.Decimal
	PerceptionAmount  decimal.Decimal
	GrossIncomeAmount decimal.Decimal
	Total             decimal.Decimal
	ActorID           int64
}

// IntegrationHandler reacts to committed document events.
type IntegrationHandler interface {
	HandleInvoiceIssued(ctx context.Context, evt InvoiceIssuedEvent) error
}

func issuedEventFrom(doc Document, actorID int64) InvoiceIssuedEvent {
	return InvoiceIssuedEvent{
		ID:                doc.ID,
		Number:            doc.Number,
		Type:              doc.InvoiceType,
		Date:              doc.Date,
		ContactID:         doc.ContactID,
		Subtotal:          doc.Totals.Subtotal,
		VATAmount:         doc.Totals.VATAmount,
		PerceptionAmount:  doc.Totals.PerceptionAmount,
		GrossIncomeAmount: doc.Totals.GrossIncomeAmount,
		Total:             doc.Totals.Total,
		ActorID:           actorID,
	}
}
