package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// Kind distinguishes money received from clients and money paid to suppliers.
type Kind string

const (
	KindCollection Kind = "COLLECTION"
	KindPayment    Kind = "PAYMENT"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindCollection || k == KindPayment
}

// Movement is a collection or payment on a contact's current account.
type Movement struct {
	ID          int64           `json:"id"`
	ContactID   int64           `json:"contact_id"`
	ContactName string          `json:"contact_name,omitempty"`
	InvoiceID   *int64          `json:"invoice_id,omitempty"`
	Kind        Kind            `json:"kind"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method,omitempty"`
	Reference   string          `json:"reference,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	CreatedBy   int64           `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SignedAmount is positive for collections and negative for payments.
func (m Movement) SignedAmount() decimal.Decimal {
	if m.Kind == KindPayment {
		return m.Amount.Neg()
	}
	return m.Amount
}

// RecordInput describes a new movement.
type RecordInput struct {
	ContactID int64           `json:"contact_id" validate:"required,gt=0"`
	InvoiceID *int64          `json:"invoice_id,omitempty" validate:"omitempty,gt=0"`
	Kind      Kind            `json:"kind" validate:"required"`
	Date      time.Time       `json:"date"`
	Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
	Method    string          `json:"method,omitempty" validate:"max=64"`
	Reference string          `json:"reference,omitempty" validate:"max=128"`
	Notes     string          `json:"notes,omitempty"`
	ActorID   int64           `json:"-"`
}

// ListFilter narrows movement listings.
type ListFilter struct {
	ContactID int64
	Kind      Kind
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// MovementRecordedEvent is delivered to the integration handler after the
// movement commits.
type MovementRecordedEvent struct {
	ID          int64
	Kind        Kind
	Date        time.Time
	Amount      decimal.Decimal
	ContactName string
	Reference   string
	ActorID     int64
}

// IntegrationHandler reacts to committed finance movements.
type IntegrationHandler interface {
	HandleMovementRecorded(ctx context.Context, evt MovementRecordedEvent) error
}

var (
	// ErrMovementNotFound indicates a missing movement.
	ErrMovementNotFound = fmt.Errorf("finance: movement not found: %w", shared.ErrNotFound)
	// ErrContactNotFound indicates the movement references a missing contact.
	ErrContactNotFound = fmt.Errorf("finance: contact not found: %w", shared.ErrReference)
	// ErrInvoiceNotFound indicates the movement references a missing invoice.
	ErrInvoiceNotFound = fmt.Errorf("finance: invoice not found: %w", shared.ErrReference)
)
