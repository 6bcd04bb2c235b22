package documents

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// Kind distinguishes the three document families sharing the line model.
type Kind string

const (
	KindBudget          Kind = "BUDGET"
	KindProductionOrder Kind = "PRODUCTION_ORDER"
	KindInvoice         Kind = "INVOICE"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindBudget, KindProductionOrder, KindInvoice:
		return true
	}
	return false
}

// Jurisdiction is the province collecting gross income tax on an invoice.
type Jurisdiction string

const (
	JurisdictionNone Jurisdiction = ""
	JurisdictionCABA Jurisdiction = "CABA"
	JurisdictionBSAS Jurisdiction = "BSAS"
)

// Valid reports whether j is empty or a known province.
func (j Jurisdiction) Valid() bool {
	switch j {
	case JurisdictionNone, JurisdictionCABA, JurisdictionBSAS:
		return true
	}
	return false
}

// Status enumerates lifecycle states across kinds.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusSent       Status = "SENT"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusIssued     Status = "ISSUED"
)

// InvoiceType enumerates fiscal document types.
type InvoiceType string

const (
	InvoiceSale           InvoiceType = "SALE"
	InvoicePurchase       InvoiceType = "PURCHASE"
	InvoiceSaleCredit     InvoiceType = "SALE_CREDIT"
	InvoicePurchaseCredit InvoiceType = "PURCHASE_CREDIT"
	InvoiceDeliveryNote   InvoiceType = "DELIVERY_NOTE"
)

// Valid reports whether t is a known invoice type.
func (t InvoiceType) Valid() bool {
	switch t {
	case InvoiceSale, InvoicePurchase, InvoiceSaleCredit, InvoicePurchaseCredit, InvoiceDeliveryNote:
		return true
	}
	return false
}

// IsCredit reports whether the type is a credit note.
func (t InvoiceType) IsCredit() bool {
	return t == InvoiceSaleCredit || t == InvoicePurchaseCredit
}

// Sign is -1 for credit notes and 1 otherwise.
func (t InvoiceType) Sign() decimal.Decimal {
	if t.IsCredit() {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// CompletesOrder reports whether issuing this type finishes the linked order.
func (t InvoiceType) CompletesOrder() bool {
	return t == InvoiceSale || t == InvoiceDeliveryNote
}

// Rates are the tax rates applied to a document subtotal.
type Rates struct {
	VAT         decimal.Decimal `json:"vat_rate"`
	Perception  decimal.Decimal `json:"perception_rate"`
	GrossIncome decimal.Decimal `json:"gross_income_rate"`
}

// Totals are the aggregate fields derived from a document's lines.
type Totals struct {
	TotalArea         decimal.Decimal `json:"total_area"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	VATAmount         decimal.Decimal `json:"vat_amount"`
	PerceptionAmount  decimal.Decimal `json:"perception_amount"`
	GrossIncomeAmount decimal.Decimal `json:"gross_income_amount"`
	Total             decimal.Decimal `json:"total"`
}

// Equal compares every field by value.
func (t Totals) Equal(o Totals) bool {
	return t.TotalArea.Equal(o.TotalArea) &&
		t.Subtotal.Equal(o.Subtotal) &&
		t.VATAmount.Equal(o.VATAmount) &&
		t.PerceptionAmount.Equal(o.PerceptionAmount) &&
		t.GrossIncomeAmount.Equal(o.GrossIncomeAmount) &&
		t.Total.Equal(o.Total)
}

// Document is a budget, production order or invoice with its lines.
type Document struct {
	ID           int64        `json:"id"`
	Kind         Kind         `json:"kind"`
	Number       string       `json:"number"`
	Status       Status       `json:"status"`
	Date         time.Time    `json:"date"`
	DueDate      *time.Time   `json:"due_date,omitempty"`
	ContactID    int64        `json:"contact_id"`
	Title        string       `json:"title,omitempty"`
	Reference    string       `json:"reference,omitempty"`
	Notes        string       `json:"notes,omitempty"`
	InvoiceType  InvoiceType  `json:"invoice_type,omitempty"`
	Jurisdiction Jurisdiction `json:"jurisdiction,omitempty"`
	Currency     string       `json:"currency"`
	BudgetID     *int64       `json:"budget_id,omitempty"`
	OrderID      *int64       `json:"order_id,omitempty"`
	Rates        Rates        `json:"rates"`
	Totals       Totals       `json:"totals"`
	CreatedBy    int64        `json:"created_by"`
	UpdatedBy    int64        `json:"updated_by"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Lines        []LineItem   `json:"lines,omitempty"`
}

// LineItem is a priced row owned by a document. Width and height are both
// set for area priced items.
type LineItem struct {
	ID          int64               `json:"id"`
	DocumentID  int64               `json:"document_id"`
	Position    int                 `json:"position"`
	Description string              `json:"description"`
	Quantity    decimal.Decimal     `json:"quantity"`
	Width       decimal.NullDecimal `json:"width"`
	Height      decimal.NullDecimal `json:"height"`
	UnitPrice   decimal.Decimal     `json:"unit_price"`
	MaterialID  *int64              `json:"material_id,omitempty"`
	Area        decimal.Decimal     `json:"area"`
	Subtotal    decimal.Decimal     `json:"subtotal"`
}

// LineInput carries the editable fields of a line.
type LineInput struct {
	Description string              `json:"description" validate:"required,max=255"`
	Quantity    decimal.Decimal     `json:"quantity" validate:"gt=0"`
	Width       decimal.NullDecimal `json:"width"`
	Height      decimal.NullDecimal `json:"height"`
	UnitPrice   decimal.Decimal     `json:"unit_price" validate:"gte=0"`
	MaterialID  *int64              `json:"material_id,omitempty" validate:"omitempty,gt=0"`
}

// RatesInput overrides tax rates; nil fields fall back to configured defaults.
type RatesInput struct {
	VAT         *decimal.Decimal `json:"vat_rate,omitempty"`
	Perception  *decimal.Decimal `json:"perception_rate,omitempty"`
	GrossIncome *decimal.Decimal `json:"gross_income_rate,omitempty"`
}

// CreateInput describes a new document.
type CreateInput struct {
	Kind          Kind         `json:"kind" validate:"required"`
	InvoiceType   InvoiceType  `json:"invoice_type,omitempty"`
	Jurisdiction  Jurisdiction `json:"jurisdiction,omitempty"`
	PaymentTermID *int64       `json:"payment_term_id,omitempty" validate:"omitempty,gt=0"`
	Date          time.Time    `json:"date"`
	DueDate       *time.Time   `json:"due_date,omitempty"`
	ContactID     int64        `json:"contact_id" validate:"required,gt=0"`
	Title         string       `json:"title,omitempty" validate:"max=255"`
	Reference     string       `json:"reference,omitempty" validate:"max=50"`
	Notes         string       `json:"notes,omitempty"`
	Currency      string       `json:"currency,omitempty" validate:"omitempty,len=3"`
	OrderID       *int64       `json:"order_id,omitempty" validate:"omitempty,gt=0"`
	Rates         RatesInput   `json:"rates"`
	Lines         []LineInput  `json:"lines" validate:"dive"`
	ActorID       int64        `json:"-"`
}

// ListFilter narrows document listings.
type ListFilter struct {
	Kind      Kind
	Status    Status
	ContactID int64
	Limit     int
	Offset    int
}

var (
	// ErrDocumentNotFound indicates the document does not exist.
	ErrDocumentNotFound = fmt.Errorf("documents: document not found: %w", shared.ErrNotFound)
	// ErrLineNotFound indicates the line does not exist on the document.
	ErrLineNotFound = fmt.Errorf("documents: line not found: %w", shared.ErrNotFound)
	// ErrNumberTaken indicates the unique document number constraint fired.
	ErrNumberTaken = fmt.Errorf("documents: number already taken: %w", shared.ErrConflict)
)
