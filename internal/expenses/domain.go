package expenses

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rvgrafica/rvgrafica-erp/internal/accounting"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// DefaultVATRate applies when a taxable expense carries no explicit rate.
var DefaultVATRate = decimal.RequireFromString("0.21")

// Expense is an operating expense paid in cash.
type Expense struct {
	ID          int64                      `json:"id"`
	Date        time.Time                  `json:"date"`
	Category    accounting.ExpenseCategory `json:"category"`
	Description string                     `json:"description"`
	SupplierID  *int64                     `json:"supplier_id,omitempty"`
	Amount      decimal.Decimal            `json:"amount"`
	Taxable     bool                       `json:"taxable"`
	VATRate     decimal.Decimal            `json:"vat_rate"`
	Receipt     string                     `json:"receipt,omitempty"`
	Notes       string                     `json:"notes,omitempty"`
	CreatedBy   int64                      `json:"created_by"`
	CreatedAt   time.Time                  `json:"created_at"`
}

// VATAmount is the recoverable VAT of the expense.
func (e Expense) VATAmount(mode shared.RoundingMode) decimal.Decimal {
	return accounting.ExpenseVAT(e.Amount, e.VATRate, e.Taxable, mode)
}

// TotalWithVAT is the amount actually paid.
func (e Expense) TotalWithVAT(mode shared.RoundingMode) decimal.Decimal {
	return e.Amount.Add(e.VATAmount(mode))
}

// RecordInput describes a new expense. Taxable defaults to true.
type RecordInput struct {
	Date        time.Time                  `json:"date"`
	Category    accounting.ExpenseCategory `json:"category" validate:"required"`
	Description string                     `json:"description" validate:"required,max=255"`
	SupplierID  *int64                     `json:"supplier_id,omitempty" validate:"omitempty,gt=0"`
	Amount      decimal.Decimal            `json:"amount" validate:"gt=0"`
	Taxable     *bool                      `json:"taxable,omitempty"`
	VATRate     *decimal.Decimal           `json:"vat_rate,omitempty"`
	Receipt     string                     `json:"receipt,omitempty" validate:"max=64"`
	Notes       string                     `json:"notes,omitempty"`
	ActorID     int64                      `json:"-"`
}

// ListFilter narrows expense listings.
type ListFilter struct {
	Category accounting.ExpenseCategory
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// CategoryTotal aggregates expenses of one category.
type CategoryTotal struct {
	Category accounting.ExpenseCategory `json:"category"`
	Count    int                        `json:"count"`
	Amount   decimal.Decimal            `json:"amount"`
}

// ExpenseRecordedEvent is delivered to the integration handler after the
// expense commits.
type ExpenseRecordedEvent struct {
	ID          int64
	Date        time.Time
	Category    accounting.ExpenseCategory
	Description string
	Amount      decimal.Decimal
	Taxable     bool
	VATRate     decimal.Decimal
	ActorID     int64
}

// IntegrationHandler reacts to committed expenses.
type IntegrationHandler interface {
	HandleExpenseRecorded(ctx context.Context, evt ExpenseRecordedEvent) error
}

var (
	// ErrExpenseNotFound indicates a missing expense.
	ErrExpenseNotFound = fmt.Errorf("expenses: expense not found: %w", shared.ErrNotFound)
	// ErrSupplierNotFound indicates the expense references a missing or non supplier contact.
	ErrSupplierNotFound = fmt.Errorf("expenses: supplier not found: %w", shared.ErrReference)
)
