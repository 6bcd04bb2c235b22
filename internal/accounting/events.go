package accounting

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// Source modules recorded on journal entries.
const (
	SourceInvoice = "INVOICE"
	SourceFinance = "FINANCE"
	SourceExpense = "EXPENSE"
)

// Event is a finalized business fact that produces exactly one journal entry.
// The set of events is closed to this package.
type Event interface {
	source() (module string, id int64)
	header() EntryInput
	template() ([]TemplateLine, error)
}

// SourceOf returns the source module and deterministic source id of evt.
func SourceOf(evt Event) (string, uuid.UUID) {
	module, id := evt.source()
	return module, shared.SourceID(module, id)
}

// InvoiceType mirrors the fiscal type of a posted invoice.
type InvoiceType string

const (
	InvoiceSale           InvoiceType = "SALE"
	InvoicePurchase       InvoiceType = "PURCHASE"
	InvoiceSaleCredit     InvoiceType = "SALE_CREDIT"
	InvoicePurchaseCredit InvoiceType = "PURCHASE_CREDIT"
	InvoiceDeliveryNote   InvoiceType = "DELIVERY_NOTE"
)

var invoiceLabels = map[InvoiceType]string{
	InvoiceSale:           "Factura de venta",
	InvoicePurchase:       "Factura de compra",
	InvoiceSaleCredit:     "Nota de crédito de venta",
	InvoicePurchaseCredit: "Nota de crédito de compra",
	InvoiceDeliveryNote:   "Remito",
}

// InvoiceEvent is an issued invoice or credit note.
type InvoiceEvent struct {
	InvoiceID   int64
	Number      string
	Type        InvoiceType
	Date        time.Time
	ContactName string
	Subtotal    decimal.Decimal
	VAT         decimal.Decimal
	Perception  decimal.Decimal
	GrossIncome decimal.Decimal
	Total       decimal.Decimal
}

func (e InvoiceEvent) source() (string, int64) { return SourceInvoice, e.InvoiceID }

func (e InvoiceEvent) header() EntryInput {
	return EntryInput{
		Date:        e.Date,
		Description: strings.TrimSpace(invoiceLabels[e.Type] + " " + e.Number),
		Reference:   e.Number,
	}
}

func (e InvoiceEvent) template() ([]TemplateLine, error) {
	return InvoiceTemplate(e)
}

// MovementKind distinguishes money in from money out.
type MovementKind string

const (
	MovementCollection MovementKind = "COLLECTION"
	MovementPayment    MovementKind = "PAYMENT"
)

// FinanceMovementEvent is a recorded collection or payment.
type FinanceMovementEvent struct {
	MovementID  int64
	Kind        MovementKind
	Date        time.Time
	Amount      decimal.Decimal
	ContactName string
	Reference   string
}

func (e FinanceMovementEvent) source() (string, int64) { return SourceFinance, e.MovementID }

func (e FinanceMovementEvent) header() EntryInput {
	label := "Cobro"
	if e.Kind == MovementPayment {
		label = "Pago"
	}
	return EntryInput{
		Date:        e.Date,
		Description: strings.TrimSpace(label + " " + e.ContactName),
		Reference:   e.Reference,
	}
}

func (e FinanceMovementEvent) template() ([]TemplateLine, error) {
	return MovementTemplate(e)
}

// ExpenseCategory classifies operating expenses; each has its own account.
type ExpenseCategory string

const (
	ExpenseFuel      ExpenseCategory = "FUEL"
	ExpenseInsurance ExpenseCategory = "INSURANCE"
	ExpenseTax       ExpenseCategory = "TAX"
	ExpenseServices  ExpenseCategory = "SERVICES"
	ExpenseOther     ExpenseCategory = "OTHER"
)

var expenseLabels = map[ExpenseCategory]string{
	ExpenseFuel:      "Nafta",
	ExpenseInsurance: "Seguros",
	ExpenseTax:       "Impuestos",
	ExpenseServices:  "Servicios",
	ExpenseOther:     "Otros",
}

// ExpenseCategories lists the categories in chart order.
func ExpenseCategories() []ExpenseCategory {
	return []ExpenseCategory{ExpenseFuel, ExpenseInsurance, ExpenseTax, ExpenseServices, ExpenseOther}
}

// Valid reports whether c is a known category.
func (c ExpenseCategory) Valid() bool {
	_, ok := expenseLabels[c]
	return ok
}

// Label is the display name of the category.
func (c ExpenseCategory) Label() string {
	return expenseLabels[c]
}

// ExpenseEvent is a recorded operating expense paid in cash.
type ExpenseEvent struct {
	ExpenseID   int64
	Date        time.Time
	Category    ExpenseCategory
	Description string
	Amount      decimal.Decimal
	Taxable     bool
	VATRate     decimal.Decimal
	Rounding    shared.RoundingMode
}

func (e ExpenseEvent) source() (string, int64) { return SourceExpense, e.ExpenseID }

func (e ExpenseEvent) header() EntryInput {
	return EntryInput{
		Date:        e.Date,
		Description: "Gasto " + e.Category.Label(),
		Reference:   fmt.Sprintf("GASTO-%d", e.ExpenseID),
	}
}

func (e ExpenseEvent) template() ([]TemplateLine, error) {
	return ExpenseTemplate(e)
}
