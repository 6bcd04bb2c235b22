package accounting

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// InvoiceTemplate books a sale against receivables or a purchase against
// payables. Credit notes book the same lines on the opposite sides.
func InvoiceTemplate(e InvoiceEvent) ([]TemplateLine, error) {
	var lines []TemplateLine
	switch e.Type {
	case InvoiceSale, InvoiceSaleCredit:
		lines = []TemplateLine{
			{Role: RoleReceivable, Side: Debit, Amount: e.Total, Description: e.ContactName},
			{Role: RoleSales, Side: Credit, Amount: e.Subtotal, Description: "Ingresos"},
			{Role: RoleVATPayable, Side: Credit, Amount: e.VAT, Description: "IVA"},
			{Role: RolePerceptionPayable, Side: Credit, Amount: e.Perception, Description: "Percepciones"},
			{Role: RoleGrossIncomePayable, Side: Credit, Amount: e.GrossIncome, Description: "Ingresos Brutos"},
		}
	case InvoicePurchase, InvoicePurchaseCredit:
		lines = []TemplateLine{
			{Role: RolePurchases, Side: Debit, Amount: e.Subtotal, Description: "Compras"},
			{Role: RoleVATCredit, Side: Debit, Amount: e.VAT, Description: "IVA"},
			{Role: RolePerceptionCredit, Side: Debit, Amount: e.Perception, Description: "Percepciones"},
			{Role: RoleGrossIncomeCredit, Side: Debit, Amount: e.GrossIncome, Description: "Ingresos Brutos"},
			{Role: RolePayable, Side: Credit, Amount: e.Total, Description: e.ContactName},
		}
	case InvoiceDeliveryNote:
		return nil, fmt.Errorf("accounting: delivery note %s carries no fiscal amounts: %w", e.Number, shared.ErrValidation)
	default:
		return nil, fmt.Errorf("accounting: unknown invoice type %q: %w", e.Type, shared.ErrValidation)
	}
	if e.Type == InvoiceSaleCredit || e.Type == InvoicePurchaseCredit {
		lines = invert(lines)
	}
	return lines, nil
}

// MovementTemplate books collections into cash from receivables and payments
// out of cash against payables.
func MovementTemplate(e FinanceMovementEvent) ([]TemplateLine, error) {
	switch e.Kind {
	case MovementCollection:
		return []TemplateLine{
			{Role: RoleCash, Side: Debit, Amount: e.Amount},
			{Role: RoleReceivable, Side: Credit, Amount: e.Amount, Description: e.ContactName},
		}, nil
	case MovementPayment:
		return []TemplateLine{
			{Role: RolePayable, Side: Debit, Amount: e.Amount, Description: e.ContactName},
			{Role: RoleCash, Side: Credit, Amount: e.Amount},
		}, nil
	}
	return nil, fmt.Errorf("accounting: unknown movement kind %q: %w", e.Kind, shared.ErrValidation)
}

// ExpenseTemplate books the expense and its recoverable VAT against cash.
func ExpenseTemplate(e ExpenseEvent) ([]TemplateLine, error) {
	if !e.Category.Valid() {
		return nil, fmt.Errorf("accounting: unknown expense category %q: %w", e.Category, shared.ErrValidation)
	}
	vat := ExpenseVAT(e.Amount, e.VATRate, e.Taxable, e.Rounding)
	return []TemplateLine{
		{Role: ExpenseRole(e.Category), Side: Debit, Amount: e.Amount, Description: e.Description},
		{Role: RoleVATCredit, Side: Debit, Amount: vat, Description: "IVA"},
		{Role: RoleCash, Side: Credit, Amount: e.Amount.Add(vat), Description: "Pago"},
	}, nil
}

// ExpenseVAT is the credit VAT of an expense amount, rounded to cents.
func ExpenseVAT(amount, rate decimal.Decimal, taxable bool, mode shared.RoundingMode) decimal.Decimal {
	if !taxable {
		return decimal.Zero
	}
	return mode.Round2(amount.Mul(rate))
}

func invert(lines []TemplateLine) []TemplateLine {
	out := make([]TemplateLine, len(lines))
	for idx, line := range lines {
		line.Side = line.Side.Opposite()
		out[idx] = line
	}
	return out
}
