package integration

import (
	"github.com/rvgrafica/rvgrafica-erp/internal/accounting"
	"github.com/rvgrafica/rvgrafica-erp/internal/documents"
	"github.com/rvgrafica/rvgrafica-erp/internal/expenses"
	"github.com/rvgrafica/rvgrafica-erp/internal/finance"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

func invoiceEvent(evt documents.InvoiceIssuedEvent, contactName string) accounting.InvoiceEvent {
	return accounting.InvoiceEvent{
		InvoiceID:   evt.ID,
		Number:      evt.Number,
		Type:        accounting.InvoiceType(evt.Type),
		Date:        evt.Date,
		ContactName: contactName,
		Subtotal:    evt.Subtotal,
		VAT:         evt.VATAmount,
		Perception:  evt.PerceptionAmount,
		GrossIncome: evt.GrossIncomeAmount,
		Total:       evt.Total,
	}
}

func movementEvent(evt finance.MovementRecordedEvent) accounting.FinanceMovementEvent {
	return accounting.FinanceMovementEvent{
		MovementID:  evt.ID,
		Kind:        accounting.MovementKind(evt.Kind),
		Date:        evt.Date,
		Amount:      evt.Amount,
		ContactName: evt.ContactName,
		Reference:   evt.Reference,
	}
}

func expenseEvent(evt expenses.ExpenseRecordedEvent, rounding shared.RoundingMode) accounting.ExpenseEvent {
	return accounting.ExpenseEvent{
		ExpenseID:   evt.ID,
		Date:        evt.Date,
		Category:    evt.Category,
		Description: evt.Description,
		Amount:      evt.Amount,
		Taxable:     evt.Taxable,
		VATRate:     evt.VATRate,
		Rounding:    rounding,
	}
}
