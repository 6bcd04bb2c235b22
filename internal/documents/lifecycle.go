package documents

import (
	"fmt"

	"github.com/rvgrafica/rvgrafica-erp/internal/numbering"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

var transitions = map[Kind]shared.Transitions{
	KindBudget: {
		string(StatusDraft): {string(StatusSent), string(StatusApproved), string(StatusRejected)},
		string(StatusSent):  {string(StatusApproved), string(StatusRejected)},
	},
	KindProductionOrder: {
		string(StatusPending):    {string(StatusInProgress), string(StatusCompleted)},
		string(StatusInProgress): {string(StatusCompleted)},
	},
	KindInvoice: {
		string(StatusDraft): {string(StatusIssued)},
	},
}

// InitialStatus is the status a new document of kind starts in.
func InitialStatus(kind Kind) Status {
	if kind == KindProductionOrder {
		return StatusPending
	}
	return StatusDraft
}

// ValidateTransition checks a status change against the lifecycle of kind.
func ValidateTransition(kind Kind, current, target Status) error {
	table, ok := transitions[kind]
	if !ok {
		return fmt.Errorf("documents: unknown kind %q: %w", kind, shared.ErrValidation)
	}
	if err := table.Validate(string(current), string(target)); err != nil {
		return fmt.Errorf("documents: %s: %w", kind, err)
	}
	return nil
}

// LinesLocked reports whether the lines of a document may no longer change.
func LinesLocked(kind Kind, status Status) bool {
	switch kind {
	case KindBudget:
		return status == StatusApproved || status == StatusRejected
	case KindProductionOrder:
		return status == StatusCompleted
	case KindInvoice:
		return status == StatusIssued
	}
	return true
}

// NumberSeries maps a document to its numbering series.
func NumberSeries(kind Kind, invoiceType InvoiceType) (numbering.DocType, error) {
	switch kind {
	case KindBudget:
		return numbering.DocBudget, nil
	case KindProductionOrder:
		return numbering.DocProductionOrder, nil
	case KindInvoice:
		switch invoiceType {
		case InvoiceSale:
			return numbering.DocInvoiceSale, nil
		case InvoicePurchase:
			return numbering.DocInvoicePurchase, nil
		case InvoiceSaleCredit:
			return numbering.DocSaleCredit, nil
		case InvoicePurchaseCredit:
			return numbering.DocPurchaseCredit, nil
		case InvoiceDeliveryNote:
			return numbering.DocDeliveryNote, nil
		}
		return "", fmt.Errorf("documents: unknown invoice type %q: %w", invoiceType, shared.ErrValidation)
	}
	return "", fmt.Errorf("documents: unknown kind %q: %w", kind, shared.ErrValidation)
}
