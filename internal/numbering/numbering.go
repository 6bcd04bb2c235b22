// Package numbering assigns human readable document numbers of the form
// <prefix><period>-<sequence> from per prefix and period counters.
package numbering

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// DocType identifies a numbered series.
type DocType string

const (
	DocBudget          DocType = "BUDGET"
	DocProductionOrder DocType = "PRODUCTION_ORDER"
	DocInvoiceSale     DocType = "INVOICE_SALE"
	DocInvoicePurchase DocType = "INVOICE_PURCHASE"
	DocSaleCredit      DocType = "INVOICE_SALE_CREDIT"
	DocPurchaseCredit  DocType = "INVOICE_PURCHASE_CREDIT"
	DocDeliveryNote    DocType = "INVOICE_DELIVERY_NOTE"
)

var prefixes = map[DocType]string{
	DocBudget:          "P",
	DocProductionOrder: "",
	DocInvoiceSale:     "FV",
	DocInvoicePurchase: "FC",
	DocSaleCredit:      "NCV",
	DocPurchaseCredit:  "NCC",
	DocDeliveryNote:    "R",
}

// Prefix returns the number prefix for a document type.
func Prefix(docType DocType) (string, error) {
	prefix, ok := prefixes[docType]
	if !ok {
		return "", fmt.Errorf("numbering: unknown document type %q: %w", docType, shared.ErrValidation)
	}
	return prefix, nil
}

// Format renders a document number.
func Format(prefix, period string, seq int64) string {
	return fmt.Sprintf("%s%s-%04d", prefix, period, seq)
}

// ParseSequence extracts the sequence of number when it belongs to the
// prefix and period series.
func ParseSequence(number, prefix, period string) (int64, bool) {
	head := prefix + period + "-"
	if !strings.HasPrefix(number, head) {
		return 0, false
	}
	seq, err := strconv.ParseInt(strings.TrimPrefix(number, head), 10, 64)
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}

// Sequencer advances the counter for a prefix and period and returns the new
// value. Implementations must serialise concurrent callers of the same series.
type Sequencer interface {
	NextSequence(ctx context.Context, prefix, period string) (int64, error)
}

// AssignNumber allocates the next number for docType in the period of date.
func AssignNumber(ctx context.Context, seq Sequencer, docType DocType, date time.Time) (string, error) {
	prefix, err := Prefix(docType)
	if err != nil {
		return "", err
	}
	if seq == nil {
		return "", fmt.Errorf("numbering: sequencer not configured")
	}
	period := shared.PeriodCode(date)
	next, err := seq.NextSequence(ctx, prefix, period)
	if err != nil {
		return "", fmt.Errorf("numbering: next %s%s: %w", prefix, period, err)
	}
	if next <= 0 {
		return "", fmt.Errorf("numbering: counter returned %d for %s%s", next, prefix, period)
	}
	return Format(prefix, period, next), nil
}
