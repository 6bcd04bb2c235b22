package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvgrafica/rvgrafica-erp/internal/accounting"
	"github.com/rvgrafica/rvgrafica-erp/internal/contacts"
	"github.com/rvgrafica/rvgrafica-erp/internal/documents"
	"github.com/rvgrafica/rvgrafica-erp/internal/expenses"
	"github.com/rvgrafica/rvgrafica-erp/internal/finance"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

type fakeLedger struct {
	mu     sync.Mutex
	events []accounting.Event
	actors []int64
	err    error
}

func (l *fakeLedger) PostEvent(ctx context.Context, evt accounting.Event, actorID int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return 0, l.err
	}
	l.events = append(l.events, evt)
	l.actors = append(l.actors, actorID)
	return int64(len(l.events)), nil
}

type fakeDirectory map[int64]contacts.Contact

func (d fakeDirectory) Get(ctx context.Context, id int64) (contacts.Contact, error) {
	c, ok := d[id]
	if !ok {
		return contacts.Contact{}, contacts.ErrContactNotFound
	}
	return c, nil
}

var (
	hookDate  = time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	directory = fakeDirectory{4: {ID: 4, Name: "Imprenta Sur SRL", TradeName: "Imprenta Sur"}}
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func balanced(t *testing.T, lines []accounting.TemplateLine) {
	t.Helper()
	debit, credit := decimal.Zero, decimal.Zero
	for _, l := range lines {
		if l.Side == accounting.Debit {
			debit = debit.Add(l.Amount)
		} else {
			credit = credit.Add(l.Amount)
		}
	}
	assert.True(t, debit.Equal(credit), "debit %s credit %s", debit, credit)
}

func issued(invoiceType documents.InvoiceType, total string) documents.InvoiceIssuedEvent {
	return documents.InvoiceIssuedEvent{
		ID:                12,
		Number:            "FA-24-0012",
		Type:              invoiceType,
		Date:              hookDate,
		ContactID:         4,
		Subtotal:          dec("200.00"),
		VATAmount:         dec("42.00"),
		PerceptionAmount:  dec("6.00"),
		GrossIncomeAmount: decimal.Zero,
		Total:             dec(total),
		ActorID:           7,
	}
}

func TestHandleInvoiceIssuedMapsEvent(t *testing.T) {
	ledger := &fakeLedger{}
	hooks := NewHooks(ledger, directory, shared.RoundHalfUp, nil)

	require.NoError(t, hooks.HandleInvoiceIssued(context.Background(), issued(documents.InvoiceSale, "248.00")))
	require.Len(t, ledger.events, 1)
	evt, ok := ledger.events[0].(accounting.InvoiceEvent)
	require.True(t, ok)
	assert.Equal(t, int64(12), evt.InvoiceID)
	assert.Equal(t, accounting.InvoiceSale, evt.Type)
	assert.Equal(t, "Imprenta Sur", evt.ContactName)
	assert.True(t, evt.VAT.Equal(dec("42.00")))
	assert.Equal(t, int64(7), ledger.actors[0])

	lines, err := accounting.InvoiceTemplate(evt)
	require.NoError(t, err)
	balanced(t, lines)
}

func TestHandleInvoiceIssuedSkips(t *testing.T) {
	ledger := &fakeLedger{}
	hooks := NewHooks(ledger, directory, shared.RoundHalfUp, nil)
	ctx := context.Background()

	require.NoError(t, hooks.HandleInvoiceIssued(ctx, issued(documents.InvoiceDeliveryNote, "248.00")))
	require.NoError(t, hooks.HandleInvoiceIssued(ctx, issued(documents.InvoiceSale, "0")))
	assert.Empty(t, ledger.events)

	var nilHooks *Hooks
	require.NoError(t, nilHooks.HandleInvoiceIssued(ctx, issued(documents.InvoiceSale, "248.00")))
}

func TestHandleInvoiceIssuedUnknownContact(t *testing.T) {
	ledger := &fakeLedger{}
	hooks := NewHooks(ledger, directory, shared.RoundHalfUp, nil)
	evt := issued(documents.InvoicePurchase, "248.00")
	evt.ContactID = 99
	require.ErrorIs(t, hooks.HandleInvoiceIssued(context.Background(), evt), shared.ErrNotFound)
	assert.Empty(t, ledger.events)
}

func TestAlreadyPostedIsSuccess(t *testing.T) {
	ledger := &fakeLedger{err: &accounting.AlreadyPostedError{EntryID: 3, SourceModule: accounting.SourceInvoice}}
	hooks := NewHooks(ledger, directory, shared.RoundHalfUp, nil)
	require.NoError(t, hooks.HandleInvoiceIssued(context.Background(), issued(documents.InvoiceSale, "248.00")))

	ledger.err = errors.New("connection reset")
	require.Error(t, hooks.HandleInvoiceIssued(context.Background(), issued(documents.InvoiceSale, "248.00")))
}

func TestHandleMovementRecorded(t *testing.T) {
	ledger := &fakeLedger{}
	hooks := NewHooks(ledger, directory, shared.RoundHalfUp, nil)
	ctx := context.Background()

	require.NoError(t, hooks.HandleMovementRecorded(ctx, finance.MovementRecordedEvent{
		ID: 5, Kind: finance.KindPayment, Date: hookDate, Amount: dec("500.00"), ContactName: "Papelera Norte", ActorID: 2,
	}))
	require.NoError(t, hooks.HandleMovementRecorded(ctx, finance.MovementRecordedEvent{ID: 6, Kind: finance.KindCollection, Amount: decimal.Zero}))
	require.Len(t, ledger.events, 1)
	evt := ledger.events[0].(accounting.FinanceMovementEvent)
	assert.Equal(t, accounting.MovementPayment, evt.Kind)
	assert.Equal(t, int64(5), evt.MovementID)

	lines, err := accounting.MovementTemplate(evt)
	require.NoError(t, err)
	balanced(t, lines)
}

func TestHandleExpenseRecordedUsesRounding(t *testing.T) {
	ledger := &fakeLedger{}
	hooks := NewHooks(ledger, directory, shared.RoundHalfEven, nil)

	require.NoError(t, hooks.HandleExpenseRecorded(context.Background(), expenses.ExpenseRecordedEvent{
		ID: 9, Date: hookDate, Category: accounting.ExpenseFuel, Description: "Nafta", Amount: dec("0.50"), Taxable: true, VATRate: dec("0.21"),
	}))
	require.Len(t, ledger.events, 1)
	evt := ledger.events[0].(accounting.ExpenseEvent)
	assert.Equal(t, shared.RoundHalfEven, evt.Rounding)

	lines, err := accounting.ExpenseTemplate(evt)
	require.NoError(t, err)
	balanced(t, lines)
	assert.Equal(t, "0.10", lines[1].Amount.StringFixed(2))
}
