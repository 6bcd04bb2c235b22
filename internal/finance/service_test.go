package finance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	contacts  map[int64]string
	invoices  map[int64]int64
	movements map[int64]Movement
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		contacts:  map[int64]string{1: "Imprenta Sur", 2: "Papelera Norte"},
		invoices:  map[int64]int64{10: 1},
		movements: make(map[int64]Movement),
	}
}

type memoryTx struct {
	repo    *memoryRepo
	pending []Movement
	nextID  int64
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := &memoryTx{repo: r, nextID: r.nextID}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, m := range tx.pending {
		r.movements[m.ID] = m
	}
	r.nextID = tx.nextID
	return nil
}

func (t *memoryTx) ContactName(ctx context.Context, contactID int64) (string, error) {
	name, ok := t.repo.contacts[contactID]
	if !ok {
		return "", ErrContactNotFound
	}
	return name, nil
}

func (t *memoryTx) InvoiceBelongsTo(ctx context.Context, invoiceID, contactID int64) (bool, error) {
	owner, ok := t.repo.invoices[invoiceID]
	if !ok {
		return false, ErrInvoiceNotFound
	}
	return owner == contactID, nil
}

func (t *memoryTx) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	t.nextID++
	m.ID = t.nextID
	t.pending = append(t.pending, m)
	return m.ID, nil
}

func (r *memoryRepo) GetMovement(ctx context.Context, id int64) (Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.movements[id]
	if !ok {
		return Movement{}, ErrMovementNotFound
	}
	return m, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter ListFilter) ([]Movement, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Movement
	for _, m := range r.movements {
		if filter.ContactID > 0 && m.ContactID != filter.ContactID {
			continue
		}
		if filter.Kind != "" && m.Kind != filter.Kind {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (r *memoryRepo) ContactBalance(ctx context.Context, contactID int64) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := decimal.Zero
	for _, m := range r.movements {
		if m.ContactID == contactID {
			total = total.Add(m.SignedAmount())
		}
	}
	return total, nil
}

type recordingIntegration struct {
	mu     sync.Mutex
	events []MovementRecordedEvent
	err    error
}

func (r *recordingIntegration) HandleMovementRecorded(ctx context.Context, evt MovementRecordedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return r.err
}

var movementDate = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func TestSignedAmount(t *testing.T) {
	amount := decimal.RequireFromString("500.00")
	assert.True(t, Movement{Kind: KindCollection, Amount: amount}.SignedAmount().Equal(amount))
	assert.Equal(t, "-500.00", Movement{Kind: KindPayment, Amount: amount}.SignedAmount().StringFixed(2))
}

func TestRecordMovementPostsAfterCommit(t *testing.T) {
	repo := newMemoryRepo()
	hook := &recordingIntegration{}
	svc := NewService(repo, hook, nil)
	ctx := context.Background()

	invoiceID := int64(10)
	mv, err := svc.RecordMovement(ctx, RecordInput{
		ContactID: 1,
		InvoiceID: &invoiceID,
		Kind:      "collection",
		Date:      movementDate,
		Amount:    decimal.RequireFromString("500.00"),
		Reference: "REC-0001",
		ActorID:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, KindCollection, mv.Kind)
	assert.Equal(t, "Imprenta Sur", mv.ContactName)

	require.Len(t, hook.events, 1)
	evt := hook.events[0]
	assert.Equal(t, mv.ID, evt.ID)
	assert.Equal(t, "Imprenta Sur", evt.ContactName)
	assert.Equal(t, "REC-0001", evt.Reference)
	assert.Equal(t, int64(5), evt.ActorID)

	_, err = svc.RecordMovement(ctx, RecordInput{ContactID: 1, Kind: KindPayment, Date: movementDate, Amount: decimal.RequireFromString("120.50")})
	require.NoError(t, err)
	balance, err := svc.ContactBalance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "379.50", balance.StringFixed(2))
}

func TestRecordMovementRejections(t *testing.T) {
	repo := newMemoryRepo()
	hook := &recordingIntegration{}
	svc := NewService(repo, hook, nil)
	ctx := context.Background()
	amount := decimal.RequireFromString("10")

	_, err := svc.RecordMovement(ctx, RecordInput{ContactID: 1, Kind: KindCollection, Amount: decimal.Zero})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.RecordMovement(ctx, RecordInput{ContactID: 1, Kind: "REFUND", Amount: amount})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.RecordMovement(ctx, RecordInput{ContactID: 99, Kind: KindCollection, Amount: amount})
	require.ErrorIs(t, err, shared.ErrReference)

	missing := int64(77)
	_, err = svc.RecordMovement(ctx, RecordInput{ContactID: 1, InvoiceID: &missing, Kind: KindCollection, Amount: amount})
	require.ErrorIs(t, err, shared.ErrReference)
	foreign := int64(10)
	_, err = svc.RecordMovement(ctx, RecordInput{ContactID: 2, InvoiceID: &foreign, Kind: KindCollection, Amount: amount})
	require.ErrorIs(t, err, shared.ErrValidation)

	assert.Empty(t, repo.movements)
	assert.Empty(t, hook.events)
}

func TestRecordMovementKeepsMovementWhenPostingFails(t *testing.T) {
	repo := newMemoryRepo()
	hook := &recordingIntegration{err: errors.New("ledger down")}
	svc := NewService(repo, hook, nil)
	ctx := context.Background()

	mv, err := svc.RecordMovement(ctx, RecordInput{ContactID: 2, Kind: KindPayment, Date: movementDate, Amount: decimal.RequireFromString("80")})
	require.Error(t, err)
	require.NotZero(t, mv.ID)
	_, getErr := svc.GetMovement(ctx, mv.ID)
	require.NoError(t, getErr)

	hook.err = nil
	require.NoError(t, svc.RepostMovement(ctx, mv.ID, 3))
	require.Len(t, hook.events, 2)
	assert.Equal(t, int64(3), hook.events[1].ActorID)

	require.ErrorIs(t, svc.RepostMovement(ctx, 404, 3), shared.ErrNotFound)
}

func TestFinanceHandler(t *testing.T) {
	hook := &recordingIntegration{}
	svc := NewService(newMemoryRepo(), hook, nil)
	r := chi.NewRouter()
	r.Route("/finance", NewHandler(nil, svc).MountRoutes)

	body, _ := json.Marshal(map[string]any{"contact_id": 2, "kind": "PAYMENT", "amount": "500.00", "date": movementDate})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/finance/movements", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "-500.00", created["signed_amount"])

	hook.err = errors.New("ledger down")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/finance/movements", bytes.NewReader(body)))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/finance/movements?kind=payment&contact_id=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed.Items, 2)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/finance/contacts/2/balance", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"-1000.00"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/finance/movements?from=15-03-2024", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
