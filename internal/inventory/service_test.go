package inventory

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/rvgrafica/rvgrafica-erp/internal/observability"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

type memoryState struct {
	materials map[int64]Material
	movements []StockMovement
	usages    []MaterialUsage
	nextID    int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		materials: make(map[int64]Material, len(s.materials)),
		movements: append([]StockMovement(nil), s.movements...),
		usages:    append([]MaterialUsage(nil), s.usages...),
		nextID:    s.nextID,
	}
	for k, v := range s.materials {
		out.materials[k] = v
	}
	return out
}

type memoryRepo struct {
	mu     sync.Mutex
	state  memoryState
	orders map[int64]string
}

type memoryTx struct {
	state  *memoryState
	orders map[int64]string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		state:  memoryState{materials: make(map[int64]Material)},
		orders: map[int64]string{7: "24-0007"},
	}
}

// WithTx serialises transactions, standing in for the row lock.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	working := r.state.clone()
	if err := fn(ctx, &memoryTx{state: &working, orders: r.orders}); err != nil {
		return err
	}
	r.state = working
	return nil
}

func (r *memoryRepo) GetMaterial(ctx context.Context, id int64) (Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.state.materials[id]
	if !ok {
		return Material{}, ErrMaterialNotFound
	}
	return m, nil
}

func (r *memoryRepo) ListMaterials(ctx context.Context, filter MaterialFilter) ([]Material, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Material
	for _, m := range r.state.materials {
		if filter.BelowMinimum && !m.BelowMinimum() {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	total := len(out)
	if filter.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StockMovement
	for i := len(r.state.movements) - 1; i >= 0; i-- {
		mv := r.state.movements[i]
		if filter.MaterialID > 0 && mv.MaterialID != filter.MaterialID {
			continue
		}
		if filter.OrderID > 0 && (mv.OrderID == nil || *mv.OrderID != filter.OrderID) {
			continue
		}
		out = append(out, mv)
	}
	return out, len(out), nil
}

func (r *memoryRepo) StockDiscrepancies(ctx context.Context) ([]StockDiscrepancy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sums := map[int64]decimal.Decimal{}
	for _, mv := range r.state.movements {
		sums[mv.MaterialID] = sums[mv.MaterialID].Add(mv.Quantity)
	}
	var out []StockDiscrepancy
	for id, m := range r.state.materials {
		if !m.CurrentStock.Equal(sums[id]) {
			out = append(out, StockDiscrepancy{MaterialID: id, Name: m.Name, CurrentStock: m.CurrentStock, MovementSum: sums[id]})
		}
	}
	return out, nil
}

func (tx *memoryTx) InsertMaterial(ctx context.Context, m Material) (int64, error) {
	for _, existing := range tx.state.materials {
		if existing.Name == m.Name {
			return 0, ErrDuplicateMaterial
		}
	}
	tx.state.nextID++
	m.ID = tx.state.nextID
	m.CurrentStock = decimal.Zero
	tx.state.materials[m.ID] = m
	return m.ID, nil
}

func (tx *memoryTx) GetMaterialForUpdate(ctx context.Context, id int64) (Material, error) {
	m, ok := tx.state.materials[id]
	if !ok {
		return Material{}, ErrMaterialNotFound
	}
	return m, nil
}

func (tx *memoryTx) UpdateStock(ctx context.Context, id int64, stock decimal.Decimal, actorID int64) error {
	m := tx.state.materials[id]
	m.CurrentStock = stock
	m.UpdatedBy = actorID
	tx.state.materials[id] = m
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, mv StockMovement) (int64, error) {
	tx.state.nextID++
	mv.ID = tx.state.nextID
	tx.state.movements = append(tx.state.movements, mv)
	return mv.ID, nil
}

func (tx *memoryTx) InsertUsage(ctx context.Context, u MaterialUsage) (int64, error) {
	tx.state.nextID++
	u.ID = tx.state.nextID
	tx.state.usages = append(tx.state.usages, u)
	return u.ID, nil
}

func (tx *memoryTx) OrderNumber(ctx context.Context, orderID int64) (string, error) {
	number, ok := tx.orders[orderID]
	if !ok {
		return "", ErrOrderNotFound
	}
	return number, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(repo *memoryRepo, allowNeg bool) *Service {
	svc := NewService(repo, ServiceConfig{AllowNegativeStock: allowNeg}, nil)
	svc.WithNow(func() time.Time { return time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC) })
	return svc
}

func createVinyl(t *testing.T, svc *Service, initial string) Material {
	t.Helper()
	m, err := svc.CreateMaterial(context.Background(), CreateMaterialInput{
		Name: "Vinilo blanco", Category: "vinilos", InitialStock: dec(initial), MinimumStock: dec("10"), UnitCost: dec("850"), ActorID: 1,
	})
	require.NoError(t, err)
	return m
}

func TestCreateMaterialRecordsInitialStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, true)

	m := createVinyl(t, svc, "25.5")
	assert.Equal(t, DefaultUnit, m.Unit)
	assert.True(t, dec("25.5").Equal(m.CurrentStock))
	require.Len(t, repo.state.movements, 1)
	assert.Equal(t, InitialReason, repo.state.movements[0].Reason)

	_, err := svc.CreateMaterial(context.Background(), CreateMaterialInput{Name: "Vinilo blanco"})
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = svc.CreateMaterial(context.Background(), CreateMaterialInput{Name: "  "})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAdjustStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, true)
	ctx := context.Background()
	m := createVinyl(t, svc, "0")

	id, err := svc.AdjustStock(ctx, AdjustStockInput{MaterialID: m.ID, Delta: dec("12.50"), ActorID: 3})
	require.NoError(t, err)
	_, err = svc.AdjustStock(ctx, AdjustStockInput{MaterialID: m.ID, Delta: dec("-4.25"), Reason: "rotura", Reference: "R-1"})
	require.NoError(t, err)

	got, err := svc.GetMaterial(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, dec("8.25").Equal(got.CurrentStock), got.CurrentStock.String())
	assert.True(t, got.BelowMinimum())

	movements, total, err := svc.ListMovements(ctx, MovementFilter{MaterialID: m.ID})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	assert.Equal(t, "rotura", movements[0].Reason)
	assert.True(t, dec("8.25").Equal(movements[0].BalanceAfter))
	assert.Equal(t, id, movements[1].ID)
	assert.Equal(t, DefaultReason, movements[1].Reason)
	assert.Equal(t, int64(3), movements[1].CreatedBy)
}

func TestAdjustStockRejections(t *testing.T) {
	repo := newMemoryRepo()
	ctx := context.Background()
	strict := newTestService(repo, false)
	m := createVinyl(t, strict, "2")

	_, err := strict.AdjustStock(ctx, AdjustStockInput{MaterialID: m.ID, Delta: decimal.Zero})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = strict.AdjustStock(ctx, AdjustStockInput{MaterialID: 404, Delta: dec("1")})
	require.ErrorIs(t, err, shared.ErrReference)

	_, err = strict.AdjustStock(ctx, AdjustStockInput{MaterialID: m.ID, Delta: dec("-3")})
	require.ErrorIs(t, err, ErrNegativeStock)
	require.Len(t, repo.state.movements, 1, "rejected adjustments leave no movement")

	lenient := newTestService(repo, true)
	_, err = lenient.AdjustStock(ctx, AdjustStockInput{MaterialID: m.ID, Delta: dec("-3")})
	require.NoError(t, err)
	got, err := lenient.GetMaterial(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, dec("-1").Equal(got.CurrentStock))
}

func TestConcurrentAdjustmentsKeepStockInSync(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, true)
	ctx := context.Background()
	m := createVinyl(t, svc, "100")

	var g errgroup.Group
	for i := 0; i < 40; i++ {
		delta := dec("1.5")
		if i%2 == 1 {
			delta = dec("-2")
		}
		g.Go(func() error {
			_, err := svc.AdjustStock(ctx, AdjustStockInput{MaterialID: m.ID, Delta: delta})
			return err
		})
	}
	require.NoError(t, g.Wait())

	got, err := svc.GetMaterial(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, dec("90").Equal(got.CurrentStock), got.CurrentStock.String())
	issues, err := svc.VerifyStock(ctx)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestRecordUsage(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, true)
	ctx := context.Background()
	m := createVinyl(t, svc, "20")

	usage, err := svc.RecordUsage(ctx, UsageInput{OrderID: 7, MaterialID: m.ID, Quantity: dec("3.2"), ActorID: 2})
	require.NoError(t, err)
	assert.NotZero(t, usage.ID)

	movements, _, err := svc.ListMovements(ctx, MovementFilter{OrderID: 7})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, usage.MovementID, movements[0].ID)
	assert.True(t, dec("-3.2").Equal(movements[0].Quantity))
	assert.Equal(t, "24-0007", movements[0].Reference)
	assert.Equal(t, UsageReason, movements[0].Reason)

	_, err = svc.RecordUsage(ctx, UsageInput{OrderID: 99, MaterialID: m.ID, Quantity: dec("1")})
	require.ErrorIs(t, err, shared.ErrReference)
	_, err = svc.RecordUsage(ctx, UsageInput{OrderID: 7, MaterialID: m.ID, Quantity: dec("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestListBelowMinimumAndVerify(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, true)
	ctx := context.Background()
	low := createVinyl(t, svc, "4")
	_, err := svc.CreateMaterial(ctx, CreateMaterialInput{Name: "Lona front", InitialStock: dec("50"), MinimumStock: dec("5")})
	require.NoError(t, err)

	below, err := svc.ListBelowMinimum(ctx)
	require.NoError(t, err)
	require.Len(t, below, 1)
	assert.Equal(t, low.ID, below[0].ID)

	m := repo.state.materials[low.ID]
	m.CurrentStock = dec("5")
	repo.state.materials[low.ID] = m
	issues, err := svc.VerifyStock(ctx)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.True(t, dec("4").Equal(issues[0].MovementSum))
}

func TestAdjustStockMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := newTestService(newMemoryRepo(), true)
	svc.WithMetrics(observability.NewDomainMetrics(reg))
	m := createVinyl(t, svc, "1")
	_, err := svc.AdjustStock(context.Background(), AdjustStockInput{MaterialID: m.ID, Delta: dec("-1")})
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "rvgrafica_stock_adjustments_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
