package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvgrafica/rvgrafica-erp/internal/accounting"
	"github.com/rvgrafica/rvgrafica-erp/internal/documents"
	"github.com/rvgrafica/rvgrafica-erp/internal/inventory"
	jobmetrics "github.com/rvgrafica/rvgrafica-erp/internal/jobs"
)

type fakeLedger struct {
	issues []accounting.EntryIssue
	err    error
}

func (f fakeLedger) VerifyBalanced(ctx context.Context) ([]accounting.EntryIssue, error) {
	return f.issues, f.err
}

type fakeInventory struct {
	drift []inventory.StockDiscrepancy
	low   []inventory.Material
	err   error
	calls atomic.Int32
}

func (f *fakeInventory) VerifyStock(ctx context.Context) ([]inventory.StockDiscrepancy, error) {
	f.calls.Add(1)
	return f.drift, f.err
}

func (f *fakeInventory) ListBelowMinimum(ctx context.Context) ([]inventory.Material, error) {
	f.calls.Add(1)
	return f.low, nil
}

type fakeDocuments struct {
	recomputed []int64
	all        int
	err        error
}

func (f *fakeDocuments) RecomputeTotals(ctx context.Context, documentID int64) (documents.Totals, error) {
	if f.err != nil {
		return documents.Totals{}, f.err
	}
	f.recomputed = append(f.recomputed, documentID)
	return documents.Totals{Total: decimal.RequireFromString("242")}, nil
}

func (f *fakeDocuments) RecomputeAll(ctx context.Context) (int, error) {
	f.all++
	return 3, f.err
}

func TestTaskConstructors(t *testing.T) {
	at := time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)
	task, err := NewLedgerVerifyTask(at)
	require.NoError(t, err)
	assert.Equal(t, TaskLedgerVerify, task.Type())
	var scheduled ScheduledPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &scheduled))
	assert.True(t, scheduled.ScheduledFor.Equal(at))

	task, err = NewRecomputeTask(17)
	require.NoError(t, err)
	var payload RecomputePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, int64(17), payload.DocumentID)
}

func TestLedgerVerifyJobCountsFindings(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := NewLedgerVerifyJob(fakeLedger{issues: []accounting.EntryIssue{
		{EntryID: 1, Debit: decimal.NewFromInt(10), Credit: decimal.NewFromInt(9)},
		{EntryID: 2, MixedLine: true},
	}}, nil, metrics)

	task, err := NewLedgerVerifyTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	count, err := testutil.GatherAndCount(reg, "rvgrafica_job_findings_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	failing := NewLedgerVerifyJob(fakeLedger{err: errors.New("db gone")}, nil, metrics)
	require.Error(t, failing.Handle(context.Background(), task))

	var unset *LedgerVerifyJob
	require.Error(t, unset.Handle(context.Background(), task))
}

func TestStockAuditJobRunsBothChecks(t *testing.T) {
	inv := &fakeInventory{
		drift: []inventory.StockDiscrepancy{{MaterialID: 1, Name: "Vinilo"}},
		low:   []inventory.Material{{ID: 2, Name: "Lona", CurrentStock: decimal.NewFromInt(1), MinimumStock: decimal.NewFromInt(5)}},
	}
	job := NewStockAuditJob(inv, nil, nil)
	task, err := NewStockAuditTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, int32(2), inv.calls.Load())

	inv.err = errors.New("query failed")
	require.Error(t, job.Handle(context.Background(), task))
}

func TestRecomputeJob(t *testing.T) {
	docs := &fakeDocuments{}
	job := NewRecomputeJob(docs, nil, nil)
	ctx := context.Background()

	one, err := NewRecomputeTask(5)
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, one))
	assert.Equal(t, []int64{5}, docs.recomputed)

	all, err := NewRecomputeTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, all))
	assert.Equal(t, 1, docs.all)

	docs.err = documents.ErrDocumentNotFound
	err = job.Handle(ctx, one)
	require.ErrorIs(t, err, asynq.SkipRetry)

	require.ErrorIs(t, job.Handle(ctx, asynq.NewTask(TaskDocumentsRecompute, []byte("{"))), asynq.SkipRetry)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func TestJobsHealth(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4, Failed: 1}}, nil).MountRoutes)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var out queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 4, out.Pending)
	assert.Equal(t, 1, out.Failed)

	r = chi.NewRouter()
	r.Route("/jobs", NewHandler(fakeInspector{err: errors.New("redis down")}, nil).MountRoutes)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	r = chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil).MountRoutes)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
