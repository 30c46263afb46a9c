package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mms-dairy/mms/internal/inventory"
	jobmetrics "github.com/mms-dairy/mms/internal/jobs"
	"github.com/mms-dairy/mms/internal/sales"
	"github.com/mms-dairy/mms/internal/shared"
)

type fakeGenerator struct {
	day     time.Time
	actorID int64
	results []sales.GeneratedSale
	err     error
}

func (g *fakeGenerator) GenerateSubscriptionSales(_ context.Context, date time.Time, actorID int64) ([]sales.GeneratedSale, error) {
	g.day, g.actorID = date, actorID
	return g.results, g.err
}

func testMetrics(t *testing.T) (*jobmetrics.Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return jobmetrics.NewMetrics(reg), reg
}

func subscriptionCounts(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "mms_subscription_sales_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			out[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
		}
	}
	return out
}

func TestSubscriptionGenerateUsesPayloadDate(t *testing.T) {
	metrics, reg := testMetrics(t)
	gen := &fakeGenerator{results: []sales.GeneratedSale{
		{SubscriptionID: 1, SaleID: 10},
		{SubscriptionID: 2, Skipped: true, Reason: "skipped for the day"},
		{SubscriptionID: 3, Error: "insufficient stock"},
	}}
	job := NewSubscriptionGenerateJob(gen, 99, nil, metrics)

	task, err := NewSubscriptionGenerateTask(time.Date(2026, 4, 5, 22, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.Equal(t, time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC), gen.day)
	assert.Equal(t, int64(99), gen.actorID)
	assert.Equal(t, map[string]float64{"created": 1, "skipped": 1, "failed": 1}, subscriptionCounts(t, reg))
}

func TestSubscriptionGenerateDefaultsToToday(t *testing.T) {
	metrics, _ := testMetrics(t)
	gen := &fakeGenerator{}
	job := NewSubscriptionGenerateJob(gen, 0, nil, metrics)
	job.WithClock(func() time.Time { return time.Date(2026, 4, 6, 3, 15, 0, 0, time.UTC) })

	task, err := NewSubscriptionGenerateTask(time.Time{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.Equal(t, time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC), gen.day)
}

func TestSubscriptionGenerateRejectsBadPayload(t *testing.T) {
	metrics, _ := testMetrics(t)
	job := NewSubscriptionGenerateJob(&fakeGenerator{}, 0, nil, metrics)

	err := job.Handle(context.Background(), asynq.NewTask(TaskSubscriptionGenerate, []byte(`{"date":"04/06/2026"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSubscriptionGenerateFailureIsRetried(t *testing.T) {
	metrics, _ := testMetrics(t)
	boom := errors.New("db down")
	job := NewSubscriptionGenerateJob(&fakeGenerator{err: boom}, 0, nil, metrics)

	task, err := NewSubscriptionGenerateTask(time.Time{})
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

type fakeReconciler struct {
	out []inventory.Discrepancy
	err error
}

func (r fakeReconciler) Reconcile(context.Context) ([]inventory.Discrepancy, error) {
	return r.out, r.err
}

func TestLedgerReconcilePublishesDiscrepancies(t *testing.T) {
	metrics, reg := testMetrics(t)
	job := NewLedgerReconcileJob(fakeReconciler{out: []inventory.Discrepancy{
		{ProductID: 1, StockQuantity: decimal.NewFromInt(5), LedgerQuantity: decimal.NewFromInt(4)},
		{ProductID: 2, StockQuantity: decimal.NewFromInt(0), LedgerQuantity: decimal.NewFromInt(1)},
	}}, nil, metrics)

	require.NoError(t, job.Handle(context.Background(), NewLedgerReconcileTask()))

	families, err := reg.Gather()
	require.NoError(t, err)
	var gauge float64
	for _, f := range families {
		if f.GetName() == "mms_stock_discrepancies" {
			gauge = f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, float64(2), gauge)
}

func TestLedgerReconcileError(t *testing.T) {
	metrics, _ := testMetrics(t)
	job := NewLedgerReconcileJob(fakeReconciler{err: errors.New("timeout")}, nil, metrics)

	require.Error(t, job.Handle(context.Background(), NewLedgerReconcileTask()))
}

type fakeCleaner struct {
	olderThan time.Duration
}

func (c *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	c.olderThan = olderThan
	return 4, nil
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	metrics, _ := testMetrics(t)
	cleaner := &fakeCleaner{}
	job := NewIdempotencyCleanupJob(cleaner, nil, metrics)

	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 48*time.Hour, cleaner.olderThan)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, defaultKeyRetention, cleaner.olderThan)
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func TestJobsHealthReportsQueue(t *testing.T) {
	r := chi.NewRouter()
	h := NewHandler(nil, nil)
	h.inspector = fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}}
	h.MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":3,"retry":1}`, rec.Body.String())
}

func TestJobsHealthInspectorDown(t *testing.T) {
	r := chi.NewRouter()
	h := NewHandler(nil, nil)
	h.inspector = fakeInspector{err: errors.New("redis down")}
	h.MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLockContentionRetriesQuickly(t *testing.T) {
	conflict := &shared.ConcurrencyConflictError{Key: shared.ProductLockKey(1)}
	task := NewLedgerReconcileTask()

	assert.False(t, isFailure(conflict))
	assert.True(t, isFailure(errors.New("db down")))
	assert.Equal(t, lockRetryDelay, retryDelay(5, conflict, task))
}

func TestNewWorkerRejectsIncompleteHandler(t *testing.T) {
	_, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Handlers:  []TaskHandler{{Type: TaskLedgerReconcile}},
	})
	require.Error(t, err)
}
