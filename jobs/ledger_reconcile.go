package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/mms-dairy/mms/internal/inventory"
	jobmetrics "github.com/mms-dairy/mms/internal/jobs"
)

// Reconciler reports stock rows whose quantity drifted from their movements.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]inventory.Discrepancy, error)
}

// LedgerReconcileJob audits the stock ledger.
type LedgerReconcileJob struct {
	Reconciler Reconciler
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewLedgerReconcileJob constructs the job handler.
func NewLedgerReconcileJob(reconciler Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerReconcileJob {
	return &LedgerReconcileJob{Reconciler: reconciler, Logger: logger, Metrics: metrics}
}

// Handle logs every discrepancy and publishes their count. Drift is reported, never repaired.
func (j *LedgerReconcileJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Reconciler == nil {
		return errors.New("ledger reconcile: dependencies not configured")
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskLedgerReconcile))

	tracker := metrics.Track(TaskLedgerReconcile)
	discrepancies, err := j.Reconciler.Reconcile(ctx)
	if err != nil {
		logger.Error("reconcile ledger", slog.Any("error", err))
		return tracker.End(err)
	}
	metrics.SetDiscrepancies(len(discrepancies))
	for _, d := range discrepancies {
		logger.Warn("stock differs from movements",
			slog.Int64("product_id", d.ProductID),
			slog.String("stock", d.StockQuantity.String()),
			slog.String("ledger", d.LedgerQuantity.String()),
			slog.String("difference", d.Difference().String()))
	}
	if len(discrepancies) == 0 {
		logger.Info("stock ledger consistent")
	}
	return tracker.End(nil)
}
