package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/mms-dairy/mms/internal/jobs"
)

const defaultKeyRetention = 7 * 24 * time.Hour

// KeyCleaner removes idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob keeps the idempotency table bounded.
type IdempotencyCleanupJob struct {
	Cleaner KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob constructs the job handler.
func NewIdempotencyCleanupJob(cleaner KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Cleaner: cleaner, Logger: logger, Metrics: metrics}
}

// Handle deletes expired keys.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Cleaner == nil {
		return errors.New("idempotency cleanup: dependencies not configured")
	}
	var payload IdempotencyCleanupPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	retention := time.Duration(payload.RetentionHours) * time.Hour
	if retention <= 0 {
		retention = defaultKeyRetention
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracker := metrics.Track(TaskIdempotencyCleanup)
	removed, err := j.Cleaner.Cleanup(ctx, retention)
	if err != nil {
		logger.Error("cleanup idempotency keys", slog.String("job", TaskIdempotencyCleanup), slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("idempotency keys removed", slog.String("job", TaskIdempotencyCleanup),
		slog.Int64("removed", removed), slog.Duration("retention", retention))
	return tracker.End(nil)
}
