package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/mms-dairy/mms/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSubscriptionGenerate books the day's subscription sales.
	TaskSubscriptionGenerate = "subscriptions:generate"
	// TaskLedgerReconcile compares stock rows against their movement log.
	TaskLedgerReconcile = "ledger:reconcile"
	// TaskIdempotencyCleanup drops expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SubscriptionGeneratePayload selects the delivery day. An empty date means today (UTC).
type SubscriptionGeneratePayload struct {
	Date string `json:"date,omitempty"`
}

// NewSubscriptionGenerateTask constructs an Asynq task generating subscription sales.
func NewSubscriptionGenerateTask(date time.Time) (*asynq.Task, error) {
	var payload SubscriptionGeneratePayload
	if !date.IsZero() {
		payload.Date = date.UTC().Format(time.DateOnly)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSubscriptionGenerate, body, asynq.Queue(QueueDefault)), nil
}

// NewLedgerReconcileTask constructs an Asynq task for ledger reconciliation.
func NewLedgerReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerReconcile, nil, asynq.Queue(QueueDefault))
}

// IdempotencyCleanupPayload configures key retention.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs an Asynq task removing keys older than retention.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
