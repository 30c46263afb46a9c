package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/mms-dairy/mms/internal/jobs"
	"github.com/mms-dairy/mms/internal/sales"
)

// SubscriptionGenerator books the sales due on a day.
type SubscriptionGenerator interface {
	GenerateSubscriptionSales(ctx context.Context, date time.Time, actorID int64) ([]sales.GeneratedSale, error)
}

// SubscriptionGenerateJob runs the daily subscription batch.
type SubscriptionGenerateJob struct {
	Generator SubscriptionGenerator
	ActorID   int64
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewSubscriptionGenerateJob constructs the job handler. actorID is recorded on every generated sale.
func NewSubscriptionGenerateJob(generator SubscriptionGenerator, actorID int64, logger *slog.Logger, metrics *jobmetrics.Metrics) *SubscriptionGenerateJob {
	return &SubscriptionGenerateJob{
		Generator: generator,
		ActorID:   actorID,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the subscription batch. Individual failed subscriptions do not fail the task;
// re-running the same day only books what is still missing.
func (j *SubscriptionGenerateJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Generator == nil {
		return errors.New("subscription generate: dependencies not configured")
	}
	var payload SubscriptionGeneratePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	day := j.now()
	if payload.Date != "" {
		parsed, err := time.Parse(time.DateOnly, payload.Date)
		if err != nil {
			j.log().Error("invalid payload date", slog.String("date", payload.Date))
			return asynq.SkipRetry
		}
		day = parsed
	}
	day = sales.Day(day)

	tracker := j.metrics().Track(TaskSubscriptionGenerate)
	results, err := j.Generator.GenerateSubscriptionSales(ctx, day, j.ActorID)
	if err != nil {
		j.log().Error("generate subscription sales", slog.String("date", day.Format(time.DateOnly)), slog.Any("error", err))
		return tracker.End(err)
	}

	var created, skipped, failed int
	for _, r := range results {
		switch {
		case r.Error != "":
			failed++
		case r.Skipped:
			skipped++
		default:
			created++
		}
	}
	j.metrics().AddSubscriptionResults("created", created)
	j.metrics().AddSubscriptionResults("skipped", skipped)
	j.metrics().AddSubscriptionResults("failed", failed)

	level := slog.LevelInfo
	if failed > 0 {
		level = slog.LevelWarn
	}
	j.log().Log(ctx, level, "subscription sales generated",
		slog.String("date", day.Format(time.DateOnly)),
		slog.Int("created", created),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed))
	return tracker.End(nil)
}

func (j *SubscriptionGenerateJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SubscriptionGenerateJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSubscriptionGenerate))
	}
	return slog.Default().With(slog.String("job", TaskSubscriptionGenerate))
}

func (j *SubscriptionGenerateJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *SubscriptionGenerateJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
