package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// KeyPurger is satisfied by shared.IdempotencyStore.
type KeyPurger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob deletes expired idempotency keys.
type IdempotencyCleanupJob struct {
	store     KeyPurger
	retention time.Duration
	metrics   JobRecorder
	logger    *slog.Logger
}

// NewIdempotencyCleanupJob constructs the handler. retention applies when the payload has none.
func NewIdempotencyCleanupJob(store KeyPurger, retention time.Duration, metrics JobRecorder, logger *slog.Logger) *IdempotencyCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdempotencyCleanupJob{store: store, retention: retention, metrics: metrics, logger: logger}
}

// Handle purges keys older than the retention window.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	retention := payload.Retention()
	if retention <= 0 {
		retention = j.retention
	}

	purged, err := j.store.Cleanup(ctx, retention)
	if err != nil {
		j.observe(ResultFailure)
		j.logger.Error("idempotency cleanup failed", slog.String("job", TaskIdempotencyCleanup), slog.Any("error", err))
		return err
	}
	j.observe(ResultSuccess)
	j.logger.Info("idempotency keys purged",
		slog.String("job", TaskIdempotencyCleanup),
		slog.Int64("purged", purged),
		slog.Duration("retention", retention))
	return nil
}

func (j *IdempotencyCleanupJob) observe(result string) {
	if j.metrics != nil {
		j.metrics.ObserveJob(TaskIdempotencyCleanup, result)
	}
}
