package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	retention time.Duration
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string, retention time.Duration) *JobsCLI {
	return &JobsCLI{client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}), retention: retention}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Trigger enqueues a supported job by name with its default payload.
func (c *JobsCLI) Trigger(ctx context.Context, name, tenantID string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := BuildTask(name, tenantID, c.retention)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// BuildTask maps a job name to its task.
func BuildTask(name, tenantID string, retention time.Duration) (*asynq.Task, error) {
	switch name {
	case jobs.TaskGLIntegrity:
		return jobs.NewGLIntegrityTask(tenantID)
	case jobs.TaskIdempotencyCleanup:
		return jobs.NewIdempotencyCleanupTask(retention)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}
