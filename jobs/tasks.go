package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGLIntegrity compares stored account balances with journal lines.
	TaskGLIntegrity = "ledger:gl_integrity"
	// TaskIdempotencyCleanup purges expired posting idempotency keys.
	TaskIdempotencyCleanup = "ledger:idempotency_cleanup"
)

// Job outcome labels recorded by JobRecorder.
const (
	ResultSuccess   = "success"
	ResultViolation = "violation"
	ResultFailure   = "failure"
)

// GLIntegrityPayload scopes an integrity run; an empty tenant sweeps every tenant.
type GLIntegrityPayload struct {
	TenantID string `json:"tenant_id,omitempty"`
}

// IdempotencyCleanupPayload carries the retention window in seconds.
type IdempotencyCleanupPayload struct {
	RetentionSeconds int64 `json:"retention_seconds"`
}

// Retention converts the payload window to a duration.
func (p IdempotencyCleanupPayload) Retention() time.Duration {
	return time.Duration(p.RetentionSeconds) * time.Second
}

// NewGLIntegrityTask constructs the integrity task for one tenant or all of them.
func NewGLIntegrityTask(tenantID string) (*asynq.Task, error) {
	body, err := json.Marshal(GLIntegrityPayload{TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, body, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionSeconds: int64(retention / time.Second)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
