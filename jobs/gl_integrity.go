package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
)

// IntegrityChecker is satisfied by journals.Service.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context, tenantID string) (journals.IntegrityReport, error)
	CheckAllTenants(ctx context.Context) ([]journals.IntegrityReport, error)
}

// JobRecorder counts job outcomes.
type JobRecorder interface {
	ObserveJob(task, result string)
}

// GLIntegrityJob runs the ledger integrity check.
type GLIntegrityJob struct {
	checker IntegrityChecker
	metrics JobRecorder
	logger  *slog.Logger
}

// NewGLIntegrityJob constructs the handler. metrics may be nil.
func NewGLIntegrityJob(checker IntegrityChecker, metrics JobRecorder, logger *slog.Logger) *GLIntegrityJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &GLIntegrityJob{checker: checker, metrics: metrics, logger: logger}
}

// Handle executes the integrity check. Violations are reported, not retried.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.checker == nil {
		return errors.New("gl integrity: handler not configured")
	}
	var payload GLIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	var (
		reports []journals.IntegrityReport
		err     error
	)
	if payload.TenantID != "" {
		var report journals.IntegrityReport
		report, err = j.checker.CheckIntegrity(ctx, payload.TenantID)
		if err == nil {
			reports = append(reports, report)
		}
	} else {
		reports, err = j.checker.CheckAllTenants(ctx)
	}
	if err != nil {
		j.observe(ResultFailure)
		j.logger.Error("gl integrity run failed", slog.String("job", TaskGLIntegrity), slog.Any("error", err))
		return err
	}

	violations := 0
	for _, report := range reports {
		if !report.Healthy() {
			violations++
		}
	}
	if violations > 0 {
		j.observe(ResultViolation)
	} else {
		j.observe(ResultSuccess)
	}
	j.logger.Info("gl integrity check executed",
		slog.String("job", TaskGLIntegrity),
		slog.Int("tenants", len(reports)),
		slog.Int("violations", violations))
	return nil
}

func (j *GLIntegrityJob) observe(result string) {
	if j.metrics != nil {
		j.metrics.ObserveJob(TaskGLIntegrity, result)
	}
}
