package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeChecker struct {
	reports  []journals.IntegrityReport
	err      error
	tenantID string
	swept    bool
}

func (f *fakeChecker) CheckIntegrity(_ context.Context, tenantID string) (journals.IntegrityReport, error) {
	f.tenantID = tenantID
	if f.err != nil {
		return journals.IntegrityReport{}, f.err
	}
	return journals.IntegrityReport{TenantID: tenantID}, nil
}

func (f *fakeChecker) CheckAllTenants(context.Context) ([]journals.IntegrityReport, error) {
	f.swept = true
	return f.reports, f.err
}

type fakeRecorder struct {
	mu      sync.Mutex
	results map[string][]string
}

func (r *fakeRecorder) ObserveJob(task, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = map[string][]string{}
	}
	r.results[task] = append(r.results[task], result)
}

func TestGLIntegritySweepReportsViolations(t *testing.T) {
	checker := &fakeChecker{reports: []journals.IntegrityReport{
		{TenantID: "a"},
		{TenantID: "b", Unbalanced: []journals.UnbalancedEntry{{EntryID: 7, Number: "JE-000007"}}},
	}}
	rec := &fakeRecorder{}
	job := NewGLIntegrityJob(checker, rec, quietLogger())

	task, err := NewGLIntegrityTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.True(t, checker.swept)
	assert.Equal(t, []string{ResultViolation}, rec.results[TaskGLIntegrity])
}

func TestGLIntegritySingleTenant(t *testing.T) {
	checker := &fakeChecker{}
	rec := &fakeRecorder{}
	job := NewGLIntegrityJob(checker, rec, quietLogger())

	task, err := NewGLIntegrityTask("tenant-a")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	assert.False(t, checker.swept)
	assert.Equal(t, "tenant-a", checker.tenantID)
	assert.Equal(t, []string{ResultSuccess}, rec.results[TaskGLIntegrity])
}

func TestGLIntegrityFailureIsRetried(t *testing.T) {
	boom := errors.New("connection reset")
	rec := &fakeRecorder{}
	job := NewGLIntegrityJob(&fakeChecker{err: boom}, rec, quietLogger())

	err := job.Handle(context.Background(), asynq.NewTask(TaskGLIntegrity, nil))
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{ResultFailure}, rec.results[TaskGLIntegrity])
}

func TestGLIntegrityBadPayloadSkipsRetry(t *testing.T) {
	job := NewGLIntegrityJob(&fakeChecker{}, nil, quietLogger())
	err := job.Handle(context.Background(), asynq.NewTask(TaskGLIntegrity, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type fakePurger struct {
	olderThan time.Duration
	purged    int64
	err       error
}

func (p *fakePurger) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	p.olderThan = olderThan
	return p.purged, p.err
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	store := &fakePurger{purged: 4}
	rec := &fakeRecorder{}
	job := NewIdempotencyCleanupJob(store, 720*time.Hour, rec, quietLogger())

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, 720*time.Hour, store.olderThan)

	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 48*time.Hour, store.olderThan)
	assert.Equal(t, []string{ResultSuccess, ResultSuccess}, rec.results[TaskIdempotencyCleanup])

	store.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), task))
	assert.Equal(t, ResultFailure, rec.results[TaskIdempotencyCleanup][2])
}

type fakeEnqueuer struct {
	tenantID string
	err      error
}

func (e *fakeEnqueuer) EnqueueGLIntegrity(_ context.Context, tenantID string) (*asynq.TaskInfo, error) {
	e.tenantID = tenantID
	if e.err != nil {
		return nil, e.err
	}
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

type fakeInspector struct{ pending int }

func (i fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: queue, Pending: i.pending}, nil
}

func TestHandlerTriggerIntegrity(t *testing.T) {
	enq := &fakeEnqueuer{}
	h := NewHandler(fakeInspector{pending: 3}, enq, quietLogger())
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)

	req := httptest.NewRequest(http.MethodPost, "/jobs/gl-integrity", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/jobs/gl-integrity", nil)
	req = req.WithContext(shared.ContextWithIdentity(req.Context(), shared.Identity{TenantID: "tenant-a"}))
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "tenant-a", enq.tenantID)
	assert.Contains(t, rr.Body.String(), "task-1")

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":3}`, rr.Body.String())
}
