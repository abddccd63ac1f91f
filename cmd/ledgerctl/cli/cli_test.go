package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/fiscalyears"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

type fakeBackend struct {
	closeErr error
	reports  []journals.IntegrityReport
	calls    []string
	released bool
}

func (f *fakeBackend) SeedAccounts(_ context.Context, tenantID string) (accounts.SeedResult, error) {
	f.calls = append(f.calls, "seed:"+tenantID)
	return accounts.SeedResult{Created: 24}, nil
}

func (f *fakeBackend) CloseYear(_ context.Context, tenantID, userID string) (journals.CloseResult, error) {
	f.calls = append(f.calls, "close:"+tenantID+":"+userID)
	if f.closeErr != nil {
		return journals.CloseResult{}, f.closeErr
	}
	return journals.CloseResult{
		ClosedYear: fiscalyears.FiscalYear{Name: "2024"},
		NextYear:   fiscalyears.FiscalYear{Name: "2025"},
		Entry:      journals.JournalEntry{Number: "JE-000010"},
		NetProfit:  decimal.RequireFromString("3000"),
	}, nil
}

func (f *fakeBackend) CheckIntegrity(_ context.Context, tenantID string) ([]journals.IntegrityReport, error) {
	f.calls = append(f.calls, "integrity:"+tenantID)
	return f.reports, nil
}

func (f *fakeBackend) TriggerJob(_ context.Context, name, tenantID string) (*asynq.TaskInfo, error) {
	f.calls = append(f.calls, "job:"+name+":"+tenantID)
	return &asynq.TaskInfo{ID: "abc", Queue: jobs.QueueDefault}, nil
}

func run(t *testing.T, f *fakeBackend, args ...string) (string, error) {
	t.Helper()
	open := func(context.Context) (Backend, func(), error) {
		return f, func() { f.released = true }, nil
	}
	cmd := NewRootCommand(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSeedCommand(t *testing.T) {
	f := &fakeBackend{}
	out, err := run(t, f, "seed", "--tenant", "t1")
	require.NoError(t, err)
	assert.Contains(t, out, "24 created")
	assert.Equal(t, []string{"seed:t1"}, f.calls)
	assert.True(t, f.released)
}

func TestSeedRequiresTenant(t *testing.T) {
	f := &fakeBackend{}
	_, err := run(t, f, "seed")
	require.Error(t, err)
	assert.Empty(t, f.calls)
}

func TestCloseYearCommand(t *testing.T) {
	f := &fakeBackend{}
	out, err := run(t, f, "close-year", "--tenant", "t1")
	require.NoError(t, err)
	assert.Contains(t, out, "closed 2024 with JE-000010 (net profit 3000.00), next year 2025")
	assert.Equal(t, []string{"close:t1:ledgerctl"}, f.calls)

	f = &fakeBackend{closeErr: errors.New("no open fiscal year")}
	_, err = run(t, f, "close-year", "--tenant", "t1", "--user", "ops")
	require.Error(t, err)
	assert.Equal(t, []string{"close:t1:ops"}, f.calls)
}

func TestIntegrityCommandReportsViolations(t *testing.T) {
	f := &fakeBackend{reports: []journals.IntegrityReport{
		{TenantID: "t1"},
		{TenantID: "t2", Drifts: []journals.BalanceDrift{{Code: "1101", Stored: decimal.NewFromInt(10), Computed: decimal.NewFromInt(12)}}},
	}}
	out, err := run(t, f, "integrity")
	require.ErrorIs(t, err, ErrIntegrityViolation)
	assert.Contains(t, out, "t1: ok")
	assert.Contains(t, out, "account 1101 stored=10.00 computed=12.00")
	assert.Equal(t, []string{"integrity:"}, f.calls)
}

func TestJobsTrigger(t *testing.T) {
	f := &fakeBackend{}
	out, err := run(t, f, "jobs", "trigger", jobs.TaskGLIntegrity, "--tenant", "t1")
	require.NoError(t, err)
	assert.Contains(t, out, "enqueued ledger:gl_integrity as abc")
	assert.Equal(t, []string{"job:ledger:gl_integrity:t1"}, f.calls)
}

func TestBuildTask(t *testing.T) {
	task, err := BuildTask(jobs.TaskIdempotencyCleanup, "", 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskIdempotencyCleanup, task.Type())
	assert.JSONEq(t, `{"retention_seconds":172800}`, string(task.Payload()))

	_, err = BuildTask("mail:send", "", time.Hour)
	assert.Error(t, err)
}
