package journals

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/fiscalyears"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
)

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
	err      error
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, cache.ErrLockHeld
	}
	l.held[key] = true
	l.acquired = append(l.acquired, key)
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		return nil
	}, nil
}

func nominal(id int64, code, balance string) accounts.Account {
	return accounts.Account{ID: id, Code: code, Balance: decimal.RequireFromString(balance)}
}

func TestPlanClosingSignConvention(t *testing.T) {
	plan := PlanClosing([]accounts.Account{
		nominal(1, "41", "-5000"),
		nominal(2, "5201", "2000"),
		nominal(3, "5101", "0.004"),
		nominal(4, "1101", "999"),
	}, 9)

	require.Len(t, plan.Lines, 3)
	assert.Equal(t, int64(1), plan.Lines[0].AccountID)
	assert.True(t, plan.Lines[0].Debit.Equal(amt("5000")))
	assert.True(t, plan.Lines[0].Credit.IsZero())
	assert.Equal(t, int64(2), plan.Lines[1].AccountID)
	assert.True(t, plan.Lines[1].Credit.Equal(amt("2000")))
	assert.Equal(t, int64(9), plan.Lines[2].AccountID)
	assert.True(t, plan.Lines[2].Credit.Equal(amt("3000")))
	assert.True(t, plan.NetProfit.Equal(amt("3000")))
	assert.Equal(t, ClosingLineLabel, plan.Lines[0].Description)
	assert.Equal(t, ClosingLineLabel, plan.Lines[1].Description)
	assert.Equal(t, NetProfitLabel, plan.Lines[2].Description)
}

func TestPlanClosingLossDebitsProfitLoss(t *testing.T) {
	plan := PlanClosing([]accounts.Account{
		nominal(1, "41", "-300"),
		nominal(2, "5201", "800"),
	}, 9)

	require.Len(t, plan.Lines, 3)
	assert.True(t, plan.NetProfit.Equal(amt("-500")))
	assert.True(t, plan.Lines[2].Debit.Equal(amt("500")))
	assert.True(t, plan.Lines[2].Credit.IsZero())
	assert.Equal(t, NetLossLabel, plan.Lines[2].Description)
}

func TestPlanClosingBreakEvenSkipsProfitLossLine(t *testing.T) {
	plan := PlanClosing([]accounts.Account{
		nominal(1, "41", "-700"),
		nominal(2, "5101", "700"),
	}, 9)

	require.Len(t, plan.Lines, 2)
	assert.True(t, plan.NetProfit.IsZero())
	_, err := normalizeLines(plan.Lines, "")
	require.NoError(t, err)
}

func TestPlanClosingAllZeroIsEmpty(t *testing.T) {
	plan := PlanClosing([]accounts.Account{nominal(1, "41", "0"), nominal(2, "5101", "-0.001")}, 9)
	assert.True(t, plan.Empty())
	assert.True(t, plan.NetProfit.IsZero())
}

func postYearActivity(t *testing.T, svc *Service, c chart, revenue, expense string) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.PostEntry(ctx, postingAt(fixedNow, pair(c.cash.ID, c.sales.ID, revenue)))
	require.NoError(t, err)
	_, err = svc.PostEntry(ctx, postingAt(fixedNow, pair(c.salaries.ID, c.cash.ID, expense)))
	require.NoError(t, err)
}

func TestCloseFiscalYearTransfersProfit(t *testing.T) {
	svc, repo, c := newTestService(t)
	locker := &fakeLocker{}
	svc.WithLocker(locker)
	rec := newCountingRecorder()
	svc.WithMetrics(rec)
	postYearActivity(t, svc, c, "5000", "2000")

	res, err := svc.CloseFiscalYear(context.Background(), tenant, "closer")
	require.NoError(t, err)

	assert.True(t, res.NetProfit.Equal(amt("3000")))
	assert.Equal(t, "2024", res.ClosedYear.Name)
	assert.True(t, res.ClosedYear.IsClosed)
	assert.Equal(t, "2025", res.NextYear.Name)
	assert.False(t, res.NextYear.IsClosed)
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), res.NextYear.StartDate)

	assert.Equal(t, "CLS-2024", res.Entry.Reference)
	assert.Equal(t, "Year-End Closing for 2024", res.Entry.Description)
	require.NotEmpty(t, res.Entry.Lines)
	last := res.Entry.Lines[len(res.Entry.Lines)-1]
	assert.Equal(t, c.profitLoss.ID, last.AccountID)
	assert.Equal(t, NetProfitLabel, last.Description)
	assert.Equal(t, ClosingLineLabel, res.Entry.Lines[0].Description)
	assert.Equal(t, time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC), res.Entry.Date)
	assert.Equal(t, "JE-000003", res.Entry.Number)
	assert.Equal(t, "closer", res.Entry.CreatedBy)
	debit, credit := res.Entry.Totals()
	assert.True(t, debit.Equal(credit))

	assert.True(t, repo.balance(c.sales.ID).IsZero())
	assert.True(t, repo.balance(c.salaries.ID).IsZero())
	assert.True(t, repo.balance(c.profitLoss.ID).Equal(amt("-3000")))
	assert.True(t, repo.balance(c.cash.ID).Equal(amt("3000")))

	years := repo.yearsOf(tenant)
	require.Len(t, years, 2)
	assert.True(t, years[0].IsClosed)
	assert.False(t, years[1].IsClosed)
	assert.Equal(t, []string{"ledger:tenant:" + tenant + ":close"}, locker.acquired)
	assert.Empty(t, locker.held)
	assert.Equal(t, 1, rec.closings[ResultOK])

	next, err := svc.PostEntry(context.Background(), postingAt(fixedNow, pair(c.cash.ID, c.sales.ID, "1")))
	require.NoError(t, err)
	assert.Equal(t, years[1].ID, next.FiscalYearID)
}

func TestCloseFiscalYearNetLoss(t *testing.T) {
	svc, repo, c := newTestService(t)
	postYearActivity(t, svc, c, "300", "800")

	res, err := svc.CloseFiscalYear(context.Background(), tenant, "closer")
	require.NoError(t, err)

	assert.True(t, res.NetProfit.Equal(amt("-500")))
	assert.True(t, repo.balance(c.profitLoss.ID).Equal(amt("500")))
	assert.True(t, repo.balance(c.sales.ID).IsZero())
	assert.True(t, repo.balance(c.salaries.ID).IsZero())
}

func TestCloseFiscalYearNothingToClose(t *testing.T) {
	svc, repo, c := newTestService(t)
	rec := newCountingRecorder()
	svc.WithMetrics(rec)
	_, err := svc.PostEntry(context.Background(), postingAt(fixedNow, pair(c.cash.ID, c.capital.ID, "1000")))
	require.NoError(t, err)

	_, err = svc.CloseFiscalYear(context.Background(), tenant, "closer")
	require.ErrorIs(t, err, shared.ErrNothingToClose)
	assert.Equal(t, shared.KindNothingToClose, shared.KindOf(err))

	assert.Equal(t, 1, repo.entryCount())
	years := repo.yearsOf(tenant)
	require.Len(t, years, 1)
	assert.False(t, years[0].IsClosed)
	assert.Equal(t, 1, rec.closings[ResultNoop])
}

func TestCloseFiscalYearRequiresOpenYear(t *testing.T) {
	svc, repo, _ := newTestService(t)
	closed := fiscalyears.CalendarYear(tenant, 2023)
	closed.IsClosed = true
	repo.addYear(closed)

	_, err := svc.CloseFiscalYear(context.Background(), tenant, "closer")
	require.ErrorIs(t, err, shared.ErrNoOpenYear)
	assert.Equal(t, shared.KindNoOpenYear, shared.KindOf(err))
}

func TestCloseFiscalYearReportsNoOpenYearBeforeMissingAccount(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil, nil, Config{})

	_, err := svc.CloseFiscalYear(context.Background(), "empty-tenant", "closer")
	require.ErrorIs(t, err, shared.ErrNoOpenYear)
}

func TestCloseFiscalYearRequiresProfitLossAccount(t *testing.T) {
	repo := newMemRepo()
	sales := repo.addAccount(tenant, "41", "Sales", accounts.AccountTypeRevenue)
	cash := repo.addAccount(tenant, "1101", "Cash", accounts.AccountTypeAsset)
	svc := NewService(repo, nil, nil, Config{})
	svc.WithNow(func() time.Time { return fixedNow })
	_, err := svc.PostEntry(context.Background(), postingAt(fixedNow, pair(cash.ID, sales.ID, "10")))
	require.NoError(t, err)

	_, err = svc.CloseFiscalYear(context.Background(), tenant, "closer")
	require.ErrorIs(t, err, shared.ErrProfitLossAccountMissing)
	assert.Equal(t, shared.KindMissingAccount, shared.KindOf(err))
	assert.Contains(t, err.Error(), "seed the chart of accounts")
	assert.False(t, repo.yearsOf(tenant)[0].IsClosed)
}

func TestCloseFiscalYearLockHeld(t *testing.T) {
	svc, repo, c := newTestService(t)
	postYearActivity(t, svc, c, "100", "40")
	locker := &fakeLocker{held: map[string]bool{"ledger:tenant:" + tenant + ":close": true}}
	svc.WithLocker(locker)

	_, err := svc.CloseFiscalYear(context.Background(), tenant, "closer")
	require.ErrorIs(t, err, shared.ErrCloseInProgress)
	assert.True(t, shared.IsRetryable(err))
	assert.False(t, repo.yearsOf(tenant)[0].IsClosed)

	locker.err = errors.New("redis down")
	delete(locker.held, "ledger:tenant:"+tenant+":close")
	_, err = svc.CloseFiscalYear(context.Background(), tenant, "closer")
	assert.True(t, shared.IsRetryable(err))
}

func TestCloseFiscalYearRollsBackOnFailure(t *testing.T) {
	svc, repo, c := newTestService(t)
	locker := &fakeLocker{}
	svc.WithLocker(locker)
	postYearActivity(t, svc, c, "900", "100")
	repo.failOn = "InsertFiscalYear"

	_, err := svc.CloseFiscalYear(context.Background(), tenant, "closer")
	require.ErrorIs(t, err, errInjected)

	assert.True(t, repo.balance(c.sales.ID).Equal(amt("-900")))
	assert.True(t, repo.balance(c.profitLoss.ID).IsZero())
	assert.Equal(t, 2, repo.entryCount())
	years := repo.yearsOf(tenant)
	require.Len(t, years, 1)
	assert.False(t, years[0].IsClosed)
	assert.Empty(t, locker.held)
}

func TestCloseFiscalYearTwiceClosesConsecutiveYears(t *testing.T) {
	svc, repo, c := newTestService(t)
	ctx := context.Background()
	postYearActivity(t, svc, c, "100", "10")
	_, err := svc.CloseFiscalYear(ctx, tenant, "closer")
	require.NoError(t, err)

	_, err = svc.CloseFiscalYear(ctx, tenant, "closer")
	require.ErrorIs(t, err, shared.ErrNothingToClose)

	postYearActivity(t, svc, c, "50", "80")
	res, err := svc.CloseFiscalYear(ctx, tenant, "closer")
	require.NoError(t, err)
	assert.Equal(t, "2025", res.ClosedYear.Name)
	assert.Equal(t, "2026", res.NextYear.Name)
	assert.True(t, repo.balance(c.profitLoss.ID).Equal(amt("-60")))
}
