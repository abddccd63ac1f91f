package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/fiscalyears"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ClosingPlan zeroes nominal accounts into the profit/loss account.
type ClosingPlan struct {
	Lines     []PostingLineInput
	NetProfit decimal.Decimal
}

// Empty reports whether there is nothing to post.
func (p ClosingPlan) Empty() bool {
	return len(p.Lines) == 0
}

// Line labels of a closing entry.
const (
	ClosingLineLabel = "Year-End Closing"
	NetProfitLabel   = "Current Year Net Profit"
	NetLossLabel     = "Current Year Net Loss"
)

// PlanClosing builds the closing lines. A positive balance is credited and lowers profit,
// a negative balance is debited and raises it; the net lands on profitLossID.
func PlanClosing(nominal []accounts.Account, profitLossID int64) ClosingPlan {
	plan := ClosingPlan{NetProfit: decimal.Zero}
	for _, acc := range nominal {
		if !acc.IsNominal() {
			continue
		}
		bal := shared.Round2(acc.Balance)
		if shared.Negligible(bal) {
			continue
		}
		line := PostingLineInput{AccountID: acc.ID, Description: ClosingLineLabel, Debit: decimal.Zero, Credit: decimal.Zero}
		if bal.IsPositive() {
			line.Credit = bal
			plan.NetProfit = plan.NetProfit.Sub(bal)
		} else {
			line.Debit = bal.Abs()
			plan.NetProfit = plan.NetProfit.Add(bal.Abs())
		}
		plan.Lines = append(plan.Lines, line)
	}
	if plan.Empty() || shared.Negligible(plan.NetProfit) {
		return plan
	}
	line := PostingLineInput{AccountID: profitLossID, Debit: decimal.Zero, Credit: decimal.Zero}
	if plan.NetProfit.IsPositive() {
		line.Description = NetProfitLabel
		line.Credit = plan.NetProfit
	} else {
		line.Description = NetLossLabel
		line.Debit = plan.NetProfit.Abs()
	}
	plan.Lines = append(plan.Lines, line)
	return plan
}

// closingSnapshot is what the gather phase learned before any lock is taken.
type closingSnapshot struct {
	TenantID   string
	Year       fiscalyears.FiscalYear
	ProfitLoss accounts.Account
	Currency   string
}

// CloseFiscalYear transfers revenue and expense balances to profit/loss, closes the
// open year and opens the next one.
func (s *Service) CloseFiscalYear(ctx context.Context, tenantID, userID string) (result CloseResult, err error) {
	defer func() {
		if err != nil {
			s.metrics.ObserveClosing(resultOf(err))
			return
		}
		s.metrics.ObserveClosing(ResultOK)
	}()
	if tenantID == "" {
		return CloseResult{}, shared.ErrTenantRequired
	}
	if s.locker != nil {
		release, lockErr := s.locker.Acquire(ctx, internalShared.TenantCloseLockKey(tenantID), s.cfg.CloseLockTTL)
		if lockErr != nil {
			if errors.Is(lockErr, cache.ErrLockHeld) {
				return CloseResult{}, shared.ErrCloseInProgress
			}
			return CloseResult{}, shared.Transient(lockErr)
		}
		defer func() {
			if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
				s.logger.Warn("release close lock", slog.String("tenant", tenantID), slog.Any("error", relErr))
			}
		}()
	}

	snap, err := s.gatherClosing(ctx, tenantID)
	if err != nil {
		return CloseResult{}, err
	}
	result, err = s.enterClosing(ctx, snap, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNothingToClose) {
			s.logger.Info("fiscal year close skipped", slog.String("tenant", tenantID), slog.String("year", snap.Year.Name))
		} else {
			s.logger.Warn("fiscal year close failed", slog.String("tenant", tenantID), slog.Any("error", err))
		}
		return CloseResult{}, err
	}
	s.logger.Info("fiscal year closed",
		slog.String("tenant", tenantID),
		slog.String("year", result.ClosedYear.Name),
		slog.String("next_year", result.NextYear.Name),
		slog.String("entry", result.Entry.Number),
		slog.String("net_profit", result.NetProfit.StringFixed(2)))
	return result, nil
}

// gatherClosing reads the close inputs concurrently. Errors are reported in a fixed
// order so a tenant without an open year never sees the missing account error first.
func (s *Service) gatherClosing(ctx context.Context, tenantID string) (closingSnapshot, error) {
	snap := closingSnapshot{TenantID: tenantID}
	var (
		g                      errgroup.Group
		yearErr, plErr, curErr error
	)
	g.Go(func() error {
		snap.Year, yearErr = s.repo.FindOpenFiscalYear(ctx, tenantID)
		return nil
	})
	g.Go(func() error {
		snap.ProfitLoss, plErr = s.repo.GetAccountByCode(ctx, tenantID, accounts.ProfitLossCode)
		if errors.Is(plErr, shared.ErrAccountNotFound) {
			plErr = shared.ErrProfitLossAccountMissing
		}
		return nil
	})
	g.Go(func() error {
		snap.Currency, curErr = s.resolveCurrency(ctx, tenantID, "")
		return nil
	})
	_ = g.Wait()
	for _, err := range []error{yearErr, plErr, curErr} {
		if err != nil {
			return closingSnapshot{}, err
		}
	}
	return snap, nil
}

// enterClosing performs every write of the close in one transaction.
func (s *Service) enterClosing(ctx context.Context, snap closingSnapshot, userID string) (CloseResult, error) {
	var result CloseResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		year, err := tx.LockOpenFiscalYear(ctx, snap.TenantID, LockUpdate)
		if err != nil {
			return err
		}
		if year.ID != snap.Year.ID {
			return fmt.Errorf("fiscal year %s closed concurrently: %w", snap.Year.Name, shared.ErrNoOpenYear)
		}
		locked, err := tx.LockClosingAccounts(ctx, snap.TenantID)
		if err != nil {
			return err
		}
		var (
			nominal    []accounts.Account
			profitLoss *accounts.Account
		)
		for i := range locked {
			switch {
			case locked[i].Code == accounts.ProfitLossCode:
				profitLoss = &locked[i]
			case locked[i].IsNominal():
				nominal = append(nominal, locked[i])
			}
		}
		if profitLoss == nil {
			return shared.ErrProfitLossAccountMissing
		}

		description := "Year-End Closing for " + year.Name
		plan := PlanClosing(nominal, profitLoss.ID)
		if plan.Empty() {
			return shared.ErrNothingToClose
		}
		if _, err := normalizeLines(plan.Lines, description); err != nil {
			return fmt.Errorf("closing plan for %s: %w", year.Name, err)
		}
		entry, err := s.postLines(ctx, tx, JournalEntry{
			TenantID:     snap.TenantID,
			FiscalYearID: year.ID,
			Date:         NormalizeDate(year.EndDate),
			Description:  description,
			Reference:    "CLS-" + year.Name,
			Currency:     snap.Currency,
			ExchangeRate: decimal.NewFromInt(1),
			CreatedBy:    userID,
		}, plan.Lines)
		if err != nil {
			return err
		}
		if err := tx.MarkFiscalYearClosed(ctx, snap.TenantID, year.ID); err != nil {
			return err
		}
		year.IsClosed = true
		next, err := tx.InsertFiscalYear(ctx, fiscalyears.CalendarYear(snap.TenantID, fiscalyears.NextYear(year, s.now())))
		if err != nil {
			return err
		}
		result = CloseResult{ClosedYear: year, NextYear: next, Entry: entry, NetProfit: plan.NetProfit}
		return nil
	})
	return result, err
}
