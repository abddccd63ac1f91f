// Package expenses records cash-paid expenses through the journal engine and reports on them.
package expenses

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

const (
	defaultDescription = "Expense"
	cashOutDescription = "Cash out"
)

var errNonPositiveAmount = &shared.Error{Kind: shared.KindValidation, Message: "accounting: expense amount must be positive"}

// Poster is the journal engine entry point used here.
type Poster interface {
	PostEntry(ctx context.Context, in journals.PostingInput) (journals.JournalEntry, error)
}

// RoleResolver maps ledger roles to tenant accounts.
type RoleResolver interface {
	Resolve(ctx context.Context, tenantID string, role mappings.Role) (int64, error)
	ResolveAll(ctx context.Context, tenantID string) (map[mappings.Role]int64, error)
}

// AccountLister reads the tenant's chart of accounts.
type AccountLister interface {
	List(ctx context.Context, tenantID string) ([]accounts.Account, error)
}

// Input describes one cash expense.
type Input struct {
	TenantID    string
	UserID      string
	Date        time.Time
	Description string
	AccountID   int64
	Amount      decimal.Decimal
}

// Period narrows a listing to a window ending today.
type Period string

const (
	PeriodAll   Period = "all"
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Valid reports whether p is a known period; empty means all.
func (p Period) Valid() bool {
	switch p {
	case "", PeriodAll, PeriodDay, PeriodWeek, PeriodMonth:
		return true
	}
	return false
}

// ListFilter combines an explicit date range with an optional period.
type ListFilter struct {
	TenantID string
	From     *time.Time
	To       *time.Time
	Period   Period
}

// ListResult carries matching lines, the current month's total and the total of the lines.
type ListResult struct {
	Expenses      []Line
	MonthlyTotal  decimal.Decimal
	FilteredTotal decimal.Decimal
}

type Service struct {
	poster   Poster
	roles    RoleResolver
	repo     Repository
	accounts AccountLister
	now      func() time.Time
}

func NewService(poster Poster, roles RoleResolver, repo Repository, accts AccountLister) *Service {
	return &Service{poster: poster, roles: roles, repo: repo, accounts: accts, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Record debits the expense account and credits the tenant's cash role account.
func (s *Service) Record(ctx context.Context, in Input) (journals.JournalEntry, error) {
	amount := shared.Round2(in.Amount)
	if !amount.IsPositive() {
		return journals.JournalEntry{}, errNonPositiveAmount
	}
	cashID, err := s.roles.Resolve(ctx, in.TenantID, mappings.RoleCash)
	if err != nil {
		return journals.JournalEntry{}, fmt.Errorf("resolve cash account: %w", err)
	}
	description := in.Description
	if description == "" {
		description = defaultDescription
	}
	return s.poster.PostEntry(ctx, journals.PostingInput{
		TenantID:    in.TenantID,
		UserID:      in.UserID,
		Date:        in.Date,
		Description: description,
		Reference:   fmt.Sprintf("EXP-%d", s.now().UnixMilli()),
		Lines: []journals.PostingLineInput{
			{AccountID: in.AccountID, Description: description, Debit: amount},
			{AccountID: cashID, Description: cashOutDescription, Credit: amount},
		},
	})
}

// List returns administrative expense lines within the filter, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) (ListResult, error) {
	if f.TenantID == "" {
		return ListResult{}, shared.ErrTenantRequired
	}
	if !f.Period.Valid() {
		return ListResult{}, &shared.Error{Kind: shared.KindValidation, Message: fmt.Sprintf("accounting: unknown period %q", f.Period)}
	}
	today := journals.NormalizeDate(s.now())
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)

	filter := Filter{TenantID: f.TenantID, From: dateOf(f.From), To: dateOf(f.To)}
	switch f.Period {
	case PeriodDay:
		filter.From = later(filter.From, today)
		filter.To = earlier(filter.To, today)
	case PeriodWeek:
		filter.From = later(filter.From, today.AddDate(0, 0, -7))
	case PeriodMonth:
		filter.From = later(filter.From, monthStart)
	}

	lines, err := s.repo.Lines(ctx, filter)
	if err != nil {
		return ListResult{}, err
	}
	monthly, err := s.repo.DebitTotal(ctx, Filter{TenantID: f.TenantID, From: &monthStart})
	if err != nil {
		return ListResult{}, err
	}
	res := ListResult{Expenses: lines, MonthlyTotal: monthly, FilteredTotal: decimal.Zero}
	for _, l := range lines {
		res.FilteredTotal = res.FilteredTotal.Add(l.Amount)
	}
	return res, nil
}

// ExpenseAccounts returns the active expense accounts of the tenant.
func (s *Service) ExpenseAccounts(ctx context.Context, tenantID string) ([]accounts.Account, error) {
	all, err := s.accounts.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var out []accounts.Account
	for _, a := range all {
		if a.IsActive && a.Type == accounts.AccountTypeExpense {
			out = append(out, a)
		}
	}
	return out, nil
}

// TreasuryAccounts returns the active asset accounts bound to the cash or bank role, with their sub-accounts.
func (s *Service) TreasuryAccounts(ctx context.Context, tenantID string) ([]accounts.Account, error) {
	table, err := s.roles.ResolveAll(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	roots := make(map[int64]bool, 2)
	for _, role := range []mappings.Role{mappings.RoleCash, mappings.RoleBank} {
		if id, ok := table[role]; ok {
			roots[id] = true
		}
	}
	all, err := s.accounts.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	parents := make(map[int64]*int64, len(all))
	for _, a := range all {
		parents[a.ID] = a.ParentID
	}
	var out []accounts.Account
	for _, a := range all {
		if a.IsActive && a.Type == accounts.AccountTypeAsset && underRoot(a.ID, parents, roots) {
			out = append(out, a)
		}
	}
	return out, nil
}

func underRoot(id int64, parents map[int64]*int64, roots map[int64]bool) bool {
	for depth := 0; depth <= len(parents); depth++ {
		if roots[id] {
			return true
		}
		parent := parents[id]
		if parent == nil {
			return false
		}
		id = *parent
	}
	return false
}

func dateOf(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := journals.NormalizeDate(*t)
	return &d
}

func later(bound *time.Time, t time.Time) *time.Time {
	if bound != nil && bound.After(t) {
		return bound
	}
	return &t
}

func earlier(bound *time.Time, t time.Time) *time.Time {
	if bound != nil && bound.Before(t) {
		return bound
	}
	return &t
}
