package journals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/fiscalyears"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// memState is the committed ledger; transactions work on a clone and swap it in on success.
type memState struct {
	nextID    int64
	accounts  map[int64]accounts.Account
	years     map[int64]fiscalyears.FiscalYear
	entries   map[int64]JournalEntry
	sequences map[string]int64
	idem      map[string]IdempotencyRecord
}

func newMemState() *memState {
	return &memState{
		accounts:  map[int64]accounts.Account{},
		years:     map[int64]fiscalyears.FiscalYear{},
		entries:   map[int64]JournalEntry{},
		sequences: map[string]int64{},
		idem:      map[string]IdempotencyRecord{},
	}
}

func (s *memState) clone() *memState {
	out := newMemState()
	out.nextID = s.nextID
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.years {
		out.years[k] = v
	}
	for k, v := range s.entries {
		v.Lines = append([]JournalLine(nil), v.Lines...)
		out.entries[k] = v
	}
	for k, v := range s.sequences {
		out.sequences[k] = v
	}
	for k, v := range s.idem {
		out.idem[k] = v
	}
	return out
}

// withAccountNames copies e with line account names filled in, as the joined reads do.
func (s *memState) withAccountNames(e JournalEntry) JournalEntry {
	lines := make([]JournalLine, len(e.Lines))
	for i, l := range e.Lines {
		l.AccountName = s.accounts[l.AccountID].Name
		lines[i] = l
	}
	e.Lines = lines
	return e
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

type memRepo struct {
	mu     sync.Mutex
	state  *memState
	failOn string
}

func newMemRepo() *memRepo {
	return &memRepo{state: newMemState()}
}

func (r *memRepo) addAccount(tenantID, code, name string, typ accounts.AccountType) accounts.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := accounts.Account{ID: r.state.id(), TenantID: tenantID, Code: code, Name: name, Type: typ, Balance: decimal.Zero, IsActive: true}
	r.state.accounts[a.ID] = a
	return a
}

func (r *memRepo) addYear(fy fiscalyears.FiscalYear) fiscalyears.FiscalYear {
	r.mu.Lock()
	defer r.mu.Unlock()
	fy.ID = r.state.id()
	r.state.years[fy.ID] = fy
	return fy
}

func (r *memRepo) addEntry(e JournalEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = r.state.id()
	r.state.entries[e.ID] = e
}

func (r *memRepo) setBalance(id int64, bal decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.state.accounts[id]
	a.Balance = bal
	r.state.accounts[id] = a
}

func (r *memRepo) balance(id int64) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.accounts[id].Balance
}

func (r *memRepo) entryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.entries)
}

func (r *memRepo) yearsOf(tenantID string) []fiscalyears.FiscalYear {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []fiscalyears.FiscalYear
	for _, fy := range r.state.years {
		if fy.TenantID == tenantID {
			out = append(out, fy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	work := r.state.clone()
	if err := fn(ctx, &memTx{state: work, failOn: r.failOn}); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *memRepo) GetEntry(_ context.Context, tenantID string, id int64) (JournalEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.state.entries[id]
	if !ok || e.TenantID != tenantID {
		return JournalEntry{}, shared.ErrJournalNotFound
	}
	return r.state.withAccountNames(e), nil
}

func (r *memRepo) ListEntries(_ context.Context, tenantID string, limit int) ([]JournalEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []JournalEntry
	for _, e := range r.state.entries {
		if e.TenantID == tenantID {
			out = append(out, r.state.withAccountNames(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) FindOpenFiscalYear(_ context.Context, tenantID string) (fiscalyears.FiscalYear, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return findOpen(r.state, tenantID)
}

func (r *memRepo) GetAccountByCode(_ context.Context, tenantID, code string) (accounts.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.state.accounts {
		if a.TenantID == tenantID && a.Code == code {
			return a, nil
		}
	}
	return accounts.Account{}, shared.ErrAccountNotFound
}

func (r *memRepo) ListTenants(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, a := range r.state.accounts {
		if !seen[a.TenantID] {
			seen[a.TenantID] = true
			out = append(out, a.TenantID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *memRepo) CheckIntegrity(_ context.Context, tenantID string) (IntegrityReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	report := IntegrityReport{TenantID: tenantID}
	computed := map[int64]decimal.Decimal{}
	var entryIDs []int64
	for id, e := range r.state.entries {
		if e.TenantID != tenantID {
			continue
		}
		entryIDs = append(entryIDs, id)
		for _, l := range e.Lines {
			computed[l.AccountID] = computed[l.AccountID].Add(l.Debit.Sub(l.Credit))
		}
	}
	sort.Slice(entryIDs, func(i, j int) bool { return entryIDs[i] < entryIDs[j] })
	var accts []accounts.Account
	for _, a := range r.state.accounts {
		if a.TenantID == tenantID {
			accts = append(accts, a)
		}
	}
	sort.Slice(accts, func(i, j int) bool { return accts[i].Code < accts[j].Code })
	for _, a := range accts {
		if !a.Balance.Equal(computed[a.ID]) {
			report.Drifts = append(report.Drifts, BalanceDrift{AccountID: a.ID, Code: a.Code, Stored: a.Balance, Computed: computed[a.ID]})
		}
	}
	for _, id := range entryIDs {
		e := r.state.entries[id]
		debit, credit := e.Totals()
		if !shared.Negligible(debit.Sub(credit)) || len(e.Lines) < 2 {
			report.Unbalanced = append(report.Unbalanced, UnbalancedEntry{EntryID: id, Number: e.Number, Debit: debit, Credit: credit, LineCount: len(e.Lines)})
		}
	}
	return report, nil
}

func findOpen(s *memState, tenantID string) (fiscalyears.FiscalYear, error) {
	for _, fy := range s.years {
		if fy.TenantID == tenantID && !fy.IsClosed {
			return fy, nil
		}
	}
	return fiscalyears.FiscalYear{}, shared.ErrNoOpenYear
}

var errInjected = errors.New("injected failure")

type memTx struct {
	state  *memState
	failOn string
}

func (t *memTx) fail(op string) error {
	if t.failOn == op {
		return fmt.Errorf("%s: %w", op, errInjected)
	}
	return nil
}

func (t *memTx) LockOpenFiscalYear(_ context.Context, tenantID string, _ LockMode) (fiscalyears.FiscalYear, error) {
	return findOpen(t.state, tenantID)
}

func (t *memTx) InsertFiscalYearIfNone(_ context.Context, fy fiscalyears.FiscalYear) error {
	if _, err := findOpen(t.state, fy.TenantID); err == nil {
		return nil
	}
	fy.ID = t.state.id()
	t.state.years[fy.ID] = fy
	return nil
}

func (t *memTx) InsertFiscalYear(_ context.Context, fy fiscalyears.FiscalYear) (fiscalyears.FiscalYear, error) {
	if err := t.fail("InsertFiscalYear"); err != nil {
		return fiscalyears.FiscalYear{}, err
	}
	if !fy.IsClosed {
		if _, err := findOpen(t.state, fy.TenantID); err == nil {
			return fiscalyears.FiscalYear{}, errors.New("duplicate open fiscal year")
		}
	}
	fy.ID = t.state.id()
	t.state.years[fy.ID] = fy
	return fy, nil
}

func (t *memTx) MarkFiscalYearClosed(_ context.Context, tenantID string, id int64) error {
	fy, ok := t.state.years[id]
	if !ok || fy.TenantID != tenantID || fy.IsClosed {
		return shared.ErrNoOpenYear
	}
	fy.IsClosed = true
	t.state.years[id] = fy
	return nil
}

func (t *memTx) NextEntrySequence(_ context.Context, tenantID string) (int64, error) {
	last, ok := t.state.sequences[tenantID]
	if !ok {
		for _, e := range t.state.entries {
			if e.TenantID != tenantID {
				continue
			}
			if n, err := ParseEntryNumber(e.Number); err == nil && n > last {
				last = n
			}
		}
	}
	last++
	t.state.sequences[tenantID] = last
	return last, nil
}

func (t *memTx) InsertJournalEntry(_ context.Context, entry JournalEntry) (JournalEntry, error) {
	for _, e := range t.state.entries {
		if e.TenantID == entry.TenantID && e.Number == entry.Number {
			return JournalEntry{}, fmt.Errorf("duplicate entry number %s", entry.Number)
		}
	}
	entry.ID = t.state.id()
	t.state.entries[entry.ID] = entry
	return entry, nil
}

func (t *memTx) InsertJournalLines(_ context.Context, entryID int64, lines []PostingLineInput) ([]JournalLine, error) {
	if err := t.fail("InsertJournalLines"); err != nil {
		return nil, err
	}
	entry := t.state.entries[entryID]
	var out []JournalLine
	for _, l := range lines {
		if _, ok := t.state.accounts[l.AccountID]; !ok {
			return nil, fmt.Errorf("account %d: %w", l.AccountID, shared.ErrAccountNotFound)
		}
		out = append(out, JournalLine{
			ID:          t.state.id(),
			EntryID:     entryID,
			AccountID:   l.AccountID,
			Description: l.Description,
			Debit:       l.Debit,
			Credit:      l.Credit,
		})
	}
	entry.Lines = append(entry.Lines, out...)
	t.state.entries[entryID] = entry
	return out, nil
}

func (t *memTx) GetJournalWithLines(_ context.Context, tenantID string, entryID int64) (JournalEntry, error) {
	e, ok := t.state.entries[entryID]
	if !ok || e.TenantID != tenantID {
		return JournalEntry{}, shared.ErrJournalNotFound
	}
	return e, nil
}

func (t *memTx) DeleteJournalEntry(_ context.Context, tenantID string, entryID int64) error {
	if err := t.fail("DeleteJournalEntry"); err != nil {
		return err
	}
	e, ok := t.state.entries[entryID]
	if !ok || e.TenantID != tenantID {
		return shared.ErrJournalNotFound
	}
	delete(t.state.entries, entryID)
	for k, rec := range t.state.idem {
		if rec.EntryID != nil && *rec.EntryID == entryID {
			rec.EntryID = nil
			t.state.idem[k] = rec
		}
	}
	return nil
}

func (t *memTx) ApplyBalanceDelta(_ context.Context, tenantID string, accountID int64, delta decimal.Decimal) error {
	a, ok := t.state.accounts[accountID]
	if !ok || a.TenantID != tenantID {
		return fmt.Errorf("account %d: %w", accountID, shared.ErrAccountNotFound)
	}
	a.Balance = a.Balance.Add(delta)
	t.state.accounts[accountID] = a
	return nil
}

func (t *memTx) LockClosingAccounts(_ context.Context, tenantID string) ([]accounts.Account, error) {
	var out []accounts.Account
	for _, a := range t.state.accounts {
		if a.TenantID != tenantID {
			continue
		}
		if a.Code == accounts.ProfitLossCode || strings.HasPrefix(a.Code, accounts.ClassRevenue) || strings.HasPrefix(a.Code, accounts.ClassExpense) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) ClaimIdempotencyKey(_ context.Context, tenantID string, key uuid.UUID, fingerprint string) (IdempotencyRecord, bool, error) {
	k := tenantID + "|" + key.String()
	if rec, ok := t.state.idem[k]; ok {
		return rec, false, nil
	}
	rec := IdempotencyRecord{Fingerprint: fingerprint}
	t.state.idem[k] = rec
	return rec, true, nil
}

func (t *memTx) AttachIdempotencyKey(_ context.Context, tenantID string, key uuid.UUID, entryID int64) error {
	k := tenantID + "|" + key.String()
	rec := t.state.idem[k]
	id := entryID
	rec.EntryID = &id
	t.state.idem[k] = rec
	return nil
}
