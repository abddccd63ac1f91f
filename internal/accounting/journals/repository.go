package journals

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/fiscalyears"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// LockMode selects the row lock taken on the open fiscal year.
type LockMode string

const (
	// LockShare lets concurrent postings proceed while blocking a close.
	LockShare LockMode = "FOR SHARE"
	// LockUpdate is held by the close and excludes postings.
	LockUpdate LockMode = "FOR UPDATE"
)

// IdempotencyRecord is the stored claim for an idempotency key.
type IdempotencyRecord struct {
	Fingerprint string
	EntryID     *int64
}

// Repository encapsulates DB operations for journals.
// Reads outside a transaction serve queries and the gather phase of a close.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, tenantID string, id int64) (JournalEntry, error)
	ListEntries(ctx context.Context, tenantID string, limit int) ([]JournalEntry, error)
	FindOpenFiscalYear(ctx context.Context, tenantID string) (fiscalyears.FiscalYear, error)
	GetAccountByCode(ctx context.Context, tenantID, code string) (accounts.Account, error)
	ListTenants(ctx context.Context) ([]string, error)
	CheckIntegrity(ctx context.Context, tenantID string) (IntegrityReport, error)
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	// Fiscal year operations needed within journal transactions.
	LockOpenFiscalYear(ctx context.Context, tenantID string, mode LockMode) (fiscalyears.FiscalYear, error)
	InsertFiscalYearIfNone(ctx context.Context, fy fiscalyears.FiscalYear) error
	InsertFiscalYear(ctx context.Context, fy fiscalyears.FiscalYear) (fiscalyears.FiscalYear, error)
	MarkFiscalYearClosed(ctx context.Context, tenantID string, id int64) error

	NextEntrySequence(ctx context.Context, tenantID string) (int64, error)
	InsertJournalEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) ([]JournalLine, error)
	GetJournalWithLines(ctx context.Context, tenantID string, entryID int64) (JournalEntry, error)
	DeleteJournalEntry(ctx context.Context, tenantID string, entryID int64) error

	// Account operations needed within journal transactions.
	ApplyBalanceDelta(ctx context.Context, tenantID string, accountID int64, delta decimal.Decimal) error
	LockClosingAccounts(ctx context.Context, tenantID string) ([]accounts.Account, error)

	ClaimIdempotencyKey(ctx context.Context, tenantID string, key uuid.UUID, fingerprint string) (IdempotencyRecord, bool, error)
	AttachIdempotencyKey(ctx context.Context, tenantID string, key uuid.UUID, entryID int64) error
}

type repository struct {
	db    *pgxpool.Pool
	txCfg db.TxConfig
}

// NewRepository returns the pgx backed journal repository.
func NewRepository(pool *pgxpool.Pool, txCfg db.TxConfig) Repository {
	return &repository{db: pool, txCfg: txCfg}
}

const entryColumns = `id, tenant_id, fiscal_year_id, entry_number, transaction_date, description, reference, currency, exchange_rate::text, status, created_by, created_at`

const lineColumns = `id, journal_entry_id, account_id, description, debit::text, credit::text`

const lineWithAccountColumns = `l.id, l.journal_entry_id, l.account_id, l.description, l.debit::text, l.credit::text, a.name`

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, r.txCfg, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) GetEntry(ctx context.Context, tenantID string, id int64) (JournalEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		return JournalEntry{}, err
	}
	lines, err := queryLines(ctx, r.db, []int64{entry.ID})
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines[entry.ID]
	return entry, nil
}

// ListEntries returns the newest entries first with their lines. A non-positive limit returns all entries.
func (r *repository) ListEntries(ctx context.Context, tenantID string, limit int) ([]JournalEntry, error) {
	var bound any
	if limit > 0 {
		bound = limit
	}
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1
ORDER BY transaction_date DESC, id DESC LIMIT $2`, tenantID, bound)
	if err != nil {
		return nil, db.Classify(err)
	}
	var (
		entries []JournalEntry
		ids     []int64
	)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, e)
		ids = append(ids, e.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	if len(ids) == 0 {
		return entries, nil
	}
	lines, err := queryLines(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Lines = lines[entries[i].ID]
	}
	return entries, nil
}

func (r *repository) FindOpenFiscalYear(ctx context.Context, tenantID string) (fiscalyears.FiscalYear, error) {
	fy, err := fiscalyears.Scan(r.db.QueryRow(ctx, `SELECT `+fiscalyears.Columns()+` FROM fiscal_years WHERE tenant_id=$1 AND NOT is_closed`, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fiscalyears.FiscalYear{}, shared.ErrNoOpenYear
		}
		return fiscalyears.FiscalYear{}, err
	}
	return fy, nil
}

func (r *repository) GetAccountByCode(ctx context.Context, tenantID, code string) (accounts.Account, error) {
	a, err := accounts.ScanAccount(r.db.QueryRow(ctx, `SELECT `+accounts.Columns()+` FROM accounts WHERE tenant_id=$1 AND code=$2`, tenantID, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return accounts.Account{}, shared.ErrAccountNotFound
		}
		return accounts.Account{}, err
	}
	return a, nil
}

func (r *repository) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT tenant_id FROM accounts ORDER BY tenant_id`)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, id)
	}
	return out, db.Classify(rows.Err())
}

// CheckIntegrity recomputes balances from lines and scans for unbalanced entries.
func (r *repository) CheckIntegrity(ctx context.Context, tenantID string) (IntegrityReport, error) {
	report := IntegrityReport{TenantID: tenantID}
	rows, err := r.db.Query(ctx, `SELECT a.id, a.code, a.balance::text, COALESCE(SUM(l.debit - l.credit), 0)::text
FROM accounts a
LEFT JOIN journal_lines l ON l.account_id = a.id
WHERE a.tenant_id=$1
GROUP BY a.id, a.code, a.balance
HAVING a.balance <> COALESCE(SUM(l.debit - l.credit), 0)
ORDER BY a.code`, tenantID)
	if err != nil {
		return report, db.Classify(err)
	}
	for rows.Next() {
		var (
			d                BalanceDrift
			stored, computed string
		)
		if err := rows.Scan(&d.AccountID, &d.Code, &stored, &computed); err != nil {
			rows.Close()
			return report, db.Classify(err)
		}
		if d.Stored, err = shared.ParseAmount(stored); err != nil {
			rows.Close()
			return report, err
		}
		if d.Computed, err = shared.ParseAmount(computed); err != nil {
			rows.Close()
			return report, err
		}
		report.Drifts = append(report.Drifts, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return report, db.Classify(err)
	}

	rows, err = r.db.Query(ctx, `SELECT e.id, e.entry_number, COALESCE(SUM(l.debit), 0)::text, COALESCE(SUM(l.credit), 0)::text, COUNT(l.id)
FROM journal_entries e
LEFT JOIN journal_lines l ON l.journal_entry_id = e.id
WHERE e.tenant_id=$1
GROUP BY e.id, e.entry_number
HAVING ABS(COALESCE(SUM(l.debit), 0) - COALESCE(SUM(l.credit), 0)) >= 0.01 OR COUNT(l.id) < 2
ORDER BY e.id`, tenantID)
	if err != nil {
		return report, db.Classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			u             UnbalancedEntry
			debit, credit string
		)
		if err := rows.Scan(&u.EntryID, &u.Number, &debit, &credit, &u.LineCount); err != nil {
			return report, db.Classify(err)
		}
		if u.Debit, err = shared.ParseAmount(debit); err != nil {
			return report, err
		}
		if u.Credit, err = shared.ParseAmount(credit); err != nil {
			return report, err
		}
		report.Unbalanced = append(report.Unbalanced, u)
	}
	return report, db.Classify(rows.Err())
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LockOpenFiscalYear(ctx context.Context, tenantID string, mode LockMode) (fiscalyears.FiscalYear, error) {
	fy, err := fiscalyears.Scan(r.tx.QueryRow(ctx, `SELECT `+fiscalyears.Columns()+` FROM fiscal_years
WHERE tenant_id=$1 AND NOT is_closed `+string(mode), tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fiscalyears.FiscalYear{}, shared.ErrNoOpenYear
		}
		return fiscalyears.FiscalYear{}, err
	}
	return fy, nil
}

// InsertFiscalYearIfNone creates the year unless the tenant already has an open one.
func (r *txRepository) InsertFiscalYearIfNone(ctx context.Context, fy fiscalyears.FiscalYear) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO fiscal_years (tenant_id, name, start_date, end_date, is_closed)
VALUES ($1,$2,$3,$4,FALSE)
ON CONFLICT (tenant_id) WHERE NOT is_closed DO NOTHING`, fy.TenantID, fy.Name, fy.StartDate, fy.EndDate)
	if err != nil {
		return fmt.Errorf("journals: bootstrap fiscal year: %w", err)
	}
	return nil
}

func (r *txRepository) InsertFiscalYear(ctx context.Context, fy fiscalyears.FiscalYear) (fiscalyears.FiscalYear, error) {
	return fiscalyears.Scan(r.tx.QueryRow(ctx, `INSERT INTO fiscal_years (tenant_id, name, start_date, end_date, is_closed)
VALUES ($1,$2,$3,$4,$5) RETURNING `+fiscalyears.Columns(), fy.TenantID, fy.Name, fy.StartDate, fy.EndDate, fy.IsClosed))
}

func (r *txRepository) MarkFiscalYearClosed(ctx context.Context, tenantID string, id int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE fiscal_years SET is_closed=TRUE WHERE tenant_id=$1 AND id=$2 AND NOT is_closed`, tenantID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNoOpenYear
	}
	return nil
}

// NextEntrySequence increments the tenant counter. The first call seeds it from the
// highest JE- number already persisted so legacy entries keep their numbers unique.
func (r *txRepository) NextEntrySequence(ctx context.Context, tenantID string) (int64, error) {
	var next int64
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_sequences (tenant_id, last_value)
VALUES ($1, (
	SELECT COALESCE(MAX(CAST(SUBSTRING(entry_number FROM 4) AS BIGINT)), 0) + 1
	FROM journal_entries
	WHERE tenant_id=$1 AND entry_number ~ '^JE-[0-9]+$'
))
ON CONFLICT (tenant_id) DO UPDATE SET last_value = journal_sequences.last_value + 1, updated_at = NOW()
RETURNING last_value`, tenantID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("journals: next entry number: %w", err)
	}
	return next, nil
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	inserted, err := scanEntry(r.tx.QueryRow(ctx, `INSERT INTO journal_entries
(tenant_id, fiscal_year_id, entry_number, transaction_date, description, reference, currency, exchange_rate, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING `+entryColumns,
		entry.TenantID, entry.FiscalYearID, entry.Number, entry.Date, entry.Description, entry.Reference,
		entry.Currency, entry.ExchangeRate.String(), string(entry.Status), entry.CreatedBy))
	if err != nil {
		if db.IsUniqueViolation(err, "uq_journal_entries_number") {
			return JournalEntry{}, fmt.Errorf("journals: entry number %s taken: %w", entry.Number, err)
		}
		return JournalEntry{}, err
	}
	return inserted, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) ([]JournalLine, error) {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		row := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (journal_entry_id, account_id, description, debit, credit)
VALUES ($1,$2,$3,$4,$5) RETURNING `+lineColumns,
			entryID, line.AccountID, line.Description, shared.FormatAmount(line.Debit), shared.FormatAmount(line.Credit))
		inserted, err := scanLine(row)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return nil, fmt.Errorf("account %d: %w", line.AccountID, shared.ErrAccountNotFound)
			}
			return nil, fmt.Errorf("journals: insert line: %w", err)
		}
		out = append(out, inserted)
	}
	return out, nil
}

// GetJournalWithLines locks the entry row and loads its lines.
func (r *txRepository) GetJournalWithLines(ctx context.Context, tenantID string, entryID int64) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, entryID))
	if err != nil {
		return JournalEntry{}, err
	}
	lines, err := queryLines(ctx, r.tx, []int64{entry.ID})
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines[entry.ID]
	return entry, nil
}

func (r *txRepository) DeleteJournalEntry(ctx context.Context, tenantID string, entryID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE journal_entry_id=$1`, entryID); err != nil {
		return fmt.Errorf("journals: delete lines: %w", err)
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE tenant_id=$1 AND id=$2`, tenantID, entryID)
	if err != nil {
		return fmt.Errorf("journals: delete entry: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

// ApplyBalanceDelta adds delta to the running balance; accounts of other tenants are not found.
func (r *txRepository) ApplyBalanceDelta(ctx context.Context, tenantID string, accountID int64, delta decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET balance = balance + $3::numeric, updated_at = NOW()
WHERE tenant_id=$1 AND id=$2`, tenantID, accountID, shared.FormatAmount(delta))
	if err != nil {
		return fmt.Errorf("journals: apply balance: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("account %d: %w", accountID, shared.ErrAccountNotFound)
	}
	return nil
}

// LockClosingAccounts locks revenue (4), expense (5) and the profit/loss account in id order.
func (r *txRepository) LockClosingAccounts(ctx context.Context, tenantID string) ([]accounts.Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accounts.Columns()+` FROM accounts
WHERE tenant_id=$1 AND (code LIKE $2 OR code LIKE $3 OR code=$4)
ORDER BY id FOR UPDATE`, tenantID, accounts.ClassRevenue+"%", accounts.ClassExpense+"%", accounts.ProfitLossCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []accounts.Account
	for rows.Next() {
		a, err := accounts.ScanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ClaimIdempotencyKey records the key; when another request already holds it the stored claim is returned.
func (r *txRepository) ClaimIdempotencyKey(ctx context.Context, tenantID string, key uuid.UUID, fingerprint string) (IdempotencyRecord, bool, error) {
	cmd, err := r.tx.Exec(ctx, `INSERT INTO ledger_idempotency_keys (tenant_id, key, fingerprint)
VALUES ($1,$2,$3) ON CONFLICT (tenant_id, key) DO NOTHING`, tenantID, key, fingerprint)
	if err != nil {
		return IdempotencyRecord{}, false, fmt.Errorf("journals: claim idempotency key: %w", err)
	}
	if cmd.RowsAffected() == 1 {
		return IdempotencyRecord{Fingerprint: fingerprint}, true, nil
	}
	var rec IdempotencyRecord
	err = r.tx.QueryRow(ctx, `SELECT fingerprint, journal_entry_id FROM ledger_idempotency_keys WHERE tenant_id=$1 AND key=$2`, tenantID, key).
		Scan(&rec.Fingerprint, &rec.EntryID)
	if err != nil {
		return IdempotencyRecord{}, false, fmt.Errorf("journals: load idempotency key: %w", err)
	}
	return rec, false, nil
}

func (r *txRepository) AttachIdempotencyKey(ctx context.Context, tenantID string, key uuid.UUID, entryID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE ledger_idempotency_keys SET journal_entry_id=$3 WHERE tenant_id=$1 AND key=$2`, tenantID, key, entryID)
	return err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, entryIDs []int64) (map[int64][]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT `+lineWithAccountColumns+` FROM journal_lines l
JOIN accounts a ON a.id = l.account_id
WHERE l.journal_entry_id = ANY($1) ORDER BY l.id`, entryIDs)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	out := make(map[int64][]JournalLine, len(entryIDs))
	for rows.Next() {
		var name string
		line, err := scanLine(rows, &name)
		if err != nil {
			return nil, err
		}
		line.AccountName = name
		out[line.EntryID] = append(out[line.EntryID], line)
	}
	return out, db.Classify(rows.Err())
}

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var (
		e      JournalEntry
		rate   string
		status string
	)
	if err := row.Scan(&e.ID, &e.TenantID, &e.FiscalYearID, &e.Number, &e.Date, &e.Description, &e.Reference,
		&e.Currency, &rate, &status, &e.CreatedBy, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, db.Classify(err)
	}
	e.Status = JournalStatus(status)
	var err error
	if e.ExchangeRate, err = shared.ParseAmount(rate); err != nil {
		return JournalEntry{}, err
	}
	return e, nil
}

// scanLine reads lineColumns followed by any extra destinations.
func scanLine(row pgx.Row, extra ...any) (JournalLine, error) {
	var (
		l             JournalLine
		debit, credit string
	)
	dest := append([]any{&l.ID, &l.EntryID, &l.AccountID, &l.Description, &debit, &credit}, extra...)
	if err := row.Scan(dest...); err != nil {
		return JournalLine{}, db.Classify(err)
	}
	var err error
	if l.Debit, err = shared.ParseAmount(debit); err != nil {
		return JournalLine{}, err
	}
	if l.Credit, err = shared.ParseAmount(credit); err != nil {
		return JournalLine{}, err
	}
	return l, nil
}
