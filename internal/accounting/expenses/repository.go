package expenses

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// AdminClass is the chart prefix of general and administrative expenses. Cost of sales (51) is excluded.
const AdminClass = "52"

// Filter bounds expense lines by transaction date; nil bounds are open.
type Filter struct {
	TenantID string
	From     *time.Time
	To       *time.Time
}

// Line is one debit booked on an administrative expense account.
type Line struct {
	ID          int64
	Date        time.Time
	AccountID   int64
	AccountName string
	Amount      decimal.Decimal
	Description string
	EntryNumber string
	Reference   string
}

// Repository reads expense lines from the ledger.
type Repository interface {
	Lines(ctx context.Context, f Filter) ([]Line, error)
	DebitTotal(ctx context.Context, f Filter) (decimal.Decimal, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const expenseJoin = `FROM journal_lines l
JOIN accounts a ON a.id = l.account_id
JOIN journal_entries e ON e.id = l.journal_entry_id
WHERE e.tenant_id=$1 AND a.tenant_id=$1 AND a.type='expense' AND a.code LIKE $2::text || '%'
AND ($3::date IS NULL OR e.transaction_date >= $3::date)
AND ($4::date IS NULL OR e.transaction_date <= $4::date)`

// Lines returns matching lines, newest first.
func (r *repository) Lines(ctx context.Context, f Filter) ([]Line, error) {
	rows, err := r.db.Query(ctx, `SELECT l.id, e.transaction_date, a.id, a.name, l.debit::text, l.description, e.entry_number, e.reference
`+expenseJoin+`
ORDER BY e.transaction_date DESC, e.created_at DESC, l.id DESC`, f.TenantID, AdminClass, f.From, f.To)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []Line
	for rows.Next() {
		var (
			l     Line
			debit string
		)
		if err := rows.Scan(&l.ID, &l.Date, &l.AccountID, &l.AccountName, &debit, &l.Description, &l.EntryNumber, &l.Reference); err != nil {
			return nil, db.Classify(err)
		}
		if l.Amount, err = shared.ParseAmount(debit); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, db.Classify(rows.Err())
}

func (r *repository) DebitTotal(ctx context.Context, f Filter) (decimal.Decimal, error) {
	var total string
	if err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit), 0)::text `+expenseJoin, f.TenantID, AdminClass, f.From, f.To).Scan(&total); err != nil {
		return decimal.Zero, db.Classify(err)
	}
	return shared.ParseAmount(total)
}
