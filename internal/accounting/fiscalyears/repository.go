package fiscalyears

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

type Repository interface {
	FindOpen(ctx context.Context, tenantID string) (FiscalYear, error)
	Get(ctx context.Context, tenantID string, id int64) (FiscalYear, error)
	List(ctx context.Context, tenantID string) ([]FiscalYear, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const columns = `id, tenant_id, name, start_date, end_date, is_closed, created_at`

// FindOpen returns the tenant's open fiscal year.
func (r *repository) FindOpen(ctx context.Context, tenantID string) (FiscalYear, error) {
	fy, err := Scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM fiscal_years WHERE tenant_id=$1 AND NOT is_closed`, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalYear{}, shared.ErrNoOpenYear
		}
		return FiscalYear{}, err
	}
	return fy, nil
}

func (r *repository) Get(ctx context.Context, tenantID string, id int64) (FiscalYear, error) {
	fy, err := Scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM fiscal_years WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalYear{}, shared.ErrFiscalYearNotFound
		}
		return FiscalYear{}, err
	}
	return fy, nil
}

func (r *repository) List(ctx context.Context, tenantID string) ([]FiscalYear, error) {
	rows, err := r.db.Query(ctx, `SELECT `+columns+` FROM fiscal_years WHERE tenant_id=$1 ORDER BY start_date DESC`, tenantID)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []FiscalYear
	for rows.Next() {
		fy, err := Scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fy)
	}
	return out, db.Classify(rows.Err())
}

// Columns is the select list understood by Scan.
func Columns() string {
	return columns
}

// Scan reads a fiscal year row selected with Columns.
func Scan(row pgx.Row) (FiscalYear, error) {
	var fy FiscalYear
	if err := row.Scan(&fy.ID, &fy.TenantID, &fy.Name, &fy.StartDate, &fy.EndDate, &fy.IsClosed, &fy.CreatedAt); err != nil {
		return FiscalYear{}, db.Classify(err)
	}
	return fy, nil
}
