package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository persists chart of accounts rows.
type Repository interface {
	List(ctx context.Context, tenantID string) ([]Account, error)
	Get(ctx context.Context, tenantID string, id int64) (Account, error)
	GetByCode(ctx context.Context, tenantID, code string) (Account, error)
	Insert(ctx context.Context, in CreateInput) (Account, error)
	Rename(ctx context.Context, tenantID string, id int64, name string) error
	Delete(ctx context.Context, tenantID string, id int64) error
}

type repository struct {
	db    *pgxpool.Pool
	txCfg db.TxConfig
}

// NewRepository returns the pgx backed account repository.
func NewRepository(pool *pgxpool.Pool, txCfg db.TxConfig) Repository {
	return &repository{db: pool, txCfg: txCfg}
}

const accountColumns = `id, tenant_id, code, name, type, parent_id, balance::text, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, tenantID string) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := ScanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, db.Classify(rows.Err())
}

func (r *repository) Get(ctx context.Context, tenantID string, id int64) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return scanOne(row)
}

func (r *repository) GetByCode(ctx context.Context, tenantID, code string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND code=$2`, tenantID, code)
	return scanOne(row)
}

func (r *repository) Insert(ctx context.Context, in CreateInput) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (tenant_id, code, name, type, parent_id, balance, is_active)
VALUES ($1,$2,$3,$4,$5,0,TRUE) RETURNING `+accountColumns, in.TenantID, in.Code, in.Name, string(in.Type), in.ParentID)
	a, err := scanOne(row)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_accounts_tenant_code") {
			return Account{}, shared.ErrAccountCodeTaken
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) Rename(ctx context.Context, tenantID string, id int64, name string) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET name=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, name)
	if err != nil {
		return db.Classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

// Delete removes an account that has neither children nor journal lines.
func (r *repository) Delete(ctx context.Context, tenantID string, id int64) error {
	return db.WithTx(ctx, r.db, r.txCfg, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT TRUE FROM accounts WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id).Scan(&exists); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.ErrAccountNotFound
			}
			return err
		}
		var children bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE tenant_id=$1 AND parent_id=$2)`, tenantID, id).Scan(&children); err != nil {
			return err
		}
		if children {
			return shared.ErrAccountHasChildren
		}
		var lines bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_lines WHERE account_id=$1)`, id).Scan(&lines); err != nil {
			return err
		}
		if lines {
			return shared.ErrAccountHasLines
		}
		if _, err := tx.Exec(ctx, `DELETE FROM accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id); err != nil {
			return fmt.Errorf("accounts: delete: %w", err)
		}
		return nil
	})
}

func scanOne(row pgx.Row) (Account, error) {
	a, err := ScanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// ScanAccount reads a row selected with the canonical account column list.
func ScanAccount(row pgx.Row) (Account, error) {
	var (
		a       Account
		typ     string
		balance string
	)
	if err := row.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &typ, &a.ParentID, &balance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Account{}, db.Classify(err)
	}
	a.Type = AccountType(typ)
	bal, err := shared.ParseAmount(balance)
	if err != nil {
		return Account{}, fmt.Errorf("accounts: parse balance of %s: %w", a.Code, err)
	}
	a.Balance = bal
	return a, nil
}

// Columns is the select list understood by ScanAccount.
func Columns() string {
	return accountColumns
}
