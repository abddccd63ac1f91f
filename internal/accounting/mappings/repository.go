package mappings

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

type Repository interface {
	List(ctx context.Context, tenantID string) ([]AccountMapping, error)
	Upsert(ctx context.Context, m AccountMapping) (AccountMapping, error)
	Delete(ctx context.Context, tenantID string, role Role) error
	AccountIDsByCode(ctx context.Context, tenantID string, codes []string) (map[string]int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

// List returns the tenant's explicit role overrides.
func (r *repository) List(ctx context.Context, tenantID string) ([]AccountMapping, error) {
	rows, err := r.db.Query(ctx, `SELECT tenant_id, role, account_id, created_at, updated_at FROM account_mappings WHERE tenant_id=$1 ORDER BY role`, tenantID)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	var out []AccountMapping
	for rows.Next() {
		var (
			m    AccountMapping
			role string
		)
		if err := rows.Scan(&m.TenantID, &role, &m.AccountID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, db.Classify(err)
		}
		m.Role = Role(role)
		out = append(out, m)
	}
	return out, db.Classify(rows.Err())
}

// Upsert points role at an account of the same tenant.
func (r *repository) Upsert(ctx context.Context, m AccountMapping) (AccountMapping, error) {
	var role string
	err := r.db.QueryRow(ctx, `INSERT INTO account_mappings (tenant_id, role, account_id)
SELECT $1, $2, a.id FROM accounts a WHERE a.tenant_id=$1 AND a.id=$3
ON CONFLICT (tenant_id, role) DO UPDATE SET account_id=EXCLUDED.account_id, updated_at=NOW()
RETURNING tenant_id, role, account_id, created_at, updated_at`, m.TenantID, string(m.Role), m.AccountID).
		Scan(&m.TenantID, &role, &m.AccountID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return AccountMapping{}, shared.ErrAccountNotFound
		}
		return AccountMapping{}, db.Classify(err)
	}
	m.Role = Role(role)
	return m, nil
}

func (r *repository) Delete(ctx context.Context, tenantID string, role Role) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM account_mappings WHERE tenant_id=$1 AND role=$2`, tenantID, string(role))
	if err != nil {
		return db.Classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrMappingNotFound
	}
	return nil
}

// AccountIDsByCode resolves chart codes to account ids; unknown codes are absent from the map.
func (r *repository) AccountIDsByCode(ctx context.Context, tenantID string, codes []string) (map[string]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT code, id FROM accounts WHERE tenant_id=$1 AND code = ANY($2)`, tenantID, codes)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()
	out := make(map[string]int64, len(codes))
	for rows.Next() {
		var (
			code string
			id   int64
		)
		if err := rows.Scan(&code, &id); err != nil {
			return nil, db.Classify(err)
		}
		out[code] = id
	}
	return out, db.Classify(rows.Err())
}
