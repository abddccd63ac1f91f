package settings

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/currency"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// TenantSettings holds per-tenant ledger preferences.
type TenantSettings struct {
	TenantID  string
	Currency  string
	UpdatedAt time.Time
}

type Repository interface {
	Get(ctx context.Context, tenantID string) (TenantSettings, bool, error)
	Upsert(ctx context.Context, s TenantSettings) (TenantSettings, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) Get(ctx context.Context, tenantID string) (TenantSettings, bool, error) {
	var (
		s   TenantSettings
		cur *string
	)
	err := r.db.QueryRow(ctx, `SELECT tenant_id, currency, updated_at FROM tenant_settings WHERE tenant_id=$1`, tenantID).
		Scan(&s.TenantID, &cur, &s.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return TenantSettings{}, false, nil
		}
		return TenantSettings{}, false, db.Classify(err)
	}
	if cur != nil {
		s.Currency = *cur
	}
	return s, true, nil
}

func (r *repository) Upsert(ctx context.Context, s TenantSettings) (TenantSettings, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO tenant_settings (tenant_id, currency) VALUES ($1,$2)
ON CONFLICT (tenant_id) DO UPDATE SET currency=EXCLUDED.currency, updated_at=NOW()
RETURNING updated_at`, s.TenantID, s.Currency).Scan(&s.UpdatedAt)
	if err != nil {
		return TenantSettings{}, db.Classify(err)
	}
	return s, nil
}

// Service answers the journal engine's currency lookups.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// DefaultCurrency returns the tenant's configured currency, empty when unset.
func (s *Service) DefaultCurrency(ctx context.Context, tenantID string) (string, error) {
	st, ok, err := s.repo.Get(ctx, tenantID)
	if err != nil || !ok {
		return "", err
	}
	return st.Currency, nil
}

// SetCurrency stores an ISO-4217 code as the tenant default.
func (s *Service) SetCurrency(ctx context.Context, tenantID, code string) (TenantSettings, error) {
	if tenantID == "" {
		return TenantSettings{}, shared.ErrTenantRequired
	}
	code, err := NormalizeCurrency(code)
	if err != nil {
		return TenantSettings{}, err
	}
	return s.repo.Upsert(ctx, TenantSettings{TenantID: tenantID, Currency: code})
}

// NormalizeCurrency upper-cases and validates an ISO-4217 code.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", shared.ErrInvalidCurrency
	}
	return unit.String(), nil
}
