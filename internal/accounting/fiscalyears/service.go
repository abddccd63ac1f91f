package fiscalyears

import (
	"context"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Current returns the open fiscal year, shared.ErrNoOpenYear when none exists.
func (s *Service) Current(ctx context.Context, tenantID string) (FiscalYear, error) {
	if tenantID == "" {
		return FiscalYear{}, shared.ErrTenantRequired
	}
	return s.repo.FindOpen(ctx, tenantID)
}

func (s *Service) Get(ctx context.Context, tenantID string, id int64) (FiscalYear, error) {
	if tenantID == "" {
		return FiscalYear{}, shared.ErrTenantRequired
	}
	return s.repo.Get(ctx, tenantID, id)
}

func (s *Service) List(ctx context.Context, tenantID string) ([]FiscalYear, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.List(ctx, tenantID)
}
