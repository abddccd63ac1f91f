package journals

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// IntegrityRecorder is implemented by metrics sinks that track ledger drift.
type IntegrityRecorder interface {
	ObserveIntegrity(tenantID string, report IntegrityReport)
}

// CheckIntegrity compares stored balances with line totals and finds unbalanced entries.
func (s *Service) CheckIntegrity(ctx context.Context, tenantID string) (IntegrityReport, error) {
	if tenantID == "" {
		return IntegrityReport{}, shared.ErrTenantRequired
	}
	report, err := s.repo.CheckIntegrity(ctx, tenantID)
	if err != nil {
		return IntegrityReport{}, err
	}
	if rec, ok := s.metrics.(IntegrityRecorder); ok {
		rec.ObserveIntegrity(tenantID, report)
	}
	if !report.Healthy() {
		s.logger.Error("ledger integrity violation",
			slog.String("tenant", tenantID),
			slog.Int("balance_drifts", len(report.Drifts)),
			slog.Int("unbalanced_entries", len(report.Unbalanced)))
	}
	return report, nil
}

// CheckAllTenants runs CheckIntegrity for every tenant owning accounts. A failing
// tenant does not stop the sweep; the first error is returned after all ran.
func (s *Service) CheckAllTenants(ctx context.Context) ([]IntegrityReport, error) {
	tenants, err := s.repo.ListTenants(ctx)
	if err != nil {
		return nil, err
	}
	var (
		reports  []IntegrityReport
		firstErr error
	)
	for _, tenantID := range tenants {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := s.CheckIntegrity(ctx, tenantID)
		if err != nil {
			s.logger.Warn("integrity check failed", slog.String("tenant", tenantID), slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		reports = append(reports, report)
	}
	return reports, firstErr
}
