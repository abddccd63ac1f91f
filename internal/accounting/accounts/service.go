package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// ChartObserver is told when a tenant's chart of accounts changed.
type ChartObserver interface {
	Invalidate(ctx context.Context, tenantID string)
}

// Service manages the chart of accounts. Balances are never written here.
type Service struct {
	repo     Repository
	logger   *slog.Logger
	observer ChartObserver
}

// NewService constructs the account service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// WithObserver registers the component caching data derived from the chart.
func (s *Service) WithObserver(o ChartObserver) *Service {
	s.observer = o
	return s
}

func (s *Service) chartChanged(ctx context.Context, tenantID string) {
	if s.observer != nil {
		s.observer.Invalidate(ctx, tenantID)
	}
}

func (s *Service) List(ctx context.Context, tenantID string) ([]Account, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.List(ctx, tenantID)
}

func (s *Service) Get(ctx context.Context, tenantID string, id int64) (Account, error) {
	return s.repo.Get(ctx, tenantID, id)
}

func (s *Service) GetByCode(ctx context.Context, tenantID, code string) (Account, error) {
	return s.repo.GetByCode(ctx, tenantID, code)
}

// Create adds an account after checking the code is free for the tenant.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if in.TenantID == "" {
		return Account{}, shared.ErrTenantRequired
	}
	if in.Code == "" || in.Name == "" {
		return Account{}, &shared.Error{Kind: shared.KindValidation, Message: "accounting: account code and name required"}
	}
	if !in.Type.Valid() {
		return Account{}, shared.ErrInvalidAccountType
	}
	if _, err := s.repo.GetByCode(ctx, in.TenantID, in.Code); err == nil {
		return Account{}, shared.ErrAccountCodeTaken
	} else if !errors.Is(err, shared.ErrAccountNotFound) {
		return Account{}, err
	}
	if in.ParentID != nil {
		if _, err := s.repo.Get(ctx, in.TenantID, *in.ParentID); err != nil {
			return Account{}, fmt.Errorf("accounts: parent: %w", err)
		}
	}
	acc, err := s.repo.Insert(ctx, in)
	if err != nil {
		return Account{}, err
	}
	s.chartChanged(ctx, in.TenantID)
	return acc, nil
}

// Delete removes an account without children or journal lines.
func (s *Service) Delete(ctx context.Context, tenantID string, id int64) error {
	if tenantID == "" {
		return shared.ErrTenantRequired
	}
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		s.logger.Warn("delete account", slog.String("tenant", tenantID), slog.Int64("account_id", id), slog.Any("error", err))
		return err
	}
	s.chartChanged(ctx, tenantID)
	return nil
}

// SeedResult summarises a seeding run.
type SeedResult struct {
	Created int
	Renamed int
}

// SeedDefaults installs the default chart for a tenant. Existing codes (or their legacy
// padded form) are kept and only renamed to the default label.
func (s *Service) SeedDefaults(ctx context.Context, tenantID string) (SeedResult, error) {
	return s.Seed(ctx, tenantID, DefaultChart())
}

// Seed installs the given chart entries, parents first.
func (s *Service) Seed(ctx context.Context, tenantID string, chart []ChartEntry) (SeedResult, error) {
	var res SeedResult
	if tenantID == "" {
		return res, shared.ErrTenantRequired
	}
	defer func() {
		if res.Created > 0 || res.Renamed > 0 {
			s.chartChanged(ctx, tenantID)
		}
	}()
	for _, entry := range chart {
		existing, err := s.findSeeded(ctx, tenantID, entry.Code)
		if err != nil && !errors.Is(err, shared.ErrAccountNotFound) {
			return res, err
		}
		if err == nil {
			if existing.Name != entry.Name {
				if err := s.repo.Rename(ctx, tenantID, existing.ID, entry.Name); err != nil {
					return res, err
				}
				res.Renamed++
			}
			continue
		}
		var parentID *int64
		if entry.Parent != "" {
			parent, err := s.findSeeded(ctx, tenantID, entry.Parent)
			if err == nil {
				id := parent.ID
				parentID = &id
			} else if !errors.Is(err, shared.ErrAccountNotFound) {
				return res, err
			}
		}
		if _, err := s.repo.Insert(ctx, CreateInput{
			TenantID: tenantID,
			Code:     entry.Code,
			Name:     entry.Name,
			Type:     entry.Type,
			ParentID: parentID,
		}); err != nil {
			return res, fmt.Errorf("accounts: seed %s: %w", entry.Code, err)
		}
		res.Created++
	}
	s.logger.Info("chart of accounts seeded", slog.String("tenant", tenantID), slog.Int("created", res.Created), slog.Int("renamed", res.Renamed))
	return res, nil
}

func (s *Service) findSeeded(ctx context.Context, tenantID, code string) (Account, error) {
	acc, err := s.repo.GetByCode(ctx, tenantID, code)
	if err == nil || !errors.Is(err, shared.ErrAccountNotFound) {
		return acc, err
	}
	if legacy := legacyCode(code); legacy != "" {
		return s.repo.GetByCode(ctx, tenantID, legacy)
	}
	return Account{}, err
}
