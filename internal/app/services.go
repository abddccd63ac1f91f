package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/expenses"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/fiscalyears"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/settings"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Services bundles the ledger services shared by the server, worker and CLI binaries.
type Services struct {
	Accounts    *accounts.Service
	Settings    *settings.Service
	Journals    *journals.Service
	Years       *fiscalyears.Service
	Roles       *mappings.Registry
	Expenses    *expenses.Service
	Idempotency *shared.IdempotencyStore
}

// BuildServices wires repositories and services. redisClient may be nil, in which case
// role lookups skip the cache and fiscal year closing runs without the tenant lock.
func BuildServices(cfg *Config, pool *pgxpool.Pool, redisClient redis.UniversalClient, logger *slog.Logger, metrics *observability.Metrics) *Services {
	txCfg := cfg.TxConfig()

	settingsSvc := settings.NewService(settings.NewRepository(pool))

	journalSvc := journals.NewService(journals.NewRepository(pool, txCfg), settingsSvc, logger, cfg.JournalConfig())
	if redisClient != nil {
		journalSvc.WithLocker(cache.NewLocker(redisClient))
	}
	if metrics != nil {
		journalSvc.WithMetrics(metrics)
	}

	roles := mappings.NewRegistry(mappings.NewRepository(pool), redisClient, cfg.RoleCacheTTL, logger)
	accountSvc := accounts.NewService(accounts.NewRepository(pool, txCfg), logger).WithObserver(roles)

	return &Services{
		Accounts:    accountSvc,
		Settings:    settingsSvc,
		Journals:    journalSvc,
		Years:       fiscalyears.NewService(fiscalyears.NewRepository(pool)),
		Roles:       roles,
		Expenses:    expenses.NewService(journalSvc, roles, expenses.NewRepository(pool), accountSvc),
		Idempotency: shared.NewIdempotencyStore(pool),
	}
}
