package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/odyssey-ledger/cmd/ledgerctl/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

type backend struct {
	services *app.Services
	jobs     *cli.JobsCLI
}

func (b *backend) SeedAccounts(ctx context.Context, tenantID string) (accounts.SeedResult, error) {
	return b.services.Accounts.SeedDefaults(ctx, tenantID)
}

func (b *backend) CloseYear(ctx context.Context, tenantID, userID string) (journals.CloseResult, error) {
	return b.services.Journals.CloseFiscalYear(ctx, tenantID, userID)
}

func (b *backend) CheckIntegrity(ctx context.Context, tenantID string) ([]journals.IntegrityReport, error) {
	if tenantID == "" {
		return b.services.Journals.CheckAllTenants(ctx)
	}
	report, err := b.services.Journals.CheckIntegrity(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return []journals.IntegrityReport{report}, nil
}

func (b *backend) TriggerJob(ctx context.Context, name, tenantID string) (*asynq.TaskInfo, error) {
	return b.jobs.Trigger(ctx, name, tenantID)
}

func open(ctx context.Context) (cli.Backend, func(), error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr, cfg.IdempotencyRetention)

	release := func() {
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
		pool.Close()
	}
	services := app.BuildServices(cfg, pool, redisClient, logger, nil)
	return &backend{services: services, jobs: jobsCLI}, release, nil
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(open).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ledgerctl:", err)
		stop()
		os.Exit(1)
	}
}
