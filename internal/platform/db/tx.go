package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxConfig tunes isolation and the lock/statement timeouts applied with SET LOCAL.
type TxConfig struct {
	IsoLevel         pgx.TxIsoLevel
	LockTimeout      time.Duration
	StatementTimeout time.Duration
}

// DefaultTxConfig uses READ COMMITTED with explicit row locks and bounded waits.
func DefaultTxConfig() TxConfig {
	return TxConfig{
		IsoLevel:         pgx.ReadCommitted,
		LockTimeout:      5 * time.Second,
		StatementTimeout: 15 * time.Second,
	}
}

// WithTx executes a function within a transaction. Storage failures are classified so that
// lock timeouts, serialization failures and dropped connections surface as transient errors.
func WithTx(ctx context.Context, pool *pgxpool.Pool, cfg TxConfig, fn func(pgx.Tx) error) error {
	iso := cfg.IsoLevel
	if iso == "" {
		iso = pgx.ReadCommitted
	}
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: iso})
	if err != nil {
		return Classify(fmt.Errorf("platform/db: begin tx: %w", err))
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := applyTimeouts(ctx, tx, cfg); err != nil {
		return Classify(err)
	}

	if err := fn(tx); err != nil {
		return Classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Classify(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

func applyTimeouts(ctx context.Context, tx pgx.Tx, cfg TxConfig) error {
	if cfg.LockTimeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, millis(cfg.LockTimeout)); err != nil {
			return fmt.Errorf("platform/db: set lock_timeout: %w", err)
		}
	}
	if cfg.StatementTimeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('statement_timeout', $1, true)`, millis(cfg.StatementTimeout)); err != nil {
			return fmt.Errorf("platform/db: set statement_timeout: %w", err)
		}
	}
	return nil
}

func millis(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}
