package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyStore maintains the posting idempotency keys table.
type IdempotencyStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool, now: time.Now}
}

// Cleanup removes keys older than retention and reports how many were purged.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("idempotency store not initialised")
	}
	if olderThan <= 0 {
		return 0, errors.New("idempotency retention must be positive")
	}
	cutoff := s.now().Add(-olderThan)
	cmd, err := s.pool.Exec(ctx, `DELETE FROM ledger_idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
