package shared

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockKeys(t *testing.T) {
	assert.Equal(t, "ledger:tenant:t1:close", TenantCloseLockKey("t1"))
	assert.Equal(t, "ledger:tenant:t1:roles", RoleCacheKey("t1"))
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	ctx := ContextWithIdentity(context.Background(), Identity{UserID: "u1"})
	_, ok = IdentityFromContext(ctx)
	assert.False(t, ok, "identity without tenant is rejected")

	ctx = ContextWithIdentity(context.Background(), Identity{TenantID: "t1", UserID: "u1"})
	id, ok := IdentityFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "t1", id.TenantID)
}

func TestIdempotencyCleanupGuards(t *testing.T) {
	var store *IdempotencyStore
	_, err := store.Cleanup(context.Background(), time.Hour)
	assert.Error(t, err)

	store = NewIdempotencyStore(nil)
	_, err = store.Cleanup(context.Background(), time.Hour)
	assert.Error(t, err)
}
