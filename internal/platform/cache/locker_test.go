package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client), mr
}

func TestLockerExcludesSecondHolder(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "ledger:tenant:t1:close", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "ledger:tenant:t1:close", time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	_, err = locker.Acquire(ctx, "ledger:tenant:t2:close", time.Minute)
	require.NoError(t, err)

	require.NoError(t, release(ctx))
	_, err = locker.Acquire(ctx, "ledger:tenant:t1:close", time.Minute)
	require.NoError(t, err)
}

func TestLockerReleaseKeepsForeignToken(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	_, err = locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	require.NoError(t, release(ctx))
	require.True(t, mr.Exists("k"))
}
