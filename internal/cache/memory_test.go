package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/updownlabs/updownbot/internal/domain"
)

func TestMemoryLockManagerExclusion(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mgr := NewMemoryLockManager(func() time.Time { return now })

	unlock, err := mgr.Acquire(context.Background(), "k", 5*time.Second)
	require.NoError(t, err)

	_, err = mgr.Acquire(context.Background(), "k", 5*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	_, err = mgr.Acquire(context.Background(), "k", 5*time.Second)
	assert.NoError(t, err)
}

func TestMemoryLockManagerExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mgr := NewMemoryLockManager(func() time.Time { return now })

	_, err := mgr.Acquire(context.Background(), "k", 5*time.Second)
	require.NoError(t, err)

	// TTL elapsed: the lock is free without an explicit release.
	now = now.Add(6 * time.Second)
	_, err = mgr.Acquire(context.Background(), "k", 5*time.Second)
	assert.NoError(t, err)
}

func TestMemoryLockManagerStaleReleaseIsNoop(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mgr := NewMemoryLockManager(func() time.Time { return now })

	unlock1, err := mgr.Acquire(context.Background(), "k", 5*time.Second)
	require.NoError(t, err)

	// First holder expires and a second one takes over.
	now = now.Add(6 * time.Second)
	_, err = mgr.Acquire(context.Background(), "k", 5*time.Second)
	require.NoError(t, err)

	// The stale release must not free the new holder's lock.
	unlock1()
	_, err = mgr.Acquire(context.Background(), "k", 5*time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestMemorySnapshotStore(t *testing.T) {
	store := NewMemorySnapshotStore()

	_, ok, err := store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	snap := domain.Snapshot{Version: 1, Bankroll: 42}
	require.NoError(t, store.SaveSnapshot(context.Background(), snap))

	got, ok, err := store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42.0, got.Bankroll)
}
