// Package cache provides in-process fallbacks for the persistence
// interfaces, used in paper mode when Redis is not configured.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/updownlabs/updownbot/internal/domain"
)

// MemoryLockManager implements domain.LockManager with expiring
// in-process locks. Good enough for a single-writer paper run.
type MemoryLockManager struct {
	mu    sync.Mutex
	locks map[string]time.Time // expiry per key
	now   func() time.Time
}

func NewMemoryLockManager(now func() time.Time) *MemoryLockManager {
	if now == nil {
		now = time.Now
	}
	return &MemoryLockManager{
		locks: make(map[string]time.Time),
		now:   now,
	}
}

func (m *MemoryLockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if exp, held := m.locks[key]; held && now.Before(exp) {
		return nil, domain.ErrLockHeld
	}
	exp := now.Add(ttl)
	m.locks[key] = exp

	released := false
	unlock := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if released {
			return
		}
		released = true
		// Only delete if nobody re-acquired after our expiry.
		if cur, ok := m.locks[key]; ok && cur.Equal(exp) {
			delete(m.locks, key)
		}
	}
	return unlock, nil
}

// MemorySnapshotStore keeps the last snapshot in memory. State does not
// survive a restart; paper runs accept that.
type MemorySnapshotStore struct {
	mu    sync.Mutex
	snap  domain.Snapshot
	saved bool
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{}
}

func (m *MemorySnapshotStore) SaveSnapshot(_ context.Context, snap domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
	m.saved = true
	return nil
}

func (m *MemorySnapshotStore) LoadSnapshot(_ context.Context) (domain.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, m.saved, nil
}

var (
	_ domain.LockManager   = (*MemoryLockManager)(nil)
	_ domain.SnapshotStore = (*MemorySnapshotStore)(nil)
)
