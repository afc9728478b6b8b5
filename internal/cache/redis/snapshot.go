package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/updownlabs/updownbot/internal/domain"
)

const snapshotKey = "updownbot:snapshot"

// SnapshotStore persists the engine state as a single JSON blob. The
// snapshot is small (open positions, probes, counters), so one key with
// no TTL is enough.
type SnapshotStore struct {
	rdb *redis.Client
}

func NewSnapshotStore(c *Client) *SnapshotStore {
	return &SnapshotStore{rdb: c.Underlying()}
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, snapshotKey, data, 0).Err(); err != nil {
		return fmt.Errorf("redis: save snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context) (domain.Snapshot, bool, error) {
	data, err := s.rdb.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("redis: load snapshot: %w", err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("redis: decode snapshot: %w", err)
	}
	return snap, true, nil
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)
