package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/perptools/perprecap/internal/domain"
)

// SnapshotCache implements domain.SnapshotCache using Redis. Each account's
// latest run summary is stored as JSON at "snapshot:{account}" so other
// tooling can read the state of the last reconstruction cheaply.
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

func snapshotKey(account string) string {
	return "snapshot:" + account
}

// SetSnapshot stores the account's latest run summary.
func (sc *SnapshotCache) SetSnapshot(ctx context.Context, snap domain.AccountSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: encode snapshot %s: %w", snap.Account, err)
	}
	if err := sc.rdb.Set(ctx, snapshotKey(snap.Account), data, 0).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.Account, err)
	}
	return nil
}

// GetSnapshot retrieves the account's latest run summary. It returns
// domain.ErrNotFound when no snapshot has been published.
func (sc *SnapshotCache) GetSnapshot(ctx context.Context, account string) (domain.AccountSnapshot, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey(account)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.AccountSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", account, err)
	}

	var snap domain.AccountSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("redis: decode snapshot %s: %w", account, err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
