package automatch

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// PairLocker serializes persistence for one item pair across processes.
// Locking is an optimization only: correctness is carried by the store's
// conditional create, so a lost or expired lock can never produce a
// duplicate record.
type PairLocker interface {
	// Obtain acquires the pair lock and returns its release func. When
	// the lock is already held elsewhere it returns ErrLockHeld.
	Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// ErrLockHeld reports that another process currently owns the pair.
var ErrLockHeld = fmt.Errorf("pair lock held elsewhere")

// RedisLocker implements PairLocker on Redis.
type RedisLocker struct {
	client *redislock.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, ErrLockHeld
	}
	if err != nil {
		return nil, err
	}
	release := func() {
		// Best effort; the TTL reclaims an unreleased lock.
		_ = lock.Release(context.Background())
	}
	return release, nil
}

func pairLockKey(lostID, foundID string) string {
	return fmt.Sprintf("automatch:pair:%s:%s", lostID, foundID)
}

var _ PairLocker = (*RedisLocker)(nil)
