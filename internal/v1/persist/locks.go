package persist

import (
	"context"
	"errors"
	"time"

	"github.com/lexiclash/server/internal/v1/logging"
	"github.com/lexiclash/server/internal/v1/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Distributed per-room locks serialize mutations for the same room across
// instances. Acquisition is set-if-absent with a millisecond expiry;
// release and extension compare the holder id so one instance can never
// free or extend another's lock.

const (
	// lockAcquirePolls bounds how many times acquisition retries before
	// giving up; lockPollInterval spaces the polls.
	lockAcquirePolls = 3
	lockPollInterval = 50 * time.Millisecond
)

// ErrLockNotAcquired means the lock budget was spent without success; the
// caller must not mutate persisted room state.
var ErrLockNotAcquired = errors.New("distributed lock not acquired")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// AcquireRoomLock takes the cross-instance lock for a room. With no store
// configured, or the breaker open, the lock is granted locally: the local
// room lock already serializes this instance, and a degraded fleet favors
// availability.
func (m *Mirror) AcquireRoomLock(ctx context.Context, code types.RoomCode, holderID string, ttl time.Duration) error {
	if !m.Enabled() {
		return nil
	}

	key := m.gameLockKey(string(code))
	for attempt := 0; attempt < lockAcquirePolls; attempt++ {
		res, err := m.execute(func() (interface{}, error) {
			return m.client.SetNX(ctx, key, holderID, ttl).Result()
		})
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				return nil // degraded: grant locally
			}
			logging.Warn(ctx, "Lock acquisition error", zap.Error(err), zap.String("room_code", string(code)))
			return nil
		}
		if res.(bool) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
	return ErrLockNotAcquired
}

// ReleaseRoomLock frees the lock iff holderID still owns it.
func (m *Mirror) ReleaseRoomLock(ctx context.Context, code types.RoomCode, holderID string) {
	if !m.Enabled() {
		return
	}
	key := m.gameLockKey(string(code))
	_, err := m.execute(func() (interface{}, error) {
		return releaseScript.Run(ctx, m.client, []string{key}, holderID).Result()
	})
	if err != nil && !errors.Is(err, ErrUnavailable) {
		logging.Warn(ctx, "Lock release failed", zap.Error(err), zap.String("room_code", string(code)))
	}
}

// ExtendRoomLock pushes out the expiry iff holderID still owns the lock.
// Returns false when ownership was lost.
func (m *Mirror) ExtendRoomLock(ctx context.Context, code types.RoomCode, holderID string, ttl time.Duration) bool {
	if !m.Enabled() {
		return true
	}
	key := m.gameLockKey(string(code))
	res, err := m.execute(func() (interface{}, error) {
		return extendScript.Run(ctx, m.client, []string{key}, holderID, ttl.Milliseconds()).Result()
	})
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return true
		}
		logging.Warn(ctx, "Lock extension failed", zap.Error(err), zap.String("room_code", string(code)))
		return false
	}
	n, _ := res.(int64)
	return n == 1
}
