// Package persist mirrors room and tournament aggregates to a shared Redis
// so any instance in the fleet can reconstruct state after a restart or
// serve a client that reconnected elsewhere.
//
// Every call degrades gracefully: with no Redis configured, or with the
// circuit breaker open, operations succeed as no-ops and locks are granted
// locally. The in-memory room store stays the source of truth for the
// current instance; callers never fail because of persistence.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/lexiclash/server/internal/v1/game"
	"github.com/lexiclash/server/internal/v1/logging"
	"github.com/lexiclash/server/internal/v1/metrics"
	"github.com/lexiclash/server/internal/v1/types"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	// writeRetries is the retry budget for critical writes.
	writeRetries = 3
	// retryBaseDelay is doubled per attempt, capped at retryMaxDelay.
	retryBaseDelay = 50 * time.Millisecond
	retryMaxDelay  = 1 * time.Second
	// ttlJitterFraction spreads expiries ±10% to avoid synchronized
	// eviction across rooms.
	ttlJitterFraction = 0.10
	// scanBatch bounds each SCAN page; scanMaxKeys bounds the whole walk.
	scanBatch   = 100
	scanMaxKeys = 10_000
)

// ErrUnavailable is returned by read paths when the store cannot answer.
// Write paths never return it; they degrade to no-ops.
var ErrUnavailable = errors.New("persistence unavailable")

// Options configures the mirror.
type Options struct {
	Prefix         string
	GameTTL        time.Duration
	TournamentTTL  time.Duration
	LeaderboardTTL time.Duration
}

// Mirror is the write-through, degradable copy of room state.
type Mirror struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
	prefix string
	opts   Options

	// fieldHashes caches a hash per (key, field) so unchanged hash subkeys
	// are skipped on save.
	hashMu      sync.Mutex
	fieldHashes map[string]map[string]uint64

	// scriptingDown is set when the server rejects EVAL; the optimistic
	// WATCH path is used instead.
	scriptMu      sync.Mutex
	scriptingDown bool
}

// NewMirror connects to Redis at addr. An empty addr yields a degraded
// mirror whose every call is a successful no-op.
func NewMirror(addr, password string, opts Options) (*Mirror, error) {
	m := &Mirror{
		prefix:      opts.Prefix,
		opts:        opts,
		fieldHashes: make(map[string]map[string]uint64),
	}
	if m.prefix == "" {
		m.prefix = "lexiclash"
	}

	if addr == "" {
		logging.Warn(context.Background(), "Persistence disabled (no Redis address); running with local state only")
		return m, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	m.client = rdb
	m.cb = gobreaker.NewCircuitBreaker(st)
	logging.Info(context.Background(), "Connected to Redis persistence mirror", zap.String("addr", addr))
	return m, nil
}

// Enabled reports whether a backing store is configured.
func (m *Mirror) Enabled() bool { return m != nil && m.client != nil }

// Client exposes the underlying connection for collaborators that keep
// their own keyspace, such as the rate limiter store. Nil when disabled.
func (m *Mirror) Client() *redis.Client {
	if m == nil {
		return nil
	}
	return m.client
}

// Ping checks store connectivity. Used by health checks.
func (m *Mirror) Ping(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}
	_, err := m.cb.Execute(func() (interface{}, error) {
		return nil, m.client.Ping(ctx).Err()
	})
	return err
}

// Close shuts down the store connection.
func (m *Mirror) Close() error {
	if !m.Enabled() {
		return nil
	}
	return m.client.Close()
}

// execute runs fn through the circuit breaker, translating an open breaker
// into graceful degradation.
func (m *Mirror) execute(fn func() (interface{}, error)) (interface{}, error) {
	res, err := m.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrUnavailable
		}
		return nil, err
	}
	return res, nil
}

// jitteredTTL returns ttl ± ttlJitterFraction.
func jitteredTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	spread := float64(ttl) * ttlJitterFraction
	delta := (rand.Float64()*2 - 1) * spread
	return ttl + time.Duration(delta)
}

// retryWrite runs op with exponential backoff. The final error is returned
// after the budget is spent so the caller can log and degrade.
func retryWrite(ctx context.Context, op func() error) error {
	delay := retryBaseDelay
	var err error
	for attempt := 0; attempt <= writeRetries; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if errors.Is(err, ErrUnavailable) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
	return err
}

// SaveRoom writes the snapshot as hash fields under the room's key. Only
// fields whose content hash changed since the last save are written.
// Failures are logged and absorbed, then reported back so callers can
// surface the degradation; the instance continues with local truth.
func (m *Mirror) SaveRoom(ctx context.Context, code types.RoomCode, snap *game.Snapshot) error {
	if !m.Enabled() {
		return nil
	}

	fields, err := snapshotFields(snap)
	if err != nil {
		logging.Error(ctx, "Failed to encode room snapshot", zap.Error(err), zap.String("room_code", string(code)))
		return err
	}

	key := m.gameKey(string(code))
	changed := m.changedFields(key, fields)
	if len(changed) == 0 {
		// Content unchanged; still refresh the TTL so live rooms don't expire.
		m.refreshTTL(ctx, key, m.opts.GameTTL)
		return nil
	}

	err = retryWrite(ctx, func() error {
		_, execErr := m.execute(func() (interface{}, error) {
			pipe := m.client.TxPipeline()
			pipe.HSet(ctx, key, changed)
			pipe.Expire(ctx, key, jitteredTTL(m.opts.GameTTL))
			_, pipeErr := pipe.Exec(ctx)
			return nil, pipeErr
		})
		return execErr
	})
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("saveRoom").Inc()
		logging.Warn(ctx, "Room snapshot write failed after retries; continuing with local state",
			zap.Error(err), zap.String("room_code", string(code)))
		m.forgetHashes(key)
		return err
	}
	m.rememberHashes(key, fields)
	return nil
}

// LoadRoom reads a snapshot back. Returns (nil, nil) when the room does
// not exist and ErrUnavailable when the store cannot answer.
func (m *Mirror) LoadRoom(ctx context.Context, code types.RoomCode) (*game.Snapshot, error) {
	if !m.Enabled() {
		return nil, nil
	}

	res, err := m.execute(func() (interface{}, error) {
		return m.client.HGetAll(ctx, m.gameKey(string(code))).Result()
	})
	if err != nil {
		return nil, err
	}

	raw := res.(map[string]string)
	if len(raw) == 0 {
		return nil, nil
	}
	return snapshotFromFields(raw)
}

// DeleteRoom removes the room's key.
func (m *Mirror) DeleteRoom(ctx context.Context, code types.RoomCode) {
	if !m.Enabled() {
		return
	}
	key := m.gameKey(string(code))
	m.forgetHashes(key)
	_, err := m.execute(func() (interface{}, error) {
		return nil, m.client.Del(ctx, key).Err()
	})
	if err != nil {
		logging.Warn(ctx, "Room delete failed", zap.Error(err), zap.String("room_code", string(code)))
	}
}

// ListRoomCodes scans the keyspace with cursor iteration bounded at
// scanMaxKeys to avoid unbounded walks.
func (m *Mirror) ListRoomCodes(ctx context.Context) ([]types.RoomCode, error) {
	keys, err := m.scan(ctx, m.gameScanPattern())
	if err != nil {
		return nil, err
	}
	out := make([]types.RoomCode, 0, len(keys))
	prefixLen := len(m.gameKey(""))
	for _, k := range keys {
		if len(k) > prefixLen {
			out = append(out, types.RoomCode(k[prefixLen:]))
		}
	}
	return out, nil
}

func (m *Mirror) scan(ctx context.Context, pattern string) ([]string, error) {
	if !m.Enabled() {
		return nil, nil
	}

	res, err := m.execute(func() (interface{}, error) {
		var keys []string
		var cursor uint64
		for {
			page, next, scanErr := m.client.Scan(ctx, cursor, pattern, scanBatch).Result()
			if scanErr != nil {
				return nil, scanErr
			}
			keys = append(keys, page...)
			if len(keys) >= scanMaxKeys {
				logging.Warn(ctx, "Keyspace scan truncated at bound", zap.String("pattern", pattern), zap.Int("max", scanMaxKeys))
				break
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]string), nil
}

func (m *Mirror) refreshTTL(ctx context.Context, key string, ttl time.Duration) {
	_, err := m.execute(func() (interface{}, error) {
		return nil, m.client.Expire(ctx, key, jitteredTTL(ttl)).Err()
	})
	if err != nil && !errors.Is(err, ErrUnavailable) {
		logging.Debug(ctx, "TTL refresh failed", zap.Error(err), zap.String("key", key))
	}
}

// --- per-field change hashing ---

func snapshotFields(snap *game.Snapshot) (map[string]string, error) {
	// Marshal the snapshot once, then split into top-level fields so each
	// becomes one hash subkey.
	blob, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(blob, &top); err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(top))
	for k, v := range top {
		fields[k] = string(v)
	}
	return fields, nil
}

func snapshotFromFields(raw map[string]string) (*game.Snapshot, error) {
	top := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		top[k] = json.RawMessage(v)
	}
	blob, err := json.Marshal(top)
	if err != nil {
		return nil, err
	}
	var snap game.Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return nil, fmt.Errorf("corrupt room snapshot: %w", err)
	}
	return &snap, nil
}

func hashField(v string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(v))
	return h.Sum64()
}

// changedFields returns the subset of fields whose hash differs from the
// cached value, as the flat argument list HSet expects.
func (m *Mirror) changedFields(key string, fields map[string]string) map[string]interface{} {
	m.hashMu.Lock()
	defer m.hashMu.Unlock()

	cached := m.fieldHashes[key]
	changed := make(map[string]interface{})
	for f, v := range fields {
		if cached == nil || cached[f] != hashField(v) {
			changed[f] = v
		}
	}
	return changed
}

func (m *Mirror) rememberHashes(key string, fields map[string]string) {
	m.hashMu.Lock()
	defer m.hashMu.Unlock()
	hashes := make(map[string]uint64, len(fields))
	for f, v := range fields {
		hashes[f] = hashField(v)
	}
	m.fieldHashes[key] = hashes
}

func (m *Mirror) forgetHashes(key string) {
	m.hashMu.Lock()
	defer m.hashMu.Unlock()
	delete(m.fieldHashes, key)
}

// --- tournaments ---

// SaveTournament persists an arbitrary JSON-able aggregate under the
// tournament keyspace.
func (m *Mirror) SaveTournament(ctx context.Context, id string, aggregate any) {
	if !m.Enabled() {
		return
	}
	blob, err := json.Marshal(aggregate)
	if err != nil {
		logging.Error(ctx, "Failed to encode tournament", zap.Error(err), zap.String("tournament_id", id))
		return
	}
	key := m.tournamentKey(id)
	err = retryWrite(ctx, func() error {
		_, execErr := m.execute(func() (interface{}, error) {
			return nil, m.client.Set(ctx, key, blob, jitteredTTL(m.opts.TournamentTTL)).Err()
		})
		return execErr
	})
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("saveTournament").Inc()
		logging.Warn(ctx, "Tournament write failed after retries", zap.Error(err), zap.String("tournament_id", id))
	}
}

// LoadTournament reads a tournament aggregate into out. Returns false when
// absent or unavailable.
func (m *Mirror) LoadTournament(ctx context.Context, id string, out any) (bool, error) {
	if !m.Enabled() {
		return false, nil
	}
	res, err := m.execute(func() (interface{}, error) {
		return m.client.Get(ctx, m.tournamentKey(id)).Result()
	})
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(res.(string)), out); err != nil {
		return false, fmt.Errorf("corrupt tournament aggregate: %w", err)
	}
	return true, nil
}

// DeleteTournament removes the tournament key.
func (m *Mirror) DeleteTournament(ctx context.Context, id string) {
	if !m.Enabled() {
		return
	}
	_, err := m.execute(func() (interface{}, error) {
		return nil, m.client.Del(ctx, m.tournamentKey(id)).Err()
	})
	if err != nil {
		logging.Warn(ctx, "Tournament delete failed", zap.Error(err), zap.String("tournament_id", id))
	}
}

// ListTournamentIDs scans tournament keys with the same bounded cursor walk.
func (m *Mirror) ListTournamentIDs(ctx context.Context) ([]string, error) {
	keys, err := m.scan(ctx, m.tournamentScanPattern())
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	prefixLen := len(m.tournamentKey(""))
	for _, k := range keys {
		if len(k) > prefixLen {
			out = append(out, k[prefixLen:])
		}
	}
	return out, nil
}
