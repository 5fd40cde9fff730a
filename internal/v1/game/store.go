package game

import (
	"context"
	"sync"
	"time"

	"github.com/lexiclash/server/internal/v1/logging"
	"github.com/lexiclash/server/internal/v1/metrics"
	"github.com/lexiclash/server/internal/v1/types"
	"go.uber.org/zap"
)

const (
	// sweepEmptyInterval is how often the sweeper looks for empty idle rooms.
	sweepEmptyInterval = 1 * time.Minute
	// sweepStaleInterval is how often the sweeper looks for stale rooms.
	sweepStaleInterval = 10 * time.Minute
	// emptyIdleThreshold is how long an empty room may linger.
	emptyIdleThreshold = 5 * time.Minute
	// staleThreshold is how long any room may go without activity.
	staleThreshold = 2 * time.Hour
)

// Store is the in-memory room registry. The store-level lock covers only
// insert, remove, and lookup; each Room carries its own mutation lock.
type Store struct {
	mu    sync.RWMutex
	rooms map[types.RoomCode]*Room

	// onRemove lets the owner tear down registry entries and persistence
	// for swept rooms.
	onRemove func(code types.RoomCode, r *Room)

	done     chan struct{}
	stopOnce sync.Once
}

// NewStore creates an empty Store. onRemove may be nil.
func NewStore(onRemove func(types.RoomCode, *Room)) *Store {
	return &Store{
		rooms:    make(map[types.RoomCode]*Room),
		onRemove: onRemove,
		done:     make(chan struct{}),
	}
}

// Get returns the room for code, or nil.
func (s *Store) Get(code types.RoomCode) *Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[code]
}

// Put inserts a room. Returns false when the code is already taken.
func (s *Store) Put(r *Room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[r.Code]; exists {
		return false
	}
	s.rooms[r.Code] = r
	metrics.ActiveRooms.Inc()
	return true
}

// Replace installs a room unconditionally. Used by restart repopulation.
func (s *Store) Replace(r *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[r.Code]; !exists {
		metrics.ActiveRooms.Inc()
	}
	s.rooms[r.Code] = r
}

// Remove deletes a room and cancels its timers. Safe to call twice.
func (s *Store) Remove(code types.RoomCode) *Room {
	s.mu.Lock()
	r, exists := s.rooms[code]
	if exists {
		delete(s.rooms, code)
	}
	s.mu.Unlock()

	if !exists {
		return nil
	}

	r.Lock()
	r.CancelTimers()
	r.Unlock()

	metrics.ActiveRooms.Dec()
	metrics.RoomParticipants.DeleteLabelValues(string(code))
	return r
}

// Codes returns a snapshot of all room codes.
func (s *Store) Codes() []types.RoomCode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.RoomCode, 0, len(s.rooms))
	for code := range s.rooms {
		out = append(out, code)
	}
	return out
}

// Len returns the number of rooms.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// StartSweeper launches the two-cadence background sweep: empty rooms past
// the idle threshold on a short interval, stale rooms on a long one.
func (s *Store) StartSweeper(ctx context.Context) {
	go s.sweepLoop(ctx, sweepEmptyInterval, s.sweepEmpty)
	go s.sweepLoop(ctx, sweepStaleInterval, s.sweepStale)
}

// StopSweeper halts both sweep loops.
func (s *Store) StopSweeper() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *Store) sweepLoop(ctx context.Context, interval time.Duration, sweep func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			sweep(ctx)
		}
	}
}

func (s *Store) sweepEmpty(ctx context.Context) {
	now := time.Now()
	for _, code := range s.Codes() {
		r := s.Get(code)
		if r == nil {
			continue
		}
		r.Lock()
		expired := r.IsEmpty() && now.Sub(r.LastActivityAt) > emptyIdleThreshold
		r.Unlock()
		if expired {
			s.removeSwept(ctx, code, "empty past idle threshold")
		}
	}
}

func (s *Store) sweepStale(ctx context.Context) {
	now := time.Now()
	for _, code := range s.Codes() {
		r := s.Get(code)
		if r == nil {
			continue
		}
		r.Lock()
		expired := now.Sub(r.LastActivityAt) > staleThreshold
		r.Unlock()
		if expired {
			s.removeSwept(ctx, code, "stale")
		}
	}
}

func (s *Store) removeSwept(ctx context.Context, code types.RoomCode, reason string) {
	r := s.Remove(code)
	if r == nil {
		return
	}
	logging.Info(ctx, "Sweeper removed room", zap.String("room_code", string(code)), zap.String("reason", reason))
	if s.onRemove != nil {
		s.onRemove(code, r)
	}
}
