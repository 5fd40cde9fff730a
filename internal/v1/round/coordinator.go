// Package round owns the per-room countdown timer and the game-start
// acknowledgment barrier. At most one tick driver and one barrier exist
// per room at any time.
package round

import (
	"sync"
	"time"

	"github.com/lexiclash/server/internal/v1/types"
)

// startAckDeadline is how long the barrier waits for client acks before
// starting the round anyway.
const startAckDeadline = 3 * time.Second

// Coordinator tracks tickers and barriers for every active room.
type Coordinator struct {
	mu           sync.Mutex
	tickInterval time.Duration
	tickers      map[types.RoomCode]*Ticker
	barriers     map[types.RoomCode]*Barrier
}

// NewCoordinator creates a Coordinator whose tickers fire at tickInterval.
func NewCoordinator(tickInterval time.Duration) *Coordinator {
	return &Coordinator{
		tickInterval: tickInterval,
		tickers:      make(map[types.RoomCode]*Ticker),
		barriers:     make(map[types.RoomCode]*Barrier),
	}
}

// ArmBarrier installs a fresh start barrier for the room, cancelling any
// previous one, and returns its message id for the startGame broadcast.
// The barrier is built outside the coordinator lock: an empty expected set
// fires onReady synchronously, and onReady typically calls StartTimer.
func (c *Coordinator) ArmBarrier(code types.RoomCode, expected []types.ParticipantName, onReady func()) string {
	c.mu.Lock()
	if old, ok := c.barriers[code]; ok {
		old.Cancel()
		delete(c.barriers, code)
	}
	c.mu.Unlock()

	b := NewBarrier(expected, startAckDeadline, onReady)

	c.mu.Lock()
	c.barriers[code] = b
	c.mu.Unlock()
	return b.MessageID
}

// Ack forwards a startGameAck to the room's barrier, if one is armed.
func (c *Coordinator) Ack(code types.RoomCode, name types.ParticipantName, messageID string) {
	c.mu.Lock()
	b, ok := c.barriers[code]
	c.mu.Unlock()
	if ok {
		b.Ack(name, messageID)
	}
}

// StartTimer begins the room's countdown, replacing any running one so at
// most one tick driver is active per room.
func (c *Coordinator) StartTimer(code types.RoomCode, seconds int, onTick func(int), onExpired func()) {
	c.mu.Lock()
	if old, ok := c.tickers[code]; ok {
		old.Stop()
	}
	t := NewTicker(c.tickInterval, onTick, onExpired)
	c.tickers[code] = t
	c.mu.Unlock()
	t.Start(seconds)
}

// StopTimer cancels the room's countdown without firing onExpired.
func (c *Coordinator) StopTimer(code types.RoomCode) {
	c.mu.Lock()
	t, ok := c.tickers[code]
	c.mu.Unlock()
	if ok {
		t.Stop()
	}
}

// Remaining returns the seconds left on the room's countdown, or 0.
func (c *Coordinator) Remaining(code types.RoomCode) int {
	c.mu.Lock()
	t, ok := c.tickers[code]
	c.mu.Unlock()
	if !ok {
		return 0
	}
	return t.Remaining()
}

// CancelRoom tears down the room's ticker and barrier. Called on room
// destruction and reset.
func (c *Coordinator) CancelRoom(code types.RoomCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tickers[code]; ok {
		t.Stop()
		delete(c.tickers, code)
	}
	if b, ok := c.barriers[code]; ok {
		b.Cancel()
		delete(c.barriers, code)
	}
}

// Shutdown cancels every ticker and barrier.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for code, t := range c.tickers {
		t.Stop()
		delete(c.tickers, code)
	}
	for code, b := range c.barriers {
		b.Cancel()
		delete(c.barriers, code)
	}
}
