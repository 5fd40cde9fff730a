package round

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lexiclash/server/internal/v1/types"
)

// Barrier is the acknowledgment gate between a host's startGame broadcast
// and the first tick. The round begins when all expected participants have
// acknowledged the message id, or when the deadline elapses, whichever
// comes first. onReady fires exactly once.
type Barrier struct {
	mu        sync.Mutex
	MessageID string
	expected  map[types.ParticipantName]struct{}
	acked     map[types.ParticipantName]struct{}
	deadline  *time.Timer
	completed bool
	onReady   func()
}

// NewBarrier arms a barrier for the expected participant set. A nil or
// empty expected set completes immediately.
func NewBarrier(expected []types.ParticipantName, deadline time.Duration, onReady func()) *Barrier {
	b := &Barrier{
		MessageID: uuid.NewString(),
		expected:  make(map[types.ParticipantName]struct{}, len(expected)),
		acked:     make(map[types.ParticipantName]struct{}),
		onReady:   onReady,
	}
	for _, name := range expected {
		b.expected[name] = struct{}{}
	}

	if len(b.expected) == 0 {
		b.completed = true
		if onReady != nil {
			onReady()
		}
		return b
	}

	b.deadline = time.AfterFunc(deadline, func() {
		b.mu.Lock()
		fire := b.completeLocked()
		b.mu.Unlock()
		if fire && b.onReady != nil {
			b.onReady()
		}
	})
	return b
}

// Ack records an acknowledgment. A duplicate ack for the same messageId,
// an unknown messageId, or an unexpected participant never advances the
// barrier. Returns true when this ack completed the barrier.
func (b *Barrier) Ack(name types.ParticipantName, messageID string) bool {
	b.mu.Lock()
	if b.completed || messageID != b.MessageID {
		b.mu.Unlock()
		return false
	}
	if _, expected := b.expected[name]; !expected {
		b.mu.Unlock()
		return false
	}
	if _, dup := b.acked[name]; dup {
		b.mu.Unlock()
		return false
	}
	b.acked[name] = struct{}{}

	if len(b.acked) < len(b.expected) {
		b.mu.Unlock()
		return false
	}
	fire := b.completeLocked()
	b.mu.Unlock()

	if fire && b.onReady != nil {
		b.onReady()
	}
	return fire
}

// Cancel disarms the barrier without firing onReady.
func (b *Barrier) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completed = true
	if b.deadline != nil {
		b.deadline.Stop()
		b.deadline = nil
	}
}

// Completed reports whether the barrier has fired or been cancelled.
func (b *Barrier) Completed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completed
}

// AckedCount returns how many expected participants have acknowledged.
func (b *Barrier) AckedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.acked)
}

// completeLocked flips the barrier to done. Returns true exactly once.
func (b *Barrier) completeLocked() bool {
	if b.completed {
		return false
	}
	b.completed = true
	if b.deadline != nil {
		b.deadline.Stop()
		b.deadline = nil
	}
	return true
}
