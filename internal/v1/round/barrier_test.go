package round

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lexiclash/server/internal/v1/types"
)

func TestBarrierFiresWhenAllAck(t *testing.T) {
	var fired atomic.Int32
	b := NewBarrier([]types.ParticipantName{"alice", "bob"}, time.Minute, func() {
		fired.Add(1)
	})

	assert.False(t, b.Ack("alice", b.MessageID))
	assert.Equal(t, int32(0), fired.Load())

	assert.True(t, b.Ack("bob", b.MessageID))
	assert.Equal(t, int32(1), fired.Load())
	assert.True(t, b.Completed())
}

func TestBarrierDuplicateAckDoesNotAdvance(t *testing.T) {
	var fired atomic.Int32
	b := NewBarrier([]types.ParticipantName{"alice", "bob"}, time.Minute, func() {
		fired.Add(1)
	})

	assert.False(t, b.Ack("alice", b.MessageID))
	assert.False(t, b.Ack("alice", b.MessageID))
	assert.Equal(t, 1, b.AckedCount())
	assert.Equal(t, int32(0), fired.Load())
}

func TestBarrierIgnoresWrongMessageID(t *testing.T) {
	b := NewBarrier([]types.ParticipantName{"alice"}, time.Minute, nil)

	assert.False(t, b.Ack("alice", "stale-id"))
	assert.False(t, b.Completed())
}

func TestBarrierIgnoresUnexpectedParticipant(t *testing.T) {
	b := NewBarrier([]types.ParticipantName{"alice"}, time.Minute, nil)

	assert.False(t, b.Ack("mallory", b.MessageID))
	assert.Equal(t, 0, b.AckedCount())
}

func TestBarrierDeadlineFires(t *testing.T) {
	fired := make(chan struct{})
	b := NewBarrier([]types.ParticipantName{"alice"}, 20*time.Millisecond, func() {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("deadline did not fire")
	}
	assert.True(t, b.Completed())

	// Late acks after the deadline are no-ops.
	assert.False(t, b.Ack("alice", b.MessageID))
}

func TestBarrierFiresOnceUnderDeadlineRace(t *testing.T) {
	var fired atomic.Int32
	b := NewBarrier([]types.ParticipantName{"alice"}, 10*time.Millisecond, func() {
		fired.Add(1)
	})

	b.Ack("alice", b.MessageID)
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, int32(1), fired.Load())
}

func TestBarrierEmptyExpectedCompletesImmediately(t *testing.T) {
	var fired atomic.Int32
	b := NewBarrier(nil, time.Minute, func() { fired.Add(1) })

	assert.True(t, b.Completed())
	assert.Equal(t, int32(1), fired.Load())
}

func TestBarrierCancel(t *testing.T) {
	var fired atomic.Int32
	b := NewBarrier([]types.ParticipantName{"alice"}, 10*time.Millisecond, func() {
		fired.Add(1)
	})

	b.Cancel()
	time.Sleep(30 * time.Millisecond)

	assert.True(t, b.Completed())
	assert.Equal(t, int32(0), fired.Load())
	assert.False(t, b.Ack("alice", b.MessageID))
}
