package round

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lexiclash/server/internal/v1/types"
)

func TestCoordinatorBarrierLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCoordinator(5 * time.Millisecond)
	defer c.Shutdown()

	ready := make(chan struct{})
	msgID := c.ArmBarrier("AB12", []types.ParticipantName{"alice"}, func() {
		close(ready)
	})
	require.NotEmpty(t, msgID)

	c.Ack("AB12", "alice", msgID)

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("barrier did not fire")
	}
}

func TestCoordinatorRearmCancelsPreviousBarrier(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCoordinator(5 * time.Millisecond)
	defer c.Shutdown()

	var firstFired atomic.Int32
	firstID := c.ArmBarrier("AB12", []types.ParticipantName{"alice"}, func() {
		firstFired.Add(1)
	})

	second := make(chan struct{})
	secondID := c.ArmBarrier("AB12", []types.ParticipantName{"alice"}, func() {
		close(second)
	})

	// The first barrier is dead; its message id no longer advances anything.
	c.Ack("AB12", "alice", firstID)
	assert.Equal(t, int32(0), firstFired.Load())

	c.Ack("AB12", "alice", secondID)
	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("second barrier did not fire")
	}
}

func TestCoordinatorEmptyBarrierStartsTimerSynchronously(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCoordinator(5 * time.Millisecond)
	defer c.Shutdown()

	// An empty expected set fires onReady inline; onReady re-entering the
	// coordinator must not deadlock.
	msgID := c.ArmBarrier("AB12", nil, func() {
		c.StartTimer("AB12", 100, nil, func() {})
	})

	require.NotEmpty(t, msgID)
	assert.Positive(t, c.Remaining("AB12"))
}

func TestCoordinatorTimerTicksAndExpires(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCoordinator(5 * time.Millisecond)
	defer c.Shutdown()

	var lastTick atomic.Int32
	expired := make(chan struct{})
	c.StartTimer("AB12", 3, func(left int) {
		lastTick.Store(int32(left))
	}, func() {
		close(expired)
	})

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("timer did not expire")
	}
	assert.Equal(t, int32(1), lastTick.Load())
	assert.Equal(t, 0, c.Remaining("AB12"))
}

func TestCoordinatorStopTimer(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCoordinator(5 * time.Millisecond)
	defer c.Shutdown()

	var expired atomic.Int32
	c.StartTimer("AB12", 100, nil, func() { expired.Add(1) })
	c.StopTimer("AB12")
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, int32(0), expired.Load())
}

func TestCoordinatorCancelRoom(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCoordinator(5 * time.Millisecond)
	defer c.Shutdown()

	var fired atomic.Int32
	c.StartTimer("AB12", 100, nil, func() { fired.Add(1) })
	c.ArmBarrier("AB12", []types.ParticipantName{"alice"}, func() { fired.Add(1) })

	c.CancelRoom("AB12")
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, 0, c.Remaining("AB12"))
}

func TestCoordinatorRemainingUnknownRoom(t *testing.T) {
	c := NewCoordinator(time.Second)
	assert.Equal(t, 0, c.Remaining("NOPE"))
}

func TestCoordinatorShutdownCancelsEverything(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCoordinator(5 * time.Millisecond)

	var fired atomic.Int32
	c.StartTimer("AB12", 100, nil, func() { fired.Add(1) })
	c.StartTimer("CD34", 100, nil, func() { fired.Add(1) })

	c.Shutdown()
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, int32(0), fired.Load())
}
