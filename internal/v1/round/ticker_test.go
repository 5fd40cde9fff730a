package round

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestTickerCountsDownAndExpires(t *testing.T) {
	defer goleak.VerifyNone(t)

	var ticks atomic.Int32
	expired := make(chan struct{})
	tk := NewTicker(5*time.Millisecond, func(left int) {
		ticks.Add(1)
	}, func() {
		close(expired)
	})

	tk.Start(3)

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("ticker did not expire")
	}
	// 3 seconds of countdown: ticks at 2 and 1, expiry at 0.
	assert.Equal(t, int32(2), ticks.Load())
	assert.Equal(t, 0, tk.Remaining())
}

func TestTickerStopPreventsExpiry(t *testing.T) {
	defer goleak.VerifyNone(t)

	var expired atomic.Int32
	tk := NewTicker(5*time.Millisecond, nil, func() { expired.Add(1) })

	tk.Start(100)
	time.Sleep(20 * time.Millisecond)
	tk.Stop()
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, int32(0), expired.Load())
}

func TestTickerStopIdempotent(t *testing.T) {
	tk := NewTicker(5*time.Millisecond, nil, nil)
	tk.Start(10)
	tk.Stop()
	tk.Stop()
}

func TestTickerRestartReplacesCountdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	expired := make(chan struct{})
	tk := NewTicker(5*time.Millisecond, nil, func() { close(expired) })

	tk.Start(100)
	tk.Start(2)

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("replacement countdown did not expire")
	}
}

func TestTickerZeroSecondsNoOp(t *testing.T) {
	defer goleak.VerifyNone(t)

	var expired atomic.Int32
	tk := NewTicker(5*time.Millisecond, nil, func() { expired.Add(1) })

	tk.Start(0)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(0), expired.Load())
}
