package round

import (
	"sync"
	"time"
)

// Ticker drives the 1 Hz countdown for one room's round. onTick fires each
// interval with the remaining seconds; onExpired fires once at zero.
// Stop is idempotent and cancels any pending fire.
type Ticker struct {
	mu        sync.Mutex
	interval  time.Duration
	left      int
	cancel    chan struct{}
	onTick    func(remaining int)
	onExpired func()
}

// NewTicker creates a stopped ticker.
func NewTicker(interval time.Duration, onTick func(int), onExpired func()) *Ticker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Ticker{
		interval:  interval,
		onTick:    onTick,
		onExpired: onExpired,
	}
}

// Start begins the countdown from seconds. A running countdown is replaced,
// so at most one driver is active per ticker.
func (t *Ticker) Start(seconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	if seconds <= 0 {
		return
	}
	t.left = seconds
	t.cancel = make(chan struct{})
	go t.run(t.cancel)
}

// Stop cancels the countdown without firing onExpired.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Ticker) stopLocked() {
	if t.cancel != nil {
		close(t.cancel)
		t.cancel = nil
	}
}

// Remaining returns the seconds left.
func (t *Ticker) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.left
}

func (t *Ticker) run(cancel chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.cancel != cancel {
				// Replaced by a newer countdown.
				t.mu.Unlock()
				return
			}
			t.left--
			left := t.left
			if left <= 0 {
				t.cancel = nil
				t.mu.Unlock()
				if t.onExpired != nil {
					t.onExpired()
				}
				return
			}
			t.mu.Unlock()
			if t.onTick != nil {
				t.onTick(left)
			}
		}
	}
}
