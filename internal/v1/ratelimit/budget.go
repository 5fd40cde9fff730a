package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lexiclash/server/internal/v1/metrics"
	"github.com/lexiclash/server/internal/v1/types"
)

// Budget defaults. Each connection gets a shared token bucket; actions
// consume tokens according to their weight so a burst of cheap pings and
// a burst of submissions are priced differently.
const (
	budgetRefillPerSecond = 5
	budgetBurst           = 15
	defaultWeight         = 1
)

// Weights maps message actions to their token cost. Unlisted actions
// cost defaultWeight. A zero weight exempts the action entirely.
type Weights map[types.ActionName]int

// timeNow is swapped in tests to drive the bucket deterministically.
var timeNow = time.Now

// Budget is the per-connection message budget.
type Budget struct {
	mu      sync.Mutex
	bucket  *rate.Limiter
	weights Weights
}

// NewBudget creates a Budget with the given action weights.
func NewBudget(weights Weights) *Budget {
	return &Budget{
		bucket:  rate.NewLimiter(rate.Limit(budgetRefillPerSecond), budgetBurst),
		weights: weights,
	}
}

// Allow charges the action's weight against the bucket. Returns false
// when the connection has exhausted its budget.
func (b *Budget) Allow(action types.ActionName) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	weight, ok := b.weights[action]
	if !ok {
		weight = defaultWeight
	}
	if weight <= 0 {
		return true
	}

	if !b.bucket.AllowN(timeNow(), weight) {
		metrics.RateLimitExceeded.WithLabelValues("websocket_message", string(action)).Inc()
		return false
	}
	return true
}
