package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the realtime word-game core.
//
// Naming convention: namespace_subsystem_name
// - namespace: lexiclash (application-level grouping)
// - subsystem: websocket, room, word, redis (feature-level grouping)
//
// Metric Types:
// - Gauge: current state (connections, rooms, participants)
// - Counter: cumulative events (words submitted, rate limits hit)
// - Histogram: latency distributions (handler processing time)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lexiclash",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of active rooms
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lexiclash",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomParticipants tracks the number of participants in each room
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "lexiclash",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants in each room",
	}, []string{"room_code"})

	// WordsSubmitted counts word submissions by outcome (accepted, rejected, duplicate, ...)
	WordsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lexiclash",
		Subsystem: "word",
		Name:      "submissions_total",
		Help:      "Total word submissions processed, labeled by outcome",
	}, []string{"outcome"})

	// MessageProcessingDuration tracks the time spent in dispatcher handlers
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lexiclash",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent processing inbound messages",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"action"})

	// RateLimitExceeded counts messages dropped by rate limiting
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lexiclash",
		Subsystem: "websocket",
		Name:      "rate_limit_exceeded_total",
		Help:      "Messages or connections dropped by rate limiting",
	}, []string{"scope", "kind"})

	// CircuitBreakerState reports the persistence circuit breaker state (0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "lexiclash",
		Subsystem: "redis",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state: 0=closed, 1=open, 2=half-open",
	}, []string{"target"})

	// PersistenceFailures counts writes that exhausted their retry budget
	PersistenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lexiclash",
		Subsystem: "redis",
		Name:      "persistence_failures_total",
		Help:      "Persistence operations that failed after all retries",
	}, []string{"op"})

	// SchedulerLag reports the observed timer drift of the background lag probe
	SchedulerLag = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lexiclash",
		Subsystem: "runtime",
		Name:      "scheduler_lag_seconds",
		Help:      "Observed drift between scheduled and actual timer wakeup",
	})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
