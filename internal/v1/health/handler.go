// Package health exposes the liveness, readiness, and scaling probes the
// deployment uses to route traffic and decide replica counts.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lexiclash/server/internal/v1/game"
	"github.com/lexiclash/server/internal/v1/logging"
	"github.com/lexiclash/server/internal/v1/persist"
	"github.com/lexiclash/server/internal/v1/types"
)

const dependencyCheckTimeout = 3 * time.Second

// Handler manages the health check endpoints.
type Handler struct {
	mirror *persist.Mirror
	store  *game.Store
}

// NewHandler creates a health handler over the room store and its mirror.
func NewHandler(mirror *persist.Mirror, store *game.Store) *Handler {
	return &Handler{mirror: mirror, store: store}
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// ScalingResponse reports whether this instance can participate in a
// multi-replica deployment. Without the mirror there is no cross-instance
// room handoff or distributed locking, so the instance must run alone.
type ScalingResponse struct {
	MultiInstanceCapable bool   `json:"multiInstanceCapable"`
	Persistence          string `json:"persistence"`
	DistributedLocking   string `json:"distributedLocking"`
	ActiveRooms          int    `json:"activeRooms"`
	Timestamp            string `json:"timestamp"`
}

// RoomMetrics is one row of the room occupancy report.
type RoomMetrics struct {
	Code         types.RoomCode  `json:"code"`
	State        types.GameState `json:"state"`
	Participants int             `json:"participants"`
	Spectators   int             `json:"spectators"`
	IsRanked     bool            `json:"isRanked"`
}

// RoomMetricsResponse is the body of GET /metrics/rooms.
type RoomMetricsResponse struct {
	TotalRooms int           `json:"totalRooms"`
	Rooms      []RoomMetrics `json:"rooms"`
	Timestamp  string        `json:"timestamp"`
}

// Liveness handles GET /health/live. Returns 200 if the process is alive,
// with no dependency checks.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /health/ready. Returns 503 when a critical
// dependency is unhealthy. A disabled mirror is healthy: the server runs
// single-instance without it.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), dependencyCheckTimeout)
	defer cancel()

	checks := map[string]string{
		"redis": h.checkRedis(ctx),
	}

	status := "ready"
	statusCode := http.StatusOK
	for _, v := range checks {
		if v != "healthy" && v != "disabled" {
			status = "unavailable"
			statusCode = http.StatusServiceUnavailable
		}
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Scaling handles GET /health/scaling. Orchestration reads this before
// adding replicas behind the load balancer.
func (h *Handler) Scaling(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), dependencyCheckTimeout)
	defer cancel()

	redisStatus := h.checkRedis(ctx)
	capable := redisStatus == "healthy"

	lockStatus := "unavailable"
	if capable {
		lockStatus = "available"
	}

	c.JSON(http.StatusOK, ScalingResponse{
		MultiInstanceCapable: capable,
		Persistence:          redisStatus,
		DistributedLocking:   lockStatus,
		ActiveRooms:          h.store.Len(),
		Timestamp:            time.Now().UTC().Format(time.RFC3339),
	})
}

// RoomMetricsHandler handles GET /metrics/rooms with a JSON occupancy
// report of this instance's rooms.
func (h *Handler) RoomMetricsHandler(c *gin.Context) {
	codes := h.store.Codes()
	rooms := make([]RoomMetrics, 0, len(codes))
	for _, code := range codes {
		r := h.store.Get(code)
		if r == nil {
			continue
		}
		r.Lock()
		row := RoomMetrics{
			Code:     r.Code,
			State:    r.State,
			IsRanked: r.IsRanked,
		}
		for _, rec := range r.Participants {
			if rec.Spectator {
				row.Spectators++
			} else {
				row.Participants++
			}
		}
		r.Unlock()
		rooms = append(rooms, row)
	}

	c.JSON(http.StatusOK, RoomMetricsResponse{
		TotalRooms: len(rooms),
		Rooms:      rooms,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) checkRedis(ctx context.Context) string {
	if !h.mirror.Enabled() {
		return "disabled"
	}
	if err := h.mirror.Ping(ctx); err != nil {
		logging.Error(ctx, "Redis health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}
