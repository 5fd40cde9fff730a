package transport

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lexiclash/server/internal/v1/config"
	"github.com/lexiclash/server/internal/v1/logging"
	"github.com/lexiclash/server/internal/v1/ratelimit"
	"github.com/lexiclash/server/internal/v1/types"
)

// Handler accepts websocket upgrades and hands connections to the
// dispatcher.
type Handler struct {
	cfg     *config.Config
	handler MessageHandler
	limiter *ratelimit.RateLimiter
}

// NewHandler builds the websocket accept handler.
func NewHandler(cfg *config.Config, handler MessageHandler, limiter *ratelimit.RateLimiter) *Handler {
	return &Handler{cfg: cfg, handler: handler, limiter: limiter}
}

// ServeWs upgrades an HTTP request to a websocket connection and starts
// the client's pumps. Origin checking uses the configured CORS origins;
// non-browser clients (no Origin header) are allowed.
func (h *Handler) ServeWs(c *gin.Context) {
	if h.limiter != nil && !h.limiter.CheckWebSocket(c) {
		return
	}

	// An identified client carries its own connect budget on top of the
	// per-IP one.
	if authID := c.Query("authId"); authID != "" && h.limiter != nil {
		if err := h.limiter.CheckWebSocketUser(c.Request.Context(), authID); err != nil {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connections"})
			return
		}
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: h.checkOrigin,
		WriteBufferPool: &sync.Pool{
			New: func() any {
				return make([]byte, 4096)
			},
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to upgrade connection", zap.Error(err))
		return
	}

	client := NewClient(types.ConnID(uuid.NewString()), conn, h.handler)
	h.handler.HandleConnect(client)
	logging.Debug(c.Request.Context(), "Connection accepted",
		zap.String("conn_id", string(client.ConnID())), zap.String("remote", c.ClientIP()))

	go client.Run()
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.cfg.CORSOrigins {
		if allowed == "*" {
			return true
		}
		allowedURL, parseErr := url.Parse(allowed)
		if parseErr != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return true
		}
	}
	return false
}
