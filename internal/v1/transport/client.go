// Package transport owns the websocket edge: connection upgrades, the
// per-connection read and write pumps, and the Sender implementation the
// dispatcher broadcasts through.
package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lexiclash/server/internal/v1/logging"
	"github.com/lexiclash/server/internal/v1/types"
)

const (
	writeWait     = 10 * time.Second
	sendQueueSize = 256
	maxFrameBytes = 64 * 1024
)

// wsConnection is the subset of *websocket.Conn the client needs. Tests
// substitute a mock.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
}

// MessageHandler is the dispatcher-side contract of a connection.
type MessageHandler interface {
	HandleConnect(s types.Sender)
	Dispatch(ctx context.Context, connID types.ConnID, raw []byte)
	HandleDisconnect(connID types.ConnID)
}

// Client is one user's connection. Two goroutines per client: readPump
// feeds the dispatcher, writePump drains the buffered send queue. A full
// queue drops messages rather than blocking the room.
type Client struct {
	id      types.ConnID
	conn    wsConnection
	send    chan []byte
	done    chan struct{}
	handler MessageHandler
	once    sync.Once
}

// NewClient wraps an accepted connection.
func NewClient(id types.ConnID, conn wsConnection, handler MessageHandler) *Client {
	return &Client{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
		handler: handler,
	}
}

// ConnID returns the connection's opaque identifier.
func (c *Client) ConnID() types.ConnID { return c.id }

// Send queues an outbound envelope. Non-blocking: a slow consumer loses
// messages instead of stalling broadcasts.
func (c *Client) Send(event types.EventName, payload any) {
	data, err := json.Marshal(types.OutEnvelope{Event: event, Payload: payload})
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal outbound event",
			zap.String("event", string(event)), zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		logging.Warn(context.Background(), "Client send queue full, dropping message",
			zap.String("conn_id", string(c.id)), zap.String("event", string(event)))
	}
}

// CloseAfter disconnects the transport after delay, leaving time for
// already-queued messages to flush.
func (c *Client) CloseAfter(delay time.Duration) {
	time.AfterFunc(delay, c.close)
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Run starts the client's pumps. Blocks until the read side exits.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump feeds every inbound frame to the dispatcher. Exit triggers
// disconnect handling exactly once.
func (c *Client) readPump() {
	defer func() {
		c.handler.HandleDisconnect(c.id)
		c.close()
	}()

	c.conn.SetReadLimit(maxFrameBytes)
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.handler.Dispatch(context.Background(), c.id, data)
	}
}

func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		}
	}
}
