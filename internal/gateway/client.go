// ABOUTME: Represents one connected gateway client and its outbound write pump.
// ABOUTME: Registry tracks all live clients for readiness and shutdown.

package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blueriver/tars-gateway/internal/broadcast"
)

const (
	// outBufferSize is the per-client outbound queue.
	outBufferSize = 64

	writeWait    = 10 * time.Second
	readWait     = 60 * time.Second
	pingInterval = 54 * time.Second
)

// Client is one connected gateway subscriber. All writes to its connection
// go through the out channel so request replies, broadcasts and pings never
// interleave on the wire.
type Client struct {
	ID string

	conn      *websocket.Conn
	out       chan replyEnvelope
	logger    *slog.Logger
	closeOnce sync.Once
}

func newClient(id string, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		ID:     id,
		conn:   conn,
		out:    make(chan replyEnvelope, outBufferSize),
		logger: logger,
	}
}

// enqueue queues a message for delivery. Non-blocking: a client that cannot
// keep up loses the message rather than stalling the sender.
func (c *Client) enqueue(msg replyEnvelope) {
	select {
	case c.out <- msg:
	default:
		c.logger.Warn("client send buffer full, dropping message", "type", msg.Type)
	}
}

// writePump serializes all connection writes until ctx is cancelled,
// keeping the connection alive with periodic pings.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug("write failed", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// forwardEvents pushes broadcast events to this client until the
// subscription channel closes.
func (c *Client) forwardEvents(events <-chan broadcast.Event) {
	for ev := range events {
		c.enqueue(replyEnvelope{
			Type:      ev.Topic,
			Data:      ev.Payload,
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

// close tears down the underlying connection. Safe to call more than once.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// Registry tracks all connected gateway clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register adds a client.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[c.ID] = c
	r.logger.Info("client connected", "client_id", c.ID, "total_clients", len(r.clients))
}

// Unregister removes a client and closes its connection.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, exists := r.clients[id]; exists {
		delete(r.clients, id)
		c.close()
		r.logger.Info("client disconnected", "client_id", id, "total_clients", len(r.clients))
	}
}

// Count returns the number of connected clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes every client connection. Used during shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, c := range r.clients {
		c.close()
		delete(r.clients, id)
	}
}
