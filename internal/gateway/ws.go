// ABOUTME: WebSocket endpoint: upgrades clients, routes their requests, streams events.
// ABOUTME: Implements send_message, send_pdf and check_status with keep-alives around sends.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/blueriver/tars-gateway/internal/dispatch"
)

// recipientSuffix is appended to normalized targets to form the network's
// recipient address.
const recipientSuffix = "@s.whatsapp.net"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Gateway clients are not authenticated (trusted network).
		return true
	},
}

// requestEnvelope is one client request.
type requestEnvelope struct {
	ID   string          `json:"id"`
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// replyEnvelope is any server-to-client message: request results carry the
// request's id, broadcast events and keep-alives do not.
type replyEnvelope struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type sendMessageRequest struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

type sendPDFRequest struct {
	Number string `json:"number"`
}

type sendResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type statusResult struct {
	Connected bool   `json:"connected"`
	Status    string `json:"status"`
}

// handleWS upgrades the connection and serves the client until it leaves.
// Each connection gets its own write pump and broadcast subscription;
// request handling never blocks on another client's pending work.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	id := uuid.New().String()
	client := newClient(id, conn, g.logger.With("client_id", id))

	g.clients.Register(client)
	defer g.clients.Unregister(client.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go client.writePump(ctx)

	events, _ := g.bus.Subscribe(ctx)
	go client.forwardEvents(events)

	g.readLoop(ctx, client)
}

// readLoop consumes client requests until the connection drops. Each
// request runs in its own goroutine so a slow send never blocks the next
// read or another request's deadline.
func (g *Gateway) readLoop(ctx context.Context, c *Client) {
	_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		var req requestEnvelope
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				c.logger.Warn("client read failed", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readWait))

		go g.handleRequest(ctx, c, req)
	}
}

// handleRequest routes one client request. Every send_message/send_pdf call
// is answered exactly once on the requesting client's own channel.
func (g *Gateway) handleRequest(ctx context.Context, c *Client, req requestEnvelope) {
	switch req.Op {
	case "check_status":
		g.handleCheckStatus(ctx, c, req.ID)
	case "send_message":
		g.handleSendMessage(ctx, c, req)
	case "send_pdf":
		g.handleSendPDF(ctx, c, req)
	default:
		c.logger.Warn("unknown operation", "op", req.Op)
		c.enqueue(result(req.ID, sendResult{
			Success: false,
			Error:   wireError(fmt.Errorf("unknown operation %q", req.Op)),
		}))
	}
}

// handleCheckStatus answers from the session snapshot; it never touches the
// network and never blocks.
func (g *Gateway) handleCheckStatus(ctx context.Context, c *Client, id string) {
	res, err := g.queue.Do(ctx, &dispatch.Request{Kind: dispatch.KindCheckStatus})
	if err != nil {
		c.enqueue(result(id, sendResult{Success: false, Error: wireError(err)}))
		return
	}
	c.enqueue(result(id, statusResult{Connected: res.Connected, Status: res.Status}))
}

func (g *Gateway) handleSendMessage(ctx context.Context, c *Client, req requestEnvelope) {
	var body sendMessageRequest
	if err := json.Unmarshal(req.Data, &body); err != nil {
		c.enqueue(result(req.ID, sendResult{Success: false, Error: wireError(fmt.Errorf("invalid payload: %w", err))}))
		return
	}
	if body.Message == "" {
		c.enqueue(result(req.ID, sendResult{Success: false, Error: wireError(fmt.Errorf("empty message"))}))
		return
	}

	target, err := normalizeTarget(body.Number)
	if err != nil {
		c.enqueue(result(req.ID, sendResult{Success: false, Error: wireError(err)}))
		return
	}

	g.dispatchSend(ctx, c, req.ID, &dispatch.Request{
		Kind:   dispatch.KindSendText,
		Target: target,
		Body:   body.Message,
	}, "message sent")
}

func (g *Gateway) handleSendPDF(ctx context.Context, c *Client, req requestEnvelope) {
	var body sendPDFRequest
	if err := json.Unmarshal(req.Data, &body); err != nil {
		c.enqueue(result(req.ID, sendResult{Success: false, Error: wireError(fmt.Errorf("invalid payload: %w", err))}))
		return
	}

	target, err := normalizeTarget(body.Number)
	if err != nil {
		c.enqueue(result(req.ID, sendResult{Success: false, Error: wireError(err)}))
		return
	}

	// The asset must exist before dispatch begins; its absence is a
	// request-time error that never reaches the network layer.
	doc, err := g.loadAsset()
	if err != nil {
		c.logger.Warn("asset unavailable", "path", g.config.Assets.PDFPath, "error", err)
		c.enqueue(result(req.ID, sendResult{Success: false, Error: wireError(err)}))
		return
	}

	g.dispatchSend(ctx, c, req.ID, &dispatch.Request{
		Kind:     dispatch.KindSendDocument,
		Target:   target,
		Document: doc,
	}, "document sent")
}

// dispatchSend runs one send through the queue, emitting keep-alives to the
// requesting client before and after so a slow operation does not look like
// a dead connection.
func (g *Gateway) dispatchSend(ctx context.Context, c *Client, id string, dreq *dispatch.Request, okMessage string) {
	c.enqueue(keepAlive())
	_, err := g.queue.Do(ctx, dreq)
	c.enqueue(keepAlive())

	if err != nil {
		c.enqueue(result(id, sendResult{Success: false, Error: wireError(err)}))
		return
	}
	c.enqueue(result(id, sendResult{Success: true, Message: okMessage}))
}

// loadAsset resolves the pre-provisioned PDF relative to the application
// directory and reads it for dispatch.
func (g *Gateway) loadAsset() (*dispatch.Document, error) {
	path := g.config.Assets.PDFPath

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrAssetMissing
		}
		return nil, fmt.Errorf("stat asset: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading asset: %w", err)
	}

	return &dispatch.Document{
		Filename: filepath.Base(path),
		MimeType: "application/pdf",
		Data:     data,
	}, nil
}

// normalizeTarget strips every non-digit character and appends the
// network's recipient suffix.
func normalizeTarget(number string) (string, error) {
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("target %q contains no digits", number)
	}
	return b.String() + recipientSuffix, nil
}

func result(id string, data any) replyEnvelope {
	return replyEnvelope{
		Type:      "result",
		ID:        id,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

func keepAlive() replyEnvelope {
	return replyEnvelope{
		Type:      "keep_alive",
		Timestamp: time.Now().UnixMilli(),
	}
}
