package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oshokin/shake-couplet/internal/content"
	"github.com/oshokin/shake-couplet/internal/domain/motion"
	"github.com/oshokin/shake-couplet/internal/logger"
	"github.com/oshokin/shake-couplet/internal/shake"
)

// writeTimeout bounds every write to a browser.
const writeTimeout = 200 * time.Millisecond

// Message types exchanged with the page.
const (
	TypeMotion = "motion"
	TypeShake  = "shake"
)

// Inbound is a message sent by the page.
type Inbound struct {
	Type string `json:"type"`
	motion.Sample
}

// Outbound is a shake announcement sent to the page.
type Outbound struct {
	Type    string          `json:"type"`
	Event   motion.Event    `json:"event"`
	Couplet content.Couplet `json:"couplet"`
}

// client serializes writes to one connection; gorilla allows a single writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	return c.conn.WriteMessage(messageType, data)
}

// Hub tracks connected pages. Every page feeds its own detector stream, so
// samples of two phones are never compared with each other.
type Hub struct {
	ctx     context.Context //nolint:containedctx // Scopes logging of broadcasts.
	streams shake.StreamOpener
	rand    content.Intn

	mu      sync.Mutex
	clients map[*websocket.Conn]*client

	samples atomic.Uint64
	shakes  atomic.Uint64
}

// NewHub creates a hub opening one stream per page on streams. rand may be nil.
func NewHub(ctx context.Context, streams shake.StreamOpener, rand content.Intn) *Hub {
	return &Hub{
		ctx:     logger.WithName(ctx, "ws"),
		streams: streams,
		rand:    rand,
		clients: make(map[*websocket.Conn]*client),
	}
}

// Clients returns the number of connected pages.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Stats returns the number of samples evaluated and shakes broadcast.
func (h *Hub) Stats() (samples, shakes uint64) {
	return h.samples.Load(), h.shakes.Load()
}

// Follow broadcasts every event until the channel is closed. It runs on its
// own goroutine so a slow page never holds up the detector.
func (h *Hub) Follow(events <-chan motion.Event) {
	for event := range events {
		h.Broadcast(event)
	}
}

// Broadcast sends event with a random couplet. Pages that cannot keep up are dropped.
func (h *Hub) Broadcast(event motion.Event) {
	data, err := json.Marshal(Outbound{
		Type:    TypeShake,
		Event:   event,
		Couplet: content.Pick(h.rand),
	})
	if err != nil {
		logger.ErrorKV(h.ctx, "Failed to encode shake message", "error", err)
		return
	}

	h.shakes.Add(1)

	for _, c := range h.snapshot() {
		if err = c.write(websocket.TextMessage, data); err != nil {
			logger.DebugKV(h.ctx, "Dropping unresponsive page", "remote", c.conn.RemoteAddr().String(), "error", err)

			_ = c.conn.Close()
			h.remove(c.conn)
		}
	}
}

// Close disconnects every page.
func (h *Hub) Close() {
	for _, c := range h.snapshot() {
		_ = c.write(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = c.conn.Close()
		h.remove(c.conn)
	}
}

// serve owns conn until the page disconnects.
func (h *Hub) serve(conn *websocket.Conn) {
	h.add(conn)

	defer func() {
		h.remove(conn)
		_ = conn.Close()
	}()

	remote := conn.RemoteAddr().String()
	ctx := logger.WithKV(h.ctx, "remote", remote)
	logger.Debug(ctx, "Page connected")

	stream := h.streams.OpenStream("ws " + remote)
	defer stream.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.DebugKV(ctx, "Page disconnected", "error", err)
			return
		}

		var msg Inbound
		if err = json.Unmarshal(data, &msg); err != nil {
			logger.DebugKV(ctx, "Ignoring malformed page message", "error", err)
			continue
		}

		if msg.Type != TypeMotion {
			continue
		}

		stream.HandleMotion(msg.Sample)
		h.samples.Add(1)
	}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[conn] = &client{conn: conn}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, conn)
}

func (h *Hub) snapshot() []*client {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}

	return clients
}
