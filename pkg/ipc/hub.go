package ipc

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/odvcencio/overseer/pkg/observability"
)

// Event is one message on the bridge's event stream.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Event stream message types.
const (
	EventTypeSnapshot = "state.snapshot"
	EventTypeSignal   = "signal"
)

const (
	clientSendBuffer = 64
	writeTimeout     = 10 * time.Second
	pingInterval     = 54 * time.Second
	pongWait         = 70 * time.Second
)

// Hub fans events out to connected WebSocket clients. Slow clients are
// dropped rather than ever blocking the engine.
type Hub struct {
	logger *observability.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

// NewHub constructs an empty hub.
func NewHub(logger *observability.Logger) *Hub {
	return &Hub{
		logger:  logger.WithComponent("ipc.hub"),
		clients: make(map[*wsClient]struct{}),
	}
}

// Broadcast enqueues an event for every connected client. A client whose
// buffer is full is disconnected.
func (h *Hub) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for c := range h.clients {
		if !c.enqueue(event) {
			metricWSDropped.Inc()
			h.logger.Warn("event stream client too slow, dropping", "remote", c.remote)
			go h.remove(c)
		}
	}
	metricEventsBroadcast.Inc()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects future registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	metricWSClients.Set(0)
}

func (h *Hub) register(conn *websocket.Conn, remote string) *wsClient {
	c := &wsClient{
		conn:   conn,
		remote: remote,
		send:   make(chan Event, clientSendBuffer),
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(c.send)
		return nil
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	metricWSClients.Set(float64(count))
	return c
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	metricWSClients.Set(float64(count))
}

// wsClient is one connected event-stream consumer.
type wsClient struct {
	conn   *websocket.Conn
	remote string
	send   chan Event

	// writeMu serializes writes between the write loop and control frames.
	writeMu sync.Mutex
}

// enqueue offers the event without blocking. False means the client's
// buffer is full.
func (c *wsClient) enqueue(event Event) bool {
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// writeLoop drains the send channel to the socket and keeps the
// connection alive with pings. Returns when the channel closes or a
// write fails.
func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				c.writeControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server closing"))
				return
			}
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.conn.WriteJSON(event)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-ticker.C:
			if err := c.writeControl(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) writeControl(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}
