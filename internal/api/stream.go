package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mridulgoel03/ETF-trading-project/internal/basket"
)

const (
	streamWriteWait  = 10 * time.Second
	streamSendBuffer = 256
)

// StreamMessage is the wire envelope for one event pushed to subscribers
type StreamMessage struct {
	Type      string `json:"type"`      // Event type discriminator
	EventID   string `json:"event_id"`  // Unique event ID
	IndexID   string `json:"index_id"`  // Originating index
	Sequence  int64  `json:"sequence"`  // Per-index event sequence
	Timestamp int64  `json:"timestamp"` // Simulation time of the event
	Payload   any    `json:"payload"`   // Full event body
}

// Hub broadcasts engine events to websocket subscribers. The engine worker
// publishes synchronously, so Publish never blocks: subscribers that cannot
// keep up are dropped.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *logrus.Logger

	mu      sync.Mutex
	clients map[*streamClient]bool
}

type streamClient struct {
	conn *websocket.Conn
	send chan StreamMessage
}

// NewHub creates a websocket hub
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*streamClient]bool),
	}
}

// Publish implements the engine event sink.
func (h *Hub) Publish(indexID string, events []basket.Event) {
	if len(events) == 0 {
		return
	}
	messages := make([]StreamMessage, 0, len(events))
	for _, event := range events {
		messages = append(messages, StreamMessage{
			Type:      event.EventType(),
			EventID:   event.EventID(),
			IndexID:   event.IndexID(),
			Sequence:  event.Sequence(),
			Timestamp: event.Timestamp(),
			Payload:   event,
		})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if !client.enqueue(messages) {
			h.logger.WithField("buffered", len(client.send)).Warn("dropping slow stream subscriber")
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// HandleStream handles GET /v1/stream
func (h *Hub) HandleStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := &streamClient{
		conn: conn,
		send: make(chan StreamMessage, streamSendBuffer),
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	go h.writeLoop(client)
	h.readLoop(client)
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) writeLoop(client *streamClient) {
	defer client.conn.Close()
	for msg := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := client.conn.WriteJSON(msg); err != nil {
			h.drop(client)
			return
		}
	}
}

// readLoop consumes control frames until the peer disconnects. Inbound data
// frames are ignored; the stream is one-way.
func (h *Hub) readLoop(client *streamClient) {
	defer h.drop(client)
	client.conn.SetReadLimit(512)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// drop removes the client if it is still registered. The send channel closes
// exactly once, under the hub lock.
func (h *Hub) drop(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// enqueue buffers messages without blocking; false means the buffer is full.
func (cl *streamClient) enqueue(messages []StreamMessage) bool {
	for _, msg := range messages {
		select {
		case cl.send <- msg:
		default:
			return false
		}
	}
	return true
}
