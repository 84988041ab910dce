package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub tracks live websocket connections per user. The hub lock guards the
// subscriber map only; each client serializes its own writes since a
// websocket.Conn allows one concurrent writer.
type Hub struct {
	mu          sync.Mutex
	subscribers map[uuid.UUID][]*client
	logger      *slog.Logger
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *client) control(messageType int, data []byte, wait time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(messageType, data, time.Now().Add(wait))
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[uuid.UUID][]*client),
		logger:      logger,
	}
}

// Serve registers conn for userID and blocks until the client disconnects.
func (h *Hub) Serve(userID uuid.UUID, conn *websocket.Conn) {
	c := &client{conn: conn}
	h.mu.Lock()
	h.subscribers[userID] = append(h.subscribers[userID], c)
	h.mu.Unlock()

	done := make(chan struct{})
	go h.ping(c, done)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(done)
	h.remove(userID, c)
	_ = conn.Close() //nolint
}

func (h *Hub) ping(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.control(websocket.PingMessage, nil, writeWait); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(userID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.subscribers[userID]
	kept := make([]*client, 0, len(clients))
	for _, other := range clients {
		if other != c {
			kept = append(kept, other)
		}
	}
	if len(kept) == 0 {
		delete(h.subscribers, userID)
		return
	}
	h.subscribers[userID] = kept
}

// Push writes payload to every connection of userID and returns how many
// received it. Connections that fail are closed and dropped.
func (h *Hub) Push(userID uuid.UUID, payload []byte) int {
	h.mu.Lock()
	clients := append([]*client(nil), h.subscribers[userID]...)
	h.mu.Unlock()

	delivered := 0
	for _, c := range clients {
		if err := c.write(payload); err != nil {
			h.logger.Debug("dropping websocket connection", "user_id", userID, "error", err)
			h.remove(userID, c)
			_ = c.conn.Close() //nolint
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[userID])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	var clients []*client
	for userID, conns := range h.subscribers {
		clients = append(clients, conns...)
		delete(h.subscribers, userID)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.control(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Second) //nolint
		_ = c.conn.Close() //nolint
	}
}
