package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/askiada/molsim/pkg/wire"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

// Hub is the push channel. A connection subscribes to a session with a JSON-RPC "session" notification and
// receives a "session_update" notification every time the session changes.
type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.Mutex
	clients map[*client]string
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub returns a hub accepting connections from any origin.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:   logger,
		clients:  map[*client]string{},
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")

		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.add(c) {
		_ = conn.Close()

		return
	}

	go c.writeLoop()
	h.readLoop(c)
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[c] = ""

	return true
}

func (h *Hub) readLoop(c *client) {
	defer h.remove(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var n wire.Notification
		if err := sonic.Unmarshal(data, &n); err != nil || n.Method != wire.MethodSession || n.Params.SessionID == "" {
			h.logger.Debug().Str("message", string(data)).Msg("ignored push message")

			continue
		}

		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			h.clients[c] = n.Params.SessionID
		}
		h.mu.Unlock()

		h.logger.Debug().Str("run_id", n.Params.SessionID).Msg("push subscription")
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	_ = c.conn.Close()
}

func (c *client) writeLoop() {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			_ = c.conn.Close()

			return
		}
	}
}

// Notify sends a session_update notification to the subscribers of sessionID. A subscriber that does not keep
// up misses the notification.
func (h *Hub) Notify(sessionID string) {
	msg, err := sonic.Marshal(wire.NewNotification(wire.MethodSessionUpdate, sessionID))
	if err != nil {
		h.logger.Error().Err(err).Msg("unable to encode notification")

		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c, id := range h.clients {
		if id != sessionID {
			continue
		}

		select {
		case c.send <- msg:
		default:
			h.logger.Warn().Str("run_id", sessionID).Msg("push subscriber too slow, notification dropped")
		}
	}
}

// Subscribers returns the number of connections subscribed to sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, id := range h.clients {
		if id == sessionID {
			n++
		}
	}

	return n
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		_ = c.conn.Close()
	}
}
