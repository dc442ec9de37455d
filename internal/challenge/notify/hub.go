// Package notify delivers challenge-solved notifications to scoreboard
// consumers: connected websocket clients and, optionally, a redis
// pub/sub channel for other instances.
package notify

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/challenge"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/logger"
)

// Hub broadcasts solve notifications to connected scoreboard clients.
type Hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	log      *logger.Logger
	upgrader websocket.Upgrader

	// writeMu serializes broadcasts: a websocket connection tolerates
	// only one writer, and solve transitions fan out from independent
	// goroutines.
	writeMu sync.Mutex
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		log:     log.WithComponent("scoreboard-hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Demo application, scoreboard is public anyway.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle upgrades the request and registers the client until it
// disconnects.
func (h *Hub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnw("Websocket upgrade failed", "error", err, "ip", c.ClientIP())
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	// Drain the read side so close frames are processed.
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// ChallengeSolved implements challenge.Notifier.
func (h *Hub) ChallengeSolved(n challenge.Notification) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for _, conn := range conns {
		if err := conn.WriteJSON(n); err != nil {
			h.log.Debugw("Dropping scoreboard client", "error", err)
			h.remove(conn)
		}
	}
}

// ClientCount reports connected scoreboard clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
