package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/tick_trader/internal/domain"
	"go.uber.org/zap"
)

const (
	hubWriteWait  = 10 * time.Second
	hubPongWait   = 60 * time.Second
	hubPingPeriod = hubPongWait * 9 / 10
	hubSendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type hubMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans notifications, ticks and status changes out to dashboard
// websocket clients. Slow clients are dropped rather than blocking the
// publisher.
type Hub struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*hubClient]struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*hubClient]struct{}),
	}
}

// Notify implements domain.Notifier.
func (h *Hub) Notify(n domain.Notification) {
	fields := []zap.Field{zap.String("level", string(n.Level)), zap.String("title", n.Title)}
	if n.Description != "" {
		fields = append(fields, zap.String("description", n.Description))
	}
	switch n.Level {
	case domain.LevelError:
		h.logger.Error("Notification", fields...)
	case domain.LevelWarning, domain.LevelAdvisory:
		h.logger.Warn("Notification", fields...)
	default:
		h.logger.Info("Notification", fields...)
	}
	h.broadcast("notification", n)
}

func (h *Hub) PublishTick(tick domain.Tick) {
	h.broadcast("tick", tick)
}

func (h *Hub) PublishStatus(status domain.ConnectionStatus) {
	h.broadcast("status", status)
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(kind string, data any) {
	msg, err := json.Marshal(hubMessage{Type: kind, Data: data})
	if err != nil {
		h.logger.Error("Failed to encode hub message", zap.String("type", kind), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("Dropping slow dashboard client")
			h.removeLocked(c)
		}
	}
}

func (h *Hub) removeLocked(c *hubClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// ServeWS upgrades the request and streams hub messages until the client
// goes away. Inbound frames are discarded.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WS upgrade failed", zap.Error(err))
		return
	}

	c := &hubClient{conn: conn, send: make(chan []byte, hubSendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *hubClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *hubClient) {
	ticker := time.NewTicker(hubPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ domain.Notifier = (*Hub)(nil)
