package rpcserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/PBH-BTN/pbh-adapter-deluge/internal/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait   = 10 * time.Second
	sendBacklog = 16
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub fans update messages out to every connected websocket.
type Hub struct {
	upgrader  websocket.Upgrader
	keepalive time.Duration

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func NewHub(keepalive time.Duration) *Hub {
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		keepalive: keepalive,
		clients:   make(map[*wsClient]struct{}),
	}
}

// ServeWS upgrades the request and keeps the connection until it fails.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("[update] Websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, sendBacklog)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	zap.L().Info("[update] Websocket client connected",
		zap.String("remote", r.RemoteAddr),
		zap.Int("clients", count),
	)

	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if present {
		c.close()
		zap.L().Info("[update] Websocket client disconnected")
	}
}

// readLoop only exists to process pongs and notice a closed peer.
func (h *Hub) readLoop(c *wsClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(2 * h.keepalive))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(2 * h.keepalive))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Warn("[update] Read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(h.keepalive)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				zap.L().Warn("[update] Failed to write update", zap.Error(err))
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				zap.L().Warn("[update] Failed to send ping, closing connection", zap.Error(err))
				h.remove(c)
				return
			}
		}
	}
}

// Broadcast queues update for every client. A client whose backlog is full
// misses the update.
func (h *Hub) Broadcast(updateType string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		zap.L().Error("Failed to marshal update data", zap.String("type", updateType), zap.Error(err))
		return
	}
	msg, err := json.Marshal(types.Update{Type: updateType, Data: raw})
	if err != nil {
		zap.L().Error("Failed to marshal update", zap.String("type", updateType), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			zap.L().Warn("[update] Client backlog full, dropping update", zap.String("type", updateType))
		}
	}
}

// Clients returns the number of connected websockets.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}
