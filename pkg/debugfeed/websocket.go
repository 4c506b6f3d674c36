// Package debugfeed streams encoded debug frames to network clients over
// WebSocket, QUIC and WebTransport, and serves a small HTTP inspection API.
package debugfeed

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/QYUbit/revolute/pkg/axlog"
	"github.com/QYUbit/revolute/pkg/codec"
	"github.com/QYUbit/revolute/pkg/render"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	queueSize  = 64
)

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// WebSocketHub fans frames out to every connected WebSocket client. A client
// whose queue is full is dropped rather than allowed to stall the engine.
type WebSocketHub struct {
	upgrader websocket.Upgrader
	logger   axlog.Logger

	clients map[string]*wsClient
	mu      sync.RWMutex
	closed  atomic.Bool
}

func NewWebSocketHub(logger axlog.Logger) *WebSocketHub {
	if logger == nil {
		logger = axlog.Nop()
	}
	return &WebSocketHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger.With("feed", "websocket"),
		clients: make(map[string]*wsClient),
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, ErrFeedClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, queueSize),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.logger.Info("client connected", "client", c.id, "remote", conn.RemoteAddr().String())

	go h.writePump(c)
	go h.readPump(c)
}

func (h *WebSocketHub) Publish(f render.Frame) {
	data, err := codec.EncodeFrame(f)
	if err != nil {
		h.logger.Error("encode frame", "frame", f.Number, "err", err)
		return
	}
	h.Broadcast(data)
}

// Broadcast queues data for every client without blocking.
func (h *WebSocketHub) Broadcast(data []byte) {
	var slow []*wsClient

	h.mu.RLock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow client", "client", c.id)
		h.remove(c)
	}
}

func (h *WebSocketHub) Clients() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

func (h *WebSocketHub) remove(c *wsClient) {
	h.mu.Lock()
	if h.clients[c.id] == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()

	c.once.Do(func() {
		close(c.send)
	})
}

// readPump only watches for the peer going away; clients send nothing.
func (h *WebSocketHub) readPump(c *wsClient) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.logger.Debug("client disconnected", "client", c.id, "err", err)
			return
		}
	}
}

func (h *WebSocketHub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				h.logger.Debug("write failed", "client", c.id, "err", err)
				h.remove(c)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// Close disconnects every client. The hub rejects new connections afterwards.
func (h *WebSocketHub) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return ErrFeedClosed
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.remove(c)
	}
	return nil
}
