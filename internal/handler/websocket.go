package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/studenttracker/internal/model"
	"github.com/vyrodovalexey/studenttracker/internal/store"
)

// WebSocket configuration constants.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
	closeGrace     = 100 * time.Millisecond
)

// client is one connected list view.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	cancel context.CancelFunc
	// refreshed is set once a broadcast has been queued for the client.
	refreshed atomic.Bool
}

// WebSocketHandler pushes the list view to connected pages whenever the
// roster changes.
type WebSocketHandler struct {
	store    store.Store
	upgrader websocket.Upgrader
	logger   *zap.Logger
	mu       sync.RWMutex
	clients  map[*websocket.Conn]*client
}

// NewWebSocketHandler creates a new WebSocketHandler instance. The store
// provides the list sent to a page when it connects.
func NewWebSocketHandler(s store.Store, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		store: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger,
		clients: make(map[*websocket.Conn]*client),
	}
}

// RegisterRoutes registers the WebSocket routes with the router.
func (h *WebSocketHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", h.HandleWebSocket).Methods(http.MethodGet)
}

// HandleWebSocket upgrades the connection and sends the current list.
//
//nolint:contextcheck // WebSocket connections outlive the HTTP request context
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	// The request context ends when this handler returns.
	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		cancel: cancel,
	}

	// Register before reading the list so no refresh falls in between.
	h.mu.Lock()
	h.clients[conn] = c
	h.mu.Unlock()

	h.logger.Info("websocket client connected", zap.String("remote_addr", conn.RemoteAddr().String()))

	if entries, err := h.store.Entries(r.Context()); err == nil {
		h.sendSnapshot(c, entries)
	} else {
		h.logger.Warn("failed to read roster for new client", zap.Error(err))
	}

	go h.writePump(ctx, c)
	go h.readPump(ctx, c)
}

// Broadcast queues a list refresh for every connected page. It never
// blocks; a page whose queue is full is disconnected. It has the shape of
// store.ChangeListener.
func (h *WebSocketHandler) Broadcast(entries []string) {
	payload, err := json.Marshal(model.NewRosterUpdatedMessage(entries))
	if err != nil {
		h.logger.Error("failed to encode roster update", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		select {
		case c.send <- payload:
			c.refreshed.Store(true)
		default:
			h.logger.Warn("websocket client too slow, disconnecting",
				zap.String("remote_addr", c.conn.RemoteAddr().String()))
			c.cancel()
		}
	}
}

// ClientCount returns the number of connected pages.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sendSnapshot queues the list read when the client connected. A broadcast
// queued since registration carries a list at least as recent, so the
// snapshot is dropped rather than sent after it.
func (h *WebSocketHandler) sendSnapshot(c *client, entries []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.refreshed.Load() {
		return
	}
	h.enqueue(c, entries)
}

// enqueue queues a refresh for one client.
func (h *WebSocketHandler) enqueue(c *client, entries []string) {
	payload, err := json.Marshal(model.NewRosterUpdatedMessage(entries))
	if err != nil {
		h.logger.Error("failed to encode roster update", zap.Error(err))
		return
	}

	select {
	case c.send <- payload:
	default:
		c.cancel()
	}
}

// readPump drains incoming frames so that pongs and close frames are
// processed. Pages send nothing else.
func (h *WebSocketHandler) readPump(ctx context.Context, c *client) {
	defer func() {
		c.cancel()
		h.removeClient(c.conn)
		if err := c.conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Error("failed to set read deadline", zap.Error(err))
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Warn("websocket read error", zap.Error(err))
				}
				return
			}
			h.logger.Debug("received message", zap.ByteString("message", message))
		}
	}
}

// writePump writes queued refreshes and keeps the connection alive with
// pings.
func (h *WebSocketHandler) writePump(ctx context.Context, c *client) {
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.sendCloseMessage(c.conn)
			// Unblock readPump, which may be waiting in ReadMessage.
			if err := c.conn.Close(); err != nil {
				h.logger.Debug("error closing connection", zap.Error(err))
			}
			return
		case payload := <-c.send:
			if err := h.sendPayload(c.conn, payload); err != nil {
				h.logger.Debug("failed to send roster update", zap.Error(err))
				c.cancel()
				return
			}
		case <-pingTicker.C:
			if err := h.sendPing(c.conn); err != nil {
				h.logger.Debug("failed to send ping", zap.Error(err))
				c.cancel()
				return
			}
		}
	}
}

// sendPayload writes one text frame.
func (h *WebSocketHandler) sendPayload(conn *websocket.Conn, payload []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// sendPing sends a ping message to the connection.
func (h *WebSocketHandler) sendPing(conn *websocket.Conn) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.PingMessage, nil)
}

// sendCloseMessage sends a close message to the connection.
func (h *WebSocketHandler) sendCloseMessage(conn *websocket.Conn) {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		h.logger.Debug("failed to set write deadline for close", zap.Error(err))
		return
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down")
	if err := conn.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
		h.logger.Debug("failed to send close message", zap.Error(err))
	}
}

// removeClient removes a client from the clients map.
func (h *WebSocketHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, exists := h.clients[conn]; exists {
		c.cancel()
		delete(h.clients, conn)
		h.logger.Info("websocket client disconnected", zap.String("remote_addr", conn.RemoteAddr().String()))
	}
}

// CloseAllConnections closes all active WebSocket connections.
func (h *WebSocketHandler) CloseAllConnections() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	// Cancelling makes each writePump send a close frame.
	for _, c := range clients {
		c.cancel()
	}

	time.Sleep(closeGrace)

	h.mu.Lock()
	for conn := range h.clients {
		if err := conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
		delete(h.clients, conn)
	}
	h.mu.Unlock()

	h.logger.Info("all websocket connections closed")
}
