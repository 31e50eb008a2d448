package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/pump-controller/internal/models"
)

// Constants for WebSocket timeouts
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

// Hub streams status, progress and event messages to dashboard clients
type Hub struct {
	upgrader       websocket.Upgrader
	logger         zerolog.Logger
	allowedOrigins []string
	clients        map[*StreamClient]struct{}
	mutex          sync.RWMutex
}

// StreamClient represents one connected dashboard
type StreamClient struct {
	Remote      string
	ConnectedAt time.Time
	conn        *websocket.Conn
	send        chan *models.Message
}

// NewHub creates a new stream hub
func NewHub(logger zerolog.Logger, allowedOrigins ...string) *Hub {
	h := &Hub{
		logger:         logger,
		allowedOrigins: allowedOrigins,
		clients:        make(map[*StreamClient]struct{}),
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// checkOrigin validates the incoming request's Origin against the configured allowlist
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// No Origin header means same-origin request
	if origin == "" {
		return true
	}

	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}

	h.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: origin not in allowlist")
	return false
}

// Serve upgrades the connection, sends initial and then streams broadcasts
// until the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, initial *models.Message) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	client := &StreamClient{
		Remote:      conn.RemoteAddr().String(),
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan *models.Message, sendBuffer),
	}
	if initial != nil {
		client.send <- initial
	}

	h.mutex.Lock()
	h.clients[client] = struct{}{}
	h.mutex.Unlock()
	h.logger.Info().Str("remote", client.Remote).Msg("Stream client connected")

	go h.writePump(client)
	h.readPump(client)
}

// Broadcast queues msg for every client. Slow clients miss messages
// instead of blocking the caller.
func (h *Hub) Broadcast(msg *models.Message) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			h.logger.Warn().Str("remote", client.Remote).Str("type", string(msg.Type)).Msg("Stream client too slow, message dropped")
		}
	}
}

// Clients returns a snapshot of the connected clients
func (h *Hub) Clients() []StreamClient {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]StreamClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, StreamClient{Remote: c.Remote, ConnectedAt: c.ConnectedAt})
	}
	return clients
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for c := range h.clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		c.conn.Close()
	}
}

// readPump discards client frames; it exists to process pongs and notice
// disconnects.
func (h *Hub) readPump(c *StreamClient) {
	defer h.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *StreamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				h.logger.Debug().Err(err).Str("remote", c.Remote).Msg("Stream write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// remove unregisters a client and closes its send queue
func (h *Hub) remove(c *StreamClient) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	c.conn.Close()
	h.logger.Info().Str("remote", c.Remote).Msg("Stream client disconnected")
}
