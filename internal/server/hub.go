package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/worker-monitor/internal/models"
	"github.com/afroash/worker-monitor/internal/monitor"
)

// Constants for WebSocket timeouts
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 16
)

// Hub pushes every cycle result to connected dashboards
type Hub struct {
	upgrader       websocket.Upgrader
	gate           *Gate
	logger         zerolog.Logger
	allowedOrigins []string

	mutex   sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn        *websocket.Conn
	send        chan *models.Message
	connectedAt time.Time
}

// NewHub creates a new WebSocket hub
func NewHub(gate *Gate, logger zerolog.Logger, allowedOrigins ...string) *Hub {
	h := &Hub{
		gate:           gate,
		logger:         logger.With().Str("component", "hub").Logger(),
		allowedOrigins: allowedOrigins,
		clients:        make(map[*client]struct{}),
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
	// Browsers send Origin on same-origin upgrades too
	if origin == "http://"+r.Host || origin == "https://"+r.Host {
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

// ServeHTTP upgrades an authenticated dashboard connection
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.gate.Authenticated(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	c := &client{
		conn:        conn,
		send:        make(chan *models.Message, clientSendSize),
		connectedAt: time.Now(),
	}
	h.mutex.Lock()
	h.clients[c] = struct{}{}
	h.mutex.Unlock()
	h.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("Dashboard connected")

	go h.writePump(c)
	h.readPump(c)
}

// readPump keeps the read deadline alive and detects disconnects.
// Dashboards do not send anything meaningful.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)

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

func (h *Hub) writePump(c *client) {
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
				h.logger.Warn().Err(err).Msg("Failed to push message")
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

// remove unregisters a client and closes its send channel
func (h *Hub) remove(c *client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Info().Dur("connected_for", time.Since(c.connectedAt)).Msg("Dashboard disconnected")
}

// Present broadcasts a cycle result. Slow clients miss messages rather than block the cycle.
func (h *Hub) Present(ctx context.Context, result monitor.TickResult) {
	msg, err := resultMessage(result)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create message")
		return
	}
	h.broadcast(msg)
}

func (h *Hub) broadcast(msg *models.Message) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug().Str("remote", c.conn.RemoteAddr().String()).Msg("Client send buffer full, dropping message")
		}
	}
}

// ClientCount returns the number of connected dashboards
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Close disconnects all dashboards
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func resultMessage(result monitor.TickResult) (*models.Message, error) {
	if !result.OK() {
		return models.NewMessage(models.MessageTypeFetchFailure, models.FetchFailureMessage{
			SubjectID:           result.SubjectID,
			Error:               result.Err.Error(),
			ConsecutiveFailures: result.Status.ConsecutiveFailures,
			Stale:               result.Status.Status == monitor.StatusStale,
			WindowSize:          len(result.Window),
		})
	}
	return models.NewMessage(models.MessageTypeTick, models.TickMessage{
		SubjectID:  result.SubjectID,
		Reading:    result.Reading,
		Alerts:     result.Alerts,
		WindowSize: len(result.Window),
	})
}
