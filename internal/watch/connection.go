// Package watch follows a running monitor's live tick stream.
package watch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/worker-monitor/internal/models"
)

// ErrLoginFailed is returned when the monitor rejects the credentials.
var ErrLoginFailed = errors.New("login failed")

// ConnectionState represents the current state of the connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (cs ConnectionState) String() string {
	switch cs {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Handler receives every message pushed by the monitor
type Handler func(msg *models.Message)

// ConnectionConfig holds configuration for the connection
type ConnectionConfig struct {
	BaseURL              string // e.g. http://localhost:8081
	Username             string
	Password             string
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	ReadTimeout          time.Duration // no frame (ping included) within this closes the connection
}

// DefaultConnectionConfig returns reconnect and timeout defaults
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		ReconnectInterval:    time.Second,
		MaxReconnectInterval: 30 * time.Second,
		ReadTimeout:          90 * time.Second,
	}
}

// Connection logs in to a monitor and reads its websocket stream, reconnecting on loss
type Connection struct {
	baseURL  string
	username string
	password string
	handler  Handler
	http     *resty.Client
	logger   zerolog.Logger

	reconnectInterval        time.Duration
	maxReconnectInterval     time.Duration
	currentReconnectInterval time.Duration
	readTimeout              time.Duration

	conn       *websocket.Conn
	state      ConnectionState
	stateMutex sync.RWMutex
	received   int64
}

// NewConnection creates a new connection manager
func NewConnection(config ConnectionConfig, handler Handler, logger zerolog.Logger) *Connection {
	defaults := DefaultConnectionConfig()
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = defaults.ReconnectInterval
	}
	if config.MaxReconnectInterval < config.ReconnectInterval {
		config.MaxReconnectInterval = max(defaults.MaxReconnectInterval, config.ReconnectInterval)
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}

	return &Connection{
		baseURL:                  strings.TrimRight(config.BaseURL, "/"),
		username:                 config.Username,
		password:                 config.Password,
		handler:                  handler,
		http:                     resty.New().SetTimeout(10 * time.Second),
		logger:                   logger.With().Str("component", "watch").Logger(),
		reconnectInterval:        config.ReconnectInterval,
		maxReconnectInterval:     config.MaxReconnectInterval,
		currentReconnectInterval: config.ReconnectInterval,
		readTimeout:              config.ReadTimeout,
		state:                    StateDisconnected,
	}
}

func (c *Connection) setState(state ConnectionState) {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()
	c.state = state
	c.logger.Debug().Str("state", state.String()).Msg("Connection state updated")
}

// State returns the current connection state
func (c *Connection) State() ConnectionState {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.state
}

// Received returns how many messages have been delivered to the handler
func (c *Connection) Received() int64 {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.received
}

// login posts the credentials and returns the session cookies
func (c *Connection) login(ctx context.Context) ([]*http.Cookie, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"username": c.username, "password": c.password}).
		Post(c.baseURL + "/api/login")
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return nil, ErrLoginFailed
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrLoginFailed, resp.StatusCode())
	}
	return resp.Cookies(), nil
}

// streamURL maps the base URL to the websocket endpoint
func streamURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid monitor URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid monitor URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Connect logs in and opens the websocket stream
func (c *Connection) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	wsURL, err := streamURL(c.baseURL)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	cookies, err := c.login(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	header := http.Header{}
	for _, ck := range cookies {
		header.Add("Cookie", (&http.Cookie{Name: ck.Name, Value: ck.Value}).String())
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		c.setState(StateDisconnected)
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}
	resp.Body.Close()

	c.stateMutex.Lock()
	c.conn = conn
	c.stateMutex.Unlock()
	c.setState(StateConnected)
	c.currentReconnectInterval = c.reconnectInterval // reset backoff
	c.logger.Info().Str("url", wsURL).Msg("Connected to monitor")
	return nil
}

// Run streams messages with auto-reconnect. Blocks until ctx is cancelled.
// Rejected credentials end the loop since retrying cannot succeed.
func (c *Connection) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.Connect(ctx); err != nil {
			if errors.Is(err, ErrLoginFailed) {
				return err
			}
			c.logger.Warn().Err(err).Msg("Connection failed")
			c.waitBeforeReconnect(ctx)
			continue
		}

		c.readLoop(ctx)
		c.disconnect()

		c.logger.Info().Msg("Connection lost, will reconnect")
		c.waitBeforeReconnect(ctx)
	}
}

// waitBeforeReconnect waits before next reconnection attempt with exponential backoff
func (c *Connection) waitBeforeReconnect(ctx context.Context) {
	c.logger.Info().Dur("delay", c.currentReconnectInterval).Msg("Waiting before reconnect")
	select {
	case <-time.After(c.currentReconnectInterval):
	case <-ctx.Done():
		return
	}
	c.currentReconnectInterval *= 2
	if c.currentReconnectInterval > c.maxReconnectInterval {
		c.currentReconnectInterval = c.maxReconnectInterval
	}
}

// readLoop delivers messages until the connection fails or ctx is cancelled
func (c *Connection) readLoop(ctx context.Context) {
	c.stateMutex.RLock()
	conn := c.conn
	c.stateMutex.RUnlock()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		var msg models.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("Read error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.readTimeout))

		c.stateMutex.Lock()
		c.received++
		c.stateMutex.Unlock()

		if msg.Type == models.MessageTypeError {
			var errMsg models.ErrorMessage
			if err := msg.UnmarshalPayload(&errMsg); err == nil {
				c.logger.Warn().Str("code", errMsg.Code).Str("msg", errMsg.Message).Msg("Monitor error")
			}
		}
		if c.handler != nil {
			c.handler(&msg)
		}
	}
}

// disconnect closes the WebSocket connection
func (c *Connection) disconnect() {
	c.stateMutex.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	c.stateMutex.Unlock()
}

// Close sends a close frame and shuts the connection down
func (c *Connection) Close() error {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()

	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	return nil
}
