// Package client follows a running controller's websocket stream.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/pump-controller/internal/models"
)

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

// Handler receives every message read from the stream.
type Handler func(msg *models.Message)

// Watcher keeps a connection to /api/stream open, reconnecting with
// exponential backoff.
type Watcher struct {
	URL string

	handler                  Handler
	logger                   zerolog.Logger
	reconnectInterval        time.Duration
	maxReconnectInterval     time.Duration
	currentReconnectInterval time.Duration
	readTimeout              time.Duration

	stateMutex sync.RWMutex
	state      ConnectionState
	conn       *websocket.Conn
}

// WatcherConfig holds configuration for the watcher
type WatcherConfig struct {
	URL                  string
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	// ReadTimeout bounds the silence between frames, pings included
	ReadTimeout time.Duration
}

// NewWatcher creates a new stream watcher
func NewWatcher(config WatcherConfig, handler Handler, logger zerolog.Logger) *Watcher {
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = time.Second
	}
	if config.MaxReconnectInterval < config.ReconnectInterval {
		config.MaxReconnectInterval = 30 * time.Second
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 90 * time.Second
	}
	return &Watcher{
		URL:                      config.URL,
		handler:                  handler,
		logger:                   logger,
		reconnectInterval:        config.ReconnectInterval,
		maxReconnectInterval:     config.MaxReconnectInterval,
		currentReconnectInterval: config.ReconnectInterval,
		readTimeout:              config.ReadTimeout,
		state:                    StateDisconnected,
	}
}

func (w *Watcher) setState(state ConnectionState) {
	w.stateMutex.Lock()
	defer w.stateMutex.Unlock()
	w.state = state
	w.logger.Debug().Str("state", state.String()).Msg("Connection state updated")
}

// State returns the current connection state
func (w *Watcher) State() ConnectionState {
	w.stateMutex.RLock()
	defer w.stateMutex.RUnlock()
	return w.state
}

// Connect dials the stream once
func (w *Watcher) Connect(ctx context.Context) error {
	w.setState(StateConnecting)
	w.logger.Info().Str("url", w.URL).Msg("Connecting to controller...")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, w.URL, nil)
	if err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("dial failed: %w", err)
	}
	resp.Body.Close()

	w.stateMutex.Lock()
	w.conn = conn
	w.stateMutex.Unlock()

	w.setState(StateConnected)
	w.currentReconnectInterval = w.reconnectInterval // reset backoff
	return nil
}

// Run reads the stream until ctx is cancelled, reconnecting as needed
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := w.Connect(ctx); err != nil {
			w.logger.Warn().Err(err).Msg("Connection failed")
			w.waitBeforeReconnect(ctx)
			continue
		}

		w.readLoop(ctx)
		w.disconnect()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.Info().Msg("Connection lost, will reconnect")
		w.waitBeforeReconnect(ctx)
	}
}

// waitBeforeReconnect waits before next reconnection attempt with exponential backoff
func (w *Watcher) waitBeforeReconnect(ctx context.Context) {
	w.logger.Info().Dur("delay", w.currentReconnectInterval).Msg("Waiting before reconnect")
	select {
	case <-time.After(w.currentReconnectInterval):
	case <-ctx.Done():
		return
	}
	w.currentReconnectInterval *= 2
	if w.currentReconnectInterval > w.maxReconnectInterval {
		w.currentReconnectInterval = w.maxReconnectInterval
	}
}

func (w *Watcher) readLoop(ctx context.Context) {
	w.stateMutex.RLock()
	conn := w.conn
	w.stateMutex.RUnlock()

	// unblock ReadJSON on cancellation
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			conn.Close()
		case <-stop:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(w.readTimeout))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(w.readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	for {
		var msg models.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				w.logger.Warn().Err(err).Msg("Read error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(w.readTimeout))
		w.handleMessage(&msg)
	}
}

func (w *Watcher) handleMessage(msg *models.Message) {
	if msg.Type == models.MessageTypeError {
		var errMsg models.ErrorMessage
		if err := msg.UnmarshalPayload(&errMsg); err == nil {
			w.logger.Warn().Str("code", errMsg.Code).Str("msg", errMsg.Message).Msg("Controller error")
		}
	}
	if w.handler != nil {
		w.handler(msg)
	}
}

// disconnect closes the WebSocket connection
func (w *Watcher) disconnect() {
	w.stateMutex.Lock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.state = StateDisconnected
	w.stateMutex.Unlock()
	w.logger.Info().Msg("Connection disconnected")
}
