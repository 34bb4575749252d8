package streaming

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/phenomenon0/tablecast/pkg/league"
)

// State represents the subscriber connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SubscriberHandlers contains callback functions for subscriber events.
type SubscriberHandlers struct {
	OnConnect     func()
	OnDisconnect  func(err error)
	OnEvent       func(Event)
	OnError       func(err error)
	OnStateChange func(old, new State)
}

// SubscriberConfig holds subscriber configuration.
type SubscriberConfig struct {
	// URL is the hub's WebSocket endpoint
	URL string

	// Initial filter, re-sent after every reconnect. Empty means the
	// server default (every event type, every league).
	Events  []EventType
	Leagues []league.League

	// Reconnect settings
	ReconnectEnabled     bool
	ReconnectMinDelay    time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectMaxAttempts int // 0 = unlimited

	// Heartbeat and timeouts
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration

	// Decoded event buffer
	EventBuffer int
}

// DefaultSubscriberConfig returns a config with sensible defaults.
func DefaultSubscriberConfig(url string) SubscriberConfig {
	return SubscriberConfig{
		URL:                  url,
		ReconnectEnabled:     true,
		ReconnectMinDelay:    1 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		ReconnectMaxAttempts: 0, // unlimited
		HeartbeatInterval:    30 * time.Second,
		WriteTimeout:         10 * time.Second,
		ReadTimeout:          90 * time.Second,
		EventBuffer:          100,
	}
}

// Subscriber is a hub client with automatic reconnection. Decoded events
// arrive on Events(); the subscription filter is re-sent after every
// reconnect.
type Subscriber struct {
	config   SubscriberConfig
	handlers SubscriberHandlers

	conn   *websocket.Conn
	connMu sync.RWMutex
	state  int32 // atomic State

	events    chan Event
	closeCh   chan struct{}
	closeOnce sync.Once

	filterMu sync.RWMutex

	reconnectAttempts int
	lastError         error
	lastErrorMu       sync.RWMutex
}

type subscribeFrame struct {
	Type    string   `json:"type"`
	Events  []string `json:"events,omitempty"`
	Leagues []string `json:"leagues,omitempty"`
}

// NewSubscriber creates a hub subscriber.
func NewSubscriber(config SubscriberConfig, handlers SubscriberHandlers) *Subscriber {
	buf := config.EventBuffer
	if buf <= 0 {
		buf = 100
	}
	return &Subscriber{
		config:   config,
		handlers: handlers,
		events:   make(chan Event, buf),
		closeCh:  make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and sends the filter.
func (s *Subscriber) Connect(ctx context.Context) error {
	if s.getState() == StateClosed {
		return errors.New("subscriber is closed")
	}

	s.setState(StateConnecting)

	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, s.config.URL, nil)
	if err != nil {
		s.setState(StateDisconnected)
		s.setLastError(err)
		return fmt.Errorf("dial failed: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	s.setState(StateConnected)
	s.reconnectAttempts = 0

	if err := s.sendFilter(); err != nil {
		s.setLastError(err)
	}

	if s.handlers.OnConnect != nil {
		s.handlers.OnConnect()
	}

	go s.readLoop()
	if s.config.HeartbeatInterval > 0 {
		go s.heartbeatLoop()
	}

	return nil
}

// Close closes the connection for good; no reconnect follows.
func (s *Subscriber) Close() error {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		close(s.closeCh)

		s.connMu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.connMu.Unlock()
	})
	return nil
}

// Events returns the decoded event stream.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Subscribe narrows (or widens) the filter at runtime. The new filter is
// also what gets re-sent after a reconnect.
func (s *Subscriber) Subscribe(events []EventType, leagues []league.League) error {
	s.filterMu.Lock()
	s.config.Events = events
	s.config.Leagues = leagues
	s.filterMu.Unlock()

	if !s.IsConnected() {
		return nil
	}
	return s.sendFilter()
}

// State returns the current connection state.
func (s *Subscriber) State() State {
	return s.getState()
}

// IsConnected returns true if the subscriber is connected.
func (s *Subscriber) IsConnected() bool {
	return s.getState() == StateConnected
}

// LastError returns the last error that occurred.
func (s *Subscriber) LastError() error {
	s.lastErrorMu.RLock()
	defer s.lastErrorMu.RUnlock()
	return s.lastError
}

// --- Internal methods ---

func (s *Subscriber) getState() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Subscriber) setState(st State) {
	old := State(atomic.SwapInt32(&s.state, int32(st)))
	if old != st && s.handlers.OnStateChange != nil {
		s.handlers.OnStateChange(old, st)
	}
}

func (s *Subscriber) setLastError(err error) {
	s.lastErrorMu.Lock()
	s.lastError = err
	s.lastErrorMu.Unlock()
}

// sendFilter pushes the current subscription filter to the hub. An empty
// filter keeps the server default, so nothing is sent.
func (s *Subscriber) sendFilter() error {
	s.filterMu.RLock()
	frame := subscribeFrame{Type: "subscribe"}
	for _, et := range s.config.Events {
		frame.Events = append(frame.Events, string(et))
	}
	for _, lg := range s.config.Leagues {
		frame.Leagues = append(frame.Leagues, string(lg))
	}
	s.filterMu.RUnlock()

	if len(frame.Events) == 0 && len(frame.Leagues) == 0 {
		return nil
	}
	return s.writeJSON(frame)
}

func (s *Subscriber) writeJSON(v interface{}) error {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return errors.New("not connected")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal failed: %w", err)
	}
	if s.config.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Subscriber) readLoop() {
	defer func() {
		if s.getState() != StateClosed {
			s.handleDisconnect(s.LastError())
		}
	}()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		s.connMu.RLock()
		conn := s.conn
		s.connMu.RUnlock()

		if conn == nil {
			return
		}

		if s.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.setLastError(err)
			if s.handlers.OnError != nil {
				s.handlers.OnError(err)
			}
			return
		}

		s.routeFrames(data)
	}
}

// routeFrames decodes a frame into events. The hub batches queued events
// into one frame separated by newlines.
func (s *Subscriber) routeFrames(data []byte) {
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var event Event
		if err := dec.Decode(&event); err != nil {
			if !errors.Is(err, io.EOF) && s.handlers.OnError != nil {
				s.handlers.OnError(fmt.Errorf("decode event: %w", err))
			}
			return
		}

		if s.handlers.OnEvent != nil {
			s.handlers.OnEvent(event)
		}
		select {
		case s.events <- event:
		default:
			// Buffer full, drop event
		}
	}
}

func (s *Subscriber) heartbeatLoop() {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closeCh:
			return
		case <-ticker.C:
			if s.getState() != StateConnected {
				continue
			}

			s.connMu.RLock()
			conn := s.conn
			s.connMu.RUnlock()

			if conn == nil {
				continue
			}

			deadline := time.Now().Add(s.config.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.setLastError(err)
				if s.handlers.OnError != nil {
					s.handlers.OnError(fmt.Errorf("heartbeat failed: %w", err))
				}
			}
		}
	}
}

func (s *Subscriber) handleDisconnect(err error) {
	s.setState(StateDisconnected)

	if s.handlers.OnDisconnect != nil {
		s.handlers.OnDisconnect(err)
	}

	if s.config.ReconnectEnabled {
		go s.reconnect()
	}
}

func (s *Subscriber) reconnect() {
	s.setState(StateReconnecting)

	for {
		if s.getState() == StateClosed {
			return
		}

		s.reconnectAttempts++

		if s.config.ReconnectMaxAttempts > 0 && s.reconnectAttempts > s.config.ReconnectMaxAttempts {
			s.setState(StateDisconnected)
			if s.handlers.OnError != nil {
				s.handlers.OnError(fmt.Errorf("max reconnect attempts (%d) exceeded", s.config.ReconnectMaxAttempts))
			}
			return
		}

		// Cap the shift so the backoff math cannot overflow.
		shift := s.reconnectAttempts - 1
		if shift > 10 {
			shift = 10
		}
		delay := s.config.ReconnectMinDelay * time.Duration(1<<uint(shift))
		if delay > s.config.ReconnectMaxDelay {
			delay = s.config.ReconnectMaxDelay
		}

		select {
		case <-s.closeCh:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := s.Connect(ctx)
		cancel()

		if err == nil {
			// Connect re-sent the filter.
			return
		}

		if s.handlers.OnError != nil {
			s.handlers.OnError(fmt.Errorf("reconnect attempt %d failed: %w", s.reconnectAttempts, err))
		}
	}
}
