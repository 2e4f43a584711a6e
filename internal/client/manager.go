// Package client keeps a dashboard connected to the hub and maintains the
// local view the terminal UI renders.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/visitorpulse/pulse/internal/session"
	"github.com/visitorpulse/pulse/internal/ws"
)

// ErrNotConnected is returned by sends attempted outside the Connected state.
// The message is dropped, not queued.
var ErrNotConnected = errors.New("client: not connected")

const (
	// MaxReconnectAttempts is how many automatic retries follow a failure
	// before the manager gives up and stays Disconnected.
	MaxReconnectAttempts = 5
	reconnectBase        = time.Second
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Backoff returns the delay before retry number attempt (1-based).
func Backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * reconnectBase
}

// Conn is one established transport connection.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) { return f(ctx, url) }

// Timer is the handle returned by AfterFunc.
type Timer interface {
	Stop() bool
}

// Status describes the connection for display.
type Status struct {
	State   State
	Attempt int
	// Delay is the wait before the pending retry while Reconnecting.
	Delay   time.Duration
	LastErr error
}

// Update is passed to the notify callback. Message is empty for pure state
// changes and names the applied message type otherwise.
type Update struct {
	Status  Status
	Message ws.MessageType
}

type Options struct {
	Dialer Dialer
	Logger *zap.Logger
	// OnUpdate is called after every state change and applied message, from
	// the goroutine that caused it. It must not block.
	OnUpdate func(Update)
	// AfterFunc schedules retries. It must not run f synchronously.
	AfterFunc func(d time.Duration, f func()) Timer
}

// Manager drives the Disconnected, Connecting, Connected and Reconnecting
// state machine for a single hub URL.
type Manager struct {
	url       string
	dialer    Dialer
	logger    *zap.Logger
	onUpdate  func(Update)
	afterFunc func(time.Duration, func()) Timer

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	attempt int
	delay   time.Duration
	lastErr error
	conn    Conn
	timer   Timer
	filter  *session.Filter
	closed  bool

	writeMu sync.Mutex

	viewMu sync.Mutex
	view   *View
}

func NewManager(url string, opts Options) *Manager {
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.OnUpdate == nil {
		opts.OnUpdate = func(Update) {}
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		url:       url,
		dialer:    opts.Dialer,
		logger:    opts.Logger.With(zap.String("component", "client")),
		onUpdate:  opts.OnUpdate,
		afterFunc: opts.AfterFunc,
		ctx:       ctx,
		cancel:    cancel,
		view:      newView(),
	}
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() Status {
	return Status{State: m.state, Attempt: m.attempt, Delay: m.delay, LastErr: m.lastErr}
}

// View returns a copy of the local view.
func (m *Manager) View() View {
	m.viewMu.Lock()
	defer m.viewMu.Unlock()
	return m.view.clone()
}

// Connect starts a connection attempt from Disconnected and resets the retry
// counter. It reports false when an attempt is already in flight, the
// manager is connected or waiting to retry, or it has been closed.
func (m *Manager) Connect() bool {
	m.mu.Lock()
	if m.closed || m.state != Disconnected {
		m.mu.Unlock()
		return false
	}
	m.attempt = 0
	m.delay = 0
	m.state = Connecting
	st := m.statusLocked()
	m.mu.Unlock()

	m.notify(Update{Status: st})
	go m.dial()
	return true
}

// retry runs when the backoff timer fires.
func (m *Manager) retry() {
	m.mu.Lock()
	if m.closed || m.state != Reconnecting {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.delay = 0
	m.state = Connecting
	st := m.statusLocked()
	m.mu.Unlock()

	m.notify(Update{Status: st})
	m.dial()
}

func (m *Manager) dial() {
	conn, err := m.dialer.Dial(m.ctx, m.url)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		m.lastErr = err
		m.scheduleLocked()
		st := m.statusLocked()
		m.mu.Unlock()
		m.logger.Warn("dial failed", zap.String("url", m.url), zap.Int("attempt", st.Attempt), zap.Error(err))
		m.notify(Update{Status: st})
		return
	}
	m.conn = conn
	m.state = Connected
	m.attempt = 0
	m.lastErr = nil
	filter := m.filter.Normalize()
	st := m.statusLocked()
	m.mu.Unlock()

	m.logger.Info("connected", zap.String("url", m.url))
	m.notify(Update{Status: st})
	m.resync(filter)
	go m.readLoop(conn)
}

// scheduleLocked arms the next retry or gives up after the last one.
func (m *Manager) scheduleLocked() {
	if m.attempt >= MaxReconnectAttempts {
		m.state = Disconnected
		m.delay = 0
		return
	}
	m.attempt++
	m.delay = Backoff(m.attempt)
	m.state = Reconnecting
	m.timer = m.afterFunc(m.delay, m.retry)
}

// resync restores server-side state on a fresh connection.
func (m *Manager) resync(filter *session.Filter) {
	var err error
	if filter != nil {
		err = m.send(ws.MsgApplyFilters, filter)
	} else {
		err = m.send(ws.MsgRequestDetailedStats, ws.StatsRequest{})
	}
	if err != nil {
		m.logger.Debug("resync failed", zap.Error(err))
	}
}

func (m *Manager) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.connectionLost(conn, err)
			return
		}
		m.dispatch(data)
	}
}

func (m *Manager) connectionLost(conn Conn, err error) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	conn.Close()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		m.state = Disconnected
		m.lastErr = nil
	} else {
		m.lastErr = err
		m.scheduleLocked()
	}
	st := m.statusLocked()
	m.mu.Unlock()

	m.logger.Info("connection lost", zap.Stringer("state", st.State), zap.Error(err))
	m.notify(Update{Status: st})
}

func (m *Manager) dispatch(data []byte) {
	var msg struct {
		Type ws.MessageType `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		m.logger.Debug("invalid frame", zap.Error(err))
		return
	}

	m.viewMu.Lock()
	err := m.view.apply(msg.Type, msg.Data)
	m.viewMu.Unlock()
	if err != nil {
		m.logger.Debug("dropping message", zap.String("type", string(msg.Type)), zap.Error(err))
		return
	}
	m.notify(Update{Status: m.Status(), Message: msg.Type})
}

// ApplyFilter remembers f for future connections and sends it to the hub.
// An empty filter clears.
func (m *Manager) ApplyFilter(f session.Filter) error {
	nf := f.Normalize()
	if nf == nil {
		return m.ClearFilters()
	}
	m.setFilter(nf)
	return m.send(ws.MsgApplyFilters, nf)
}

func (m *Manager) ClearFilters() error {
	m.setFilter(nil)
	return m.send(ws.MsgClearFilters, struct{}{})
}

// RequestStats asks for stats, sessions and events under the active filter.
func (m *Manager) RequestStats() error {
	m.mu.Lock()
	f := m.filter.Normalize()
	m.mu.Unlock()
	return m.send(ws.MsgRequestDetailedStats, ws.StatsRequest{Filter: f})
}

func (m *Manager) setFilter(f *session.Filter) {
	m.mu.Lock()
	m.filter = f
	m.mu.Unlock()

	m.viewMu.Lock()
	m.view.Filter = f.Normalize()
	m.viewMu.Unlock()
}

func (m *Manager) send(t ws.MessageType, data any) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == Connected
	m.mu.Unlock()
	if !connected || conn == nil {
		m.logger.Debug("dropping message while not connected", zap.String("type", string(t)))
		return ErrNotConnected
	}

	payload, err := json.Marshal(ws.WSMessage{Type: t, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", t, err)
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteMessage(payload); err != nil {
		return fmt.Errorf("send %s: %w", t, err)
	}
	return nil
}

// Close stops retries and closes the connection. The manager cannot be
// reused.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancel()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	conn := m.conn
	m.conn = nil
	m.state = Disconnected
	m.delay = 0
	st := m.statusLocked()
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	m.notify(Update{Status: st})
}

func (m *Manager) notify(u Update) {
	m.onUpdate(u)
}
