package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"youwin-client/internal/pkg/logger"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
)

const logModule = "Connection"

var (
	ErrNotOpen        = errors.New("connection is not open")
	ErrSendBufferFull = errors.New("connection send buffer is full")
)

type Options struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	// PingPeriod enables keepalive pings and a read deadline of PingPeriod*10/9.
	// Zero disables both.
	PingPeriod      time.Duration
	MaxMessageBytes int64
	SendBuffer      int
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 16 << 20
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	return o
}

// Manager owns at most one live transport session. Opening a new session
// closes the previous one with a normal-closure code first.
type Manager struct {
	mu      sync.Mutex
	dialer  Dialer
	opts    Options
	current *session
	logger  logger.ILogger
}

type session struct {
	handle   Handle
	state    State
	conn     Conn
	deferred [][]byte
	send     chan []byte
	done     chan struct{}
	stopped  bool
	sink     EventSink

	cancelDial  context.CancelFunc
	closedByUs  bool
	closeCode   int
	closeReason string
}

func NewManager(dialer Dialer, opts Options, log logger.ILogger) *Manager {
	return &Manager{
		dialer: dialer,
		opts:   opts.withDefaults(),
		logger: log,
	}
}

// Open starts a new session and returns immediately; the outcome arrives on
// sink as EventOpened or EventFailed.
func (m *Manager) Open(sink EventSink) Handle {
	m.mu.Lock()
	var closePrev func()
	if prev := m.current; prev != nil && prev.state.Live() {
		closePrev = m.closeLocked(prev, websocket.CloseNormalClosure, "New connection initiated")
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), m.opts.HandshakeTimeout)
	s := &session{
		handle:     Handle{ID: uuid.New()},
		state:      StateConnecting,
		send:       make(chan []byte, m.opts.SendBuffer),
		done:       make(chan struct{}),
		sink:       sink,
		cancelDial: cancel,
	}
	m.current = s
	m.mu.Unlock()

	if closePrev != nil {
		closePrev()
	}

	m.logger.Info(logModule, "Connecting", map[string]interface{}{"handle": s.handle.String(), "url": m.opts.URL})
	go m.dial(dialCtx, s)
	return s.handle
}

func (m *Manager) dial(ctx context.Context, s *session) {
	conn, err := m.dialer.Dial(ctx, m.opts.URL)
	s.cancelDial()

	m.mu.Lock()
	if s.state != StateConnecting {
		// Closed while the handshake was in flight.
		ev := Event{Kind: EventClosed, Code: s.closeCode, Reason: s.closeReason}
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		m.emit(s, ev)
		return
	}
	if err != nil {
		s.state = StateFailed
		s.stop()
		m.mu.Unlock()
		m.logger.Error(logModule, "Dial failed", map[string]interface{}{"handle": s.handle.String(), "error": err.Error()})
		m.emit(s, Event{Kind: EventFailed, Err: err})
		return
	}

	conn.SetReadLimit(m.opts.MaxMessageBytes)
	s.conn = conn
	s.state = StateOpen
	// Payloads queued during the handshake go out first, in call order.
	for _, payload := range s.deferred {
		s.send <- payload
	}
	flushed := len(s.deferred)
	s.deferred = nil
	m.mu.Unlock()

	m.logger.Info(logModule, "Connection open", map[string]interface{}{"handle": s.handle.String(), "flushed": flushed})
	m.emit(s, Event{Kind: EventOpened})

	go m.writePump(s, conn)
	go m.readPump(s, conn)
}

// readPump forwards inbound frames until the connection ends.
func (m *Manager) readPump(s *session, conn Conn) {
	if m.opts.PingPeriod > 0 {
		pongWait := m.opts.PingPeriod * 10 / 9
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.finish(s, conn, err)
			return
		}
		m.logger.Debug(logModule, "Frame received", map[string]interface{}{"handle": s.handle.String(), "bytes": len(data)})
		m.emit(s, Event{Kind: EventMessage, Payload: data})
	}
}

func (m *Manager) finish(s *session, conn Conn, readErr error) {
	m.mu.Lock()
	var ev Event
	if s.closedByUs {
		ev = Event{Kind: EventClosed, Code: s.closeCode, Reason: s.closeReason}
	} else {
		var closeErr *websocket.CloseError
		if errors.As(readErr, &closeErr) {
			s.state = StateClosed
			ev = Event{Kind: EventClosed, Code: closeErr.Code, Reason: closeErr.Text}
		} else {
			s.state = StateFailed
			ev = Event{Kind: EventFailed, Err: readErr}
		}
		s.stop()
	}
	m.mu.Unlock()

	conn.Close()

	details := map[string]interface{}{"handle": s.handle.String(), "kind": ev.Kind.String(), "code": ev.Code}
	if ev.Err != nil {
		details["error"] = ev.Err.Error()
		m.logger.Warn(logModule, "Connection lost", details)
	} else {
		m.logger.Info(logModule, "Connection closed", details)
	}
	m.emit(s, ev)
}

// writePump is the only goroutine writing data frames to conn.
func (m *Manager) writePump(s *session, conn Conn) {
	var tick <-chan time.Time
	if m.opts.PingPeriod > 0 {
		ticker := time.NewTicker(m.opts.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-s.done:
			return
		case payload := <-s.send:
			conn.SetWriteDeadline(time.Now().Add(m.opts.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				m.logger.Warn(logModule, "Write failed", map[string]interface{}{"handle": s.handle.String(), "error": err.Error()})
				// readPump observes the broken connection and reports it.
				conn.Close()
				return
			}
			m.logger.Debug(logModule, "Frame sent", map[string]interface{}{"handle": s.handle.String(), "bytes": len(payload)})
		case <-tick:
			conn.SetWriteDeadline(time.Now().Add(m.opts.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.logger.Warn(logModule, "Ping failed", map[string]interface{}{"handle": s.handle.String(), "error": err.Error()})
				conn.Close()
				return
			}
		}
	}
}

// Send queues payload for h. While the handshake is running the payload is
// held and flushed on open; after the session ends Send returns ErrNotOpen.
func (m *Manager) Send(h Handle, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.current
	if s == nil || s.handle != h {
		return ErrNotOpen
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)

	switch s.state {
	case StateConnecting:
		if len(s.deferred) >= cap(s.send) {
			return ErrSendBufferFull
		}
		s.deferred = append(s.deferred, buf)
		return nil
	case StateOpen:
		select {
		case s.send <- buf:
			return nil
		default:
			return ErrSendBufferFull
		}
	default:
		return ErrNotOpen
	}
}

// Close ends the session behind h. Closing an ended or superseded handle is a no-op.
func (m *Manager) Close(h Handle, code int, reason string) {
	m.mu.Lock()
	s := m.current
	if s == nil || s.handle != h {
		m.mu.Unlock()
		return
	}
	closeConn := m.closeLocked(s, code, reason)
	m.mu.Unlock()

	if closeConn != nil {
		closeConn()
	}
}

// closeLocked marks s closed and returns the transport teardown, which the
// caller runs after releasing the lock.
func (m *Manager) closeLocked(s *session, code int, reason string) func() {
	if !s.state.Live() {
		return nil
	}

	s.state = StateClosed
	s.closedByUs = true
	s.closeCode = code
	s.closeReason = reason
	s.stop()
	s.cancelDial()

	conn := s.conn
	writeWait := m.opts.WriteWait
	m.logger.Info(logModule, "Closing connection", map[string]interface{}{"handle": s.handle.String(), "code": code, "reason": reason})

	return func() {
		if conn == nil {
			return
		}
		msg := websocket.FormatCloseMessage(code, reason)
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
			m.logger.Debug(logModule, "Close frame not delivered", map[string]interface{}{"handle": s.handle.String(), "error": err.Error()})
		}
		conn.Close()
	}
}

func (s *session) stop() {
	if !s.stopped {
		s.stopped = true
		close(s.done)
	}
}

// emit delivers lifecycle events only while s is the current session. Frames
// a superseded session had already read are still delivered; the receiver
// decides what a late frame means.
func (m *Manager) emit(s *session, ev Event) {
	m.mu.Lock()
	isCurrent := m.current == s
	m.mu.Unlock()

	if !isCurrent && ev.Kind != EventMessage {
		m.logger.Debug(logModule, "Dropping event from superseded connection", map[string]interface{}{
			"handle": s.handle.String(),
			"kind":   ev.Kind.String(),
		})
		return
	}
	ev.Handle = s.handle
	s.sink(ev)
}

// State reports the state of the current session, or StateIdle before the first Open.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return StateIdle
	}
	return m.current.state
}

// Current returns the most recently opened handle.
func (m *Manager) Current() (Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return Handle{}, false
	}
	return m.current.handle, true
}
