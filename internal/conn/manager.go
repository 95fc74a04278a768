// internal/conn/manager.go
// Owns one realtime connection: dialing, pumps, reconnection and event dispatch.
package conn

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/erilali/turing/internal/logger"
	"github.com/erilali/turing/internal/message"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultMaxRetries        = 5
	DefaultReconnectInterval = 3 * time.Second
	defaultDialTimeout       = 15 * time.Second
	outboxSize               = 64
)

// Options configures a Manager. Zero values fall back to the defaults;
// a negative MaxRetries disables automatic reconnection.
type Options struct {
	URL               string
	Dialer            Dialer
	MaxRetries        int
	ReconnectInterval time.Duration
	DialTimeout       time.Duration
	Clock             clockwork.Clock
	Logger            *logger.Logger
}

// Manager owns a single transport handle and its lifecycle. All bookkeeping
// and every handler call happen on one loop goroutine; the transport
// goroutines only post events to it. Public methods are safe for concurrent
// use and never block on the network.
type Manager struct {
	id      string
	opts    Options
	clock   clockwork.Clock
	log     *logger.Logger
	mailbox *mailbox
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	// guarded by mu; written only on the loop
	mu   sync.RWMutex
	conn Connection

	// loop-owned
	sock      Socket
	gen       uint64
	outbox    chan []byte
	redial    clockwork.Timer
	redialSeq uint64

	subsMu sync.Mutex
	subs   []*subscription
}

type subscription struct {
	handler Handler
	active  bool
}

func New(opts Options) *Manager {
	if opts.Dialer == nil {
		opts.Dialer = NewWebsocketDialer()
	}
	switch {
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	case opts.MaxRetries == 0:
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		id:      id,
		opts:    opts,
		clock:   opts.Clock,
		log:     logger.OrNop(opts.Logger).WithFields(map[string]interface{}{"conn_id": id[:8], "url": Redact(opts.URL)}),
		mailbox: newMailbox(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		conn:    Connection{URL: opts.URL, State: StateClosed},
	}
	go m.loop()
	return m
}

func (m *Manager) ID() string { return m.id }

// Clock is the clock the Manager schedules with; state machines built on
// the Manager share it.
func (m *Manager) Clock() clockwork.Clock { return m.clock }

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn.State
}

// Snapshot returns a copy of the connection bookkeeping.
func (m *Manager) Snapshot() Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

// Done is closed once the loop has exited after Close.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Do runs f on the loop goroutine after everything already queued. It
// reports false once the Manager is closed.
func (m *Manager) Do(f func()) bool {
	return m.mailbox.post(f)
}

// Subscribe registers h for lifecycle events and messages. The returned
// function removes the subscription.
func (m *Manager) Subscribe(h Handler) func() {
	sub := &subscription{handler: h, active: true}
	m.subsMu.Lock()
	m.subs = append(m.subs, sub)
	m.subsMu.Unlock()
	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		sub.active = false
		for i, s := range m.subs {
			if s == sub {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				break
			}
		}
	}
}

// Connect dials the endpoint unless a connection is already open or in
// progress. It clears the manual-close flag, cancels any scheduled retry,
// and after a give-up starts a fresh retry budget.
func (m *Manager) Connect() {
	m.Do(func() { m.connect(true, 0) })
}

// Send encodes and writes msg. When the connection is not open the message
// is dropped with a warning; nothing is queued for later.
func (m *Manager) Send(msg message.Message) {
	m.Do(func() { m.send(msg) })
}

// Disconnect closes the transport and disables automatic reconnection.
func (m *Manager) Disconnect() {
	m.Do(m.disconnect)
}

// Close disconnects and stops the loop. Handlers see the final close
// event before the loop exits.
func (m *Manager) Close() {
	m.Do(func() {
		m.disconnect()
		m.cancel()
	})
}

func (m *Manager) loop() {
	defer close(m.done)
	for {
		select {
		case <-m.ctx.Done():
			m.mailbox.close()
			return
		case <-m.mailbox.wake:
			for _, f := range m.mailbox.drain() {
				f()
			}
		}
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.conn.State = s
	m.mu.Unlock()
}

func (m *Manager) update(f func(c *Connection)) {
	m.mu.Lock()
	f(&m.conn)
	m.mu.Unlock()
}

// connect starts a dial. Scheduled retries carry the sequence number of
// the timer that posted them so a cancelled retry cannot slip through.
func (m *Manager) connect(explicit bool, seq uint64) {
	c := m.Snapshot()
	if explicit {
		m.cancelRedial()
		m.update(func(c *Connection) {
			c.ManualClose = false
			if c.Exhausted {
				c.Exhausted = false
				c.Retries = 0
			}
		})
	} else {
		if seq != m.redialSeq || m.redial == nil || c.ManualClose {
			return
		}
		m.redial = nil
	}
	if c.State == StateConnecting || c.State == StateOpen {
		m.log.Debugf("connect ignored, already %s", c.State)
		return
	}

	m.gen++
	gen := m.gen
	m.setState(StateConnecting)
	m.log.Debugf("dialing (attempt %d)", c.Retries)

	go func() {
		ctx, cancel := context.WithTimeout(m.ctx, m.opts.DialTimeout)
		sock, err := m.opts.Dialer.Dial(ctx, m.opts.URL)
		cancel()
		if !m.Do(func() { m.dialed(gen, sock, err) }) && sock != nil {
			sock.Close()
		}
	}()
}

func (m *Manager) dialed(gen uint64, sock Socket, err error) {
	if gen != m.gen || m.State() != StateConnecting {
		if sock != nil {
			sock.Close()
		}
		return
	}
	if err != nil {
		m.log.Warnf("dial failed: %v", err)
		m.dispatch(func(h Handler) { h.HandleError(err) })
		m.closed(gen)
		return
	}

	m.sock = sock
	m.outbox = make(chan []byte, outboxSize)
	m.update(func(c *Connection) {
		c.State = StateOpen
		c.Retries = 0
	})
	go m.readPump(gen, sock)
	go m.writePump(sock, m.outbox)

	m.log.LogEvent("info", "connection_opened", Redact(m.opts.URL), "")
	m.dispatch(func(h Handler) { h.HandleOpen() })
}

// closed tears down the transport of generation gen and applies the
// reconnect policy. Repeated reports for the same generation are ignored.
func (m *Manager) closed(gen uint64) {
	if gen != m.gen || m.State() == StateClosed {
		return
	}
	if m.sock != nil {
		m.sock.Close()
		m.sock = nil
	}
	if m.outbox != nil {
		close(m.outbox)
		m.outbox = nil
	}
	m.setState(StateClosed)
	m.dispatch(func(h Handler) { h.HandleClose() })

	c := m.Snapshot()
	if c.ManualClose {
		return
	}
	if c.Retries >= m.opts.MaxRetries {
		m.update(func(c *Connection) { c.Exhausted = true })
		m.log.LogEvent("warn", "reconnect_exhausted", "", strconv.Itoa(c.Retries))
		m.dispatch(func(h Handler) { h.HandleGiveUp() })
		return
	}

	attempt := c.Retries + 1
	m.update(func(c *Connection) { c.Retries = attempt })
	m.log.LogEvent("info", "reconnect_scheduled", "", strconv.Itoa(attempt))
	m.dispatch(func(h Handler) { h.HandleReconnect(attempt) })

	m.redialSeq++
	seq := m.redialSeq
	m.redial = m.clock.AfterFunc(m.opts.ReconnectInterval, func() {
		m.Do(func() { m.connect(false, seq) })
	})
}

func (m *Manager) cancelRedial() {
	if m.redial != nil {
		m.redial.Stop()
		m.redial = nil
	}
	m.redialSeq++
}

func (m *Manager) disconnect() {
	m.update(func(c *Connection) { c.ManualClose = true })
	m.cancelRedial()
	if m.State() == StateClosed {
		return
	}
	m.setState(StateClosing)
	// a pending dial of this generation finds the state changed and
	// closes its socket itself
	m.closed(m.gen)
}

func (m *Manager) send(msg message.Message) {
	if m.State() != StateOpen || m.outbox == nil {
		m.log.Warnf("dropping %s: connection is %s", msg.Action(), m.State())
		return
	}
	raw, err := message.Encode(msg, m.clock.Now())
	if err != nil {
		m.log.Errorf("encode failed: %v", err)
		return
	}
	select {
	case m.outbox <- raw:
	default:
		m.log.Warnf("dropping %s: outbox full", msg.Action())
	}
}

func (m *Manager) deliver(gen uint64, msg message.Message) {
	if gen != m.gen || m.State() != StateOpen {
		return
	}
	m.dispatch(func(h Handler) { h.HandleMessage(msg) })
}

func (m *Manager) dispatch(call func(h Handler)) {
	m.subsMu.Lock()
	subs := make([]*subscription, len(m.subs))
	copy(subs, m.subs)
	m.subsMu.Unlock()
	for _, s := range subs {
		m.subsMu.Lock()
		active := s.active
		m.subsMu.Unlock()
		if active {
			call(s.handler)
		}
	}
}

// readPump decodes inbound frames. A frame that fails to decode is logged
// and skipped; it never ends the connection.
func (m *Manager) readPump(gen uint64, sock Socket) {
	for {
		data, err := sock.ReadMessage()
		if err != nil {
			m.Do(func() {
				if gen != m.gen || m.State() != StateOpen {
					return
				}
				if !errors.Is(err, ErrClosed) {
					m.log.Warnf("read failed: %v", err)
					m.dispatch(func(h Handler) { h.HandleError(err) })
				}
				m.closed(gen)
			})
			return
		}

		msg, err := message.Decode(data, m.clock.Now())
		if err != nil {
			m.log.WithField("frame", truncate(data, 256)).Warnf("dropping inbound frame: %v", err)
			continue
		}
		m.Do(func() { m.deliver(gen, msg) })
	}
}

// writePump is the only writer on sock. A write failure closes the socket,
// which surfaces through the read pump.
func (m *Manager) writePump(sock Socket, outbox <-chan []byte) {
	ticker := m.clock.NewTicker(webSocketPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-outbox:
			if !ok {
				return
			}
			if err := sock.WriteMessage(data); err != nil {
				m.log.Warnf("write failed: %v", err)
				sock.Close()
				return
			}
		case <-ticker.Chan():
			if p, ok := sock.(Pinger); ok {
				if err := p.Ping(); err != nil {
					sock.Close()
					return
				}
			}
		}
	}
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
