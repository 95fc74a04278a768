// internal/match/coordinator.go
// Package match drives the matchmaking handshake on top of a conn.Manager:
// queueing, the confirmation window and the accept/decline exchange.
package match

import (
	"strconv"
	"sync"
	"time"

	"github.com/erilali/turing/internal/conn"
	"github.com/erilali/turing/internal/countdown"
	"github.com/erilali/turing/internal/journal"
	"github.com/erilali/turing/internal/logger"
	"github.com/erilali/turing/internal/message"
	"github.com/jonboulle/clockwork"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusWaiting Status = "waiting"
	StatusFound   Status = "found"
	StatusMatched Status = "matched"
)

// Snapshot is a copy of the coordinator's state.
type Snapshot struct {
	Status    Status
	MatchID   string
	Role      message.Role
	Window    int
	Remaining int
	Accepted  bool
	GameID    string
	// Detail is the last informational text from the server (timeout,
	// game_starting).
	Detail    string
	LastError string
	GaveUp    bool
}

// Conn is the part of conn.Manager the coordinator depends on.
type Conn interface {
	ID() string
	Subscribe(h conn.Handler) func()
	Send(msg message.Message)
	Do(f func()) bool
	State() conn.State
	Clock() clockwork.Clock
}

type Options struct {
	Logger  *logger.Logger
	Journal journal.Recorder
	// TickInterval is the length of one countdown second. Defaults to 1s.
	TickInterval time.Duration

	OnChange  func(Snapshot)
	OnMatched func(gameID string)
	OnError   func(detail string)
	OnGiveUp  func()
}

// Coordinator is the matchmaking state machine. Its handlers and the
// bodies of its public methods all run on the Manager's loop goroutine.
type Coordinator struct {
	conn        Conn
	opts        Options
	log         *logger.Logger
	journal     journal.Recorder
	countdown   *countdown.Countdown
	unsubscribe func()

	mu   sync.RWMutex
	snap Snapshot
}

func New(c Conn, opts Options) *Coordinator {
	co := &Coordinator{
		conn:    c,
		opts:    opts,
		log:     logger.OrNop(opts.Logger),
		journal: journal.OrNop(opts.Journal),
		snap:    Snapshot{Status: StatusIdle},
	}
	co.countdown = countdown.New(c.Clock(), func(f func()) { c.Do(f) }, countdown.WithInterval(opts.TickInterval))
	co.unsubscribe = c.Subscribe(conn.Hooks{
		OnOpen:      co.handleOpen,
		OnClose:     co.handleClose,
		OnError:     co.handleTransportError,
		OnReconnect: co.handleReconnect,
		OnGiveUp:    co.handleGiveUp,
		OnMessage:   co.handleMessage,
	})
	return co
}

func (co *Coordinator) Snapshot() Snapshot {
	co.mu.RLock()
	defer co.mu.RUnlock()
	return co.snap
}

// Accept confirms the current match. It does nothing unless a match is
// awaiting confirmation and the connection is open.
func (co *Coordinator) Accept() {
	co.conn.Do(func() {
		s, ok := co.confirmable("accept")
		if !ok {
			return
		}
		co.conn.Send(message.Accept{MatchID: s.MatchID})
		co.update(func(s *Snapshot) { s.Accepted = true })
		co.record("accepted", "")
	})
}

// Decline rejects the current match and returns to idle. Same guards as
// Accept.
func (co *Coordinator) Decline() {
	co.conn.Do(func() {
		s, ok := co.confirmable("decline")
		if !ok {
			return
		}
		co.decline(s.MatchID, "declined")
	})
}

// Leave withdraws from the queue. Only meaningful while waiting.
func (co *Coordinator) Leave() {
	co.conn.Do(func() {
		if status := co.Snapshot().Status; status != StatusWaiting {
			co.log.Warnf("leave ignored in state %s", status)
			return
		}
		if state := co.conn.State(); state != conn.StateOpen {
			co.log.Warnf("leave ignored, connection is %s", state)
			return
		}
		co.conn.Send(message.Leave{})
		co.reset("left", "")
	})
}

// Close detaches the coordinator from its connection and stops the
// countdown. The connection itself is left to its owner.
func (co *Coordinator) Close() {
	co.unsubscribe()
	co.countdown.Stop()
}

func (co *Coordinator) confirmable(action string) (Snapshot, bool) {
	s := co.Snapshot()
	if s.Status != StatusFound || s.MatchID == "" {
		co.log.Warnf("%s ignored in state %s", action, s.Status)
		return s, false
	}
	if state := co.conn.State(); state != conn.StateOpen {
		co.log.Warnf("%s ignored, connection is %s", action, state)
		return s, false
	}
	return s, true
}

func (co *Coordinator) handleOpen() {
	if co.Snapshot().Status != StatusIdle {
		return
	}
	co.join()
}

func (co *Coordinator) join() {
	co.conn.Send(message.Join{})
	co.update(func(s *Snapshot) {
		*s = Snapshot{Status: StatusWaiting, LastError: s.LastError}
	})
	co.record("waiting", "")
	co.notify()
}

// handleClose returns any in-flight negotiation to idle so no stale match
// survives the connection it was offered on.
func (co *Coordinator) handleClose() {
	switch co.Snapshot().Status {
	case StatusWaiting, StatusFound:
		co.reset("connection_lost", "")
	}
}

func (co *Coordinator) handleTransportError(err error) {
	co.log.Debugf("transport error: %v", err)
}

func (co *Coordinator) handleReconnect(attempt int) {
	co.log.Infof("reconnecting to matchmaking (attempt %d)", attempt)
}

func (co *Coordinator) handleGiveUp() {
	co.update(func(s *Snapshot) { s.GaveUp = true })
	co.record("gave_up", "")
	if co.opts.OnGiveUp != nil {
		co.opts.OnGiveUp()
	}
}

func (co *Coordinator) handleMessage(msg message.Message) {
	switch m := msg.(type) {
	case message.MatchFound:
		co.found(m)
	case message.Matched:
		co.matched(m.GameID)
	case message.Requeue:
		if co.Snapshot().Status == StatusMatched {
			return
		}
		co.countdown.Stop()
		co.record("requeue", "")
		co.join()
	case message.Timeout:
		if co.Snapshot().Status == StatusMatched {
			return
		}
		co.reset("timeout", m.Detail)
	case message.ServerError:
		co.serverError(m.Detail)
	case message.GameStarting:
		co.update(func(s *Snapshot) { s.Detail = m.Detail })
		co.log.Infof("game %s starting: %s", m.GameID, m.Detail)
		co.notify()
	default:
		co.log.Debugf("ignoring %s during matchmaking", msg.Action())
	}
}

// found records a new confirmation window, replacing any earlier one.
func (co *Coordinator) found(m message.MatchFound) {
	if co.Snapshot().Status == StatusMatched {
		co.log.Warnf("match_found %s ignored after matched", m.MatchID)
		return
	}
	window := m.Window
	if window < 0 {
		window = 0
	}
	co.update(func(s *Snapshot) {
		s.Status = StatusFound
		s.MatchID = m.MatchID
		s.Role = m.Role
		s.Window = window
		s.Remaining = window
		s.Accepted = false
	})
	co.countdown.Start(window, co.tick, co.expire)

	co.log.LogEvent("info", "match_found", m.MatchID, m.Role.String())
	co.record("match_found", strconv.Itoa(window))
	co.notify()
}

func (co *Coordinator) tick(remaining int) {
	if co.Snapshot().Status != StatusFound {
		return
	}
	co.update(func(s *Snapshot) { s.Remaining = remaining })
	co.notify()
}

// expire declines on the user's behalf when the window runs out.
func (co *Coordinator) expire() {
	s := co.Snapshot()
	if s.Status != StatusFound || s.MatchID == "" {
		return
	}
	co.log.Infof("confirmation window for %s expired", s.MatchID)
	co.decline(s.MatchID, "expired")
}

func (co *Coordinator) decline(matchID, reason string) {
	co.conn.Send(message.Decline{MatchID: matchID})
	co.reset(reason, "")
}

func (co *Coordinator) matched(gameID string) {
	if co.Snapshot().Status == StatusMatched {
		co.log.Debugf("duplicate matched for %s", gameID)
		return
	}
	co.countdown.Stop()
	co.update(func(s *Snapshot) {
		s.Status = StatusMatched
		s.GameID = gameID
	})

	co.log.LogEvent("info", "matched", gameID, "")
	co.record("matched", "")
	co.notify()
	if co.opts.OnMatched != nil {
		co.opts.OnMatched(gameID)
	}
}

func (co *Coordinator) serverError(detail string) {
	if detail == "" {
		detail = "unknown server error"
	}
	co.log.Warnf("server error: %s", detail)
	if co.Snapshot().Status != StatusMatched {
		co.reset("error", detail)
	}
	co.update(func(s *Snapshot) { s.LastError = detail })
	co.notify()
	if co.opts.OnError != nil {
		co.opts.OnError(detail)
	}
}

// reset stops the countdown and clears everything tied to a match.
func (co *Coordinator) reset(event, detail string) {
	co.countdown.Stop()
	co.record(event, detail)
	co.update(func(s *Snapshot) {
		*s = Snapshot{Status: StatusIdle, Detail: detail, LastError: s.LastError, GaveUp: s.GaveUp}
	})
	co.notify()
}

func (co *Coordinator) update(f func(s *Snapshot)) {
	co.mu.Lock()
	f(&co.snap)
	co.mu.Unlock()
}

func (co *Coordinator) notify() {
	if co.opts.OnChange != nil {
		co.opts.OnChange(co.Snapshot())
	}
}

func (co *Coordinator) record(event, detail string) {
	s := co.Snapshot()
	co.journal.Record(journal.Event{
		Scope:   journal.ScopeMatch,
		Session: co.conn.ID(),
		Name:    event,
		MatchID: s.MatchID,
		GameID:  s.GameID,
		Role:    s.Role.String(),
		Detail:  detail,
		TS:      co.conn.Clock().Now(),
	})
}
