// internal/room/session.go
// Package room runs the in-game half of a session: the chat relay between
// the interrogator and a witness, the end-of-chat switch and the guess.
package room

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/erilali/turing/internal/conn"
	"github.com/erilali/turing/internal/countdown"
	"github.com/erilali/turing/internal/journal"
	"github.com/erilali/turing/internal/logger"
	"github.com/erilali/turing/internal/message"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const maxBodyLength = 500

type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
	StatusError      Status = "error"
	// StatusGaveUp is a closed connection whose reconnect budget is spent.
	StatusGaveUp Status = "gave_up"
)

var (
	ErrEmptyBody        = errors.New("message body is empty")
	ErrBodyTooLong      = fmt.Errorf("message body exceeds %d characters", maxBodyLength)
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrInvalidGuess     = errors.New("invalid guess")
	ErrInvalidRole      = errors.New("invalid role")
)

// Snapshot is a copy of the session state. Transcript and Result are not
// shared with the session.
type Snapshot struct {
	GameID       string
	Role         message.Role
	Status       Status
	Transcript   []message.Chat
	ChatEnded    bool
	GuessPending bool
	// Result is nil until the server scores the guess.
	Result    *bool
	LastError string
	// Remaining is the local chat clock in seconds; zero when no clock runs.
	Remaining int

	ChatInputEnabled bool
	GuessFormEnabled bool
}

// IdentityFunc resolves the interrogator's user id. It reports false when
// no identity is available.
type IdentityFunc func() (string, bool)

// Conn is the part of conn.Manager the session depends on.
type Conn interface {
	ID() string
	Subscribe(h conn.Handler) func()
	Send(msg message.Message)
	Do(f func()) bool
	State() conn.State
	Clock() clockwork.Clock
}

type Options struct {
	GameID   string
	Role     message.Role
	Identity IdentityFunc
	// ChatDuration starts a local clock on first open. The server's
	// chat_ended stays authoritative.
	ChatDuration time.Duration
	TickInterval time.Duration
	Logger       *logger.Logger
	Journal      journal.Recorder

	OnChange      func(Snapshot)
	OnChatEnded   func()
	OnGuessResult func(correct bool)
	OnGiveUp      func()
}

// Session is the room state machine. Handlers and the bodies of the public
// methods run on the Manager's loop goroutine.
type Session struct {
	conn        Conn
	opts        Options
	log         *logger.Logger
	journal     journal.Recorder
	clock       *countdown.Countdown
	unsubscribe func()

	// loop-owned
	clockStarted bool

	mu   sync.RWMutex
	snap Snapshot
}

func New(c Conn, opts Options) (*Session, error) {
	if !opts.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, opts.Role)
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	s := &Session{
		conn:    c,
		opts:    opts,
		log:     logger.OrNop(opts.Logger).WithFields(map[string]interface{}{"game_id": opts.GameID, "role": opts.Role.String()}),
		journal: journal.OrNop(opts.Journal),
		snap:    Snapshot{GameID: opts.GameID, Role: opts.Role, Status: StatusConnecting},
	}
	s.clock = countdown.New(c.Clock(), func(f func()) { c.Do(f) }, countdown.WithInterval(opts.TickInterval))
	s.unsubscribe = c.Subscribe(conn.Hooks{
		OnOpen:      s.handleOpen,
		OnClose:     s.handleClose,
		OnError:     s.handleError,
		OnReconnect: s.handleReconnect,
		OnGiveUp:    s.handleGiveUp,
		OnMessage:   s.handleMessage,
	})
	return s, nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	out.Transcript = append([]message.Chat(nil), s.snap.Transcript...)
	if s.snap.Result != nil {
		r := *s.snap.Result
		out.Result = &r
	}
	return out
}

// SendMessage sends body to recipient and appends it to the transcript
// straight away; the server does not echo a sender's own lines. Argument
// errors are returned; when the session cannot chat the call is dropped
// with a warning.
func (s *Session) SendMessage(recipient message.Role, body string) error {
	body = strings.TrimSpace(body)
	switch n := utf8.RuneCountInString(body); {
	case n == 0:
		return ErrEmptyBody
	case n > maxBodyLength:
		return ErrBodyTooLong
	}
	if !s.canAddress(recipient) {
		return fmt.Errorf("%w: %s cannot message %q", ErrInvalidRecipient, s.opts.Role, recipient)
	}

	s.conn.Do(func() {
		if state := s.conn.State(); state != conn.StateOpen {
			s.log.Warnf("message dropped, connection is %s", state)
			return
		}
		if snap := s.Snapshot(); !snap.ChatInputEnabled {
			s.log.Warnf("message dropped, chat is closed")
			return
		}
		chat := message.Chat{
			Meta:      message.Meta{TS: s.conn.Clock().Now()},
			Sender:    s.opts.Role,
			Recipient: recipient,
			Body:      body,
		}
		s.conn.Send(chat)
		s.update(func(snap *Snapshot) { snap.Transcript = append(snap.Transcript, chat) })
		s.record("message_sent", recipient.String())
		s.notify()
	})
	return nil
}

func (s *Session) canAddress(recipient message.Role) bool {
	if !recipient.Valid() || recipient == s.opts.Role {
		return false
	}
	// witnesses only ever talk to the interrogator
	return s.opts.Role == message.RoleInterrogator || recipient == message.RoleInterrogator
}

// SendGuess submits the interrogator's verdict. Both ids must be distinct
// UUIDs. Only one guess may be outstanding and none after a result.
func (s *Session) SendGuess(aiID, humanID string) error {
	ai, err := uuid.Parse(strings.TrimSpace(aiID))
	if err != nil {
		return fmt.Errorf("%w: suspect ai id: %v", ErrInvalidGuess, err)
	}
	human, err := uuid.Parse(strings.TrimSpace(humanID))
	if err != nil {
		return fmt.Errorf("%w: suspect human id: %v", ErrInvalidGuess, err)
	}
	if ai == human {
		return fmt.Errorf("%w: both suspects are the same player", ErrInvalidGuess)
	}

	s.conn.Do(func() {
		if s.opts.Role != message.RoleInterrogator {
			s.log.Warnf("guess dropped, only the interrogator may guess")
			return
		}
		if state := s.conn.State(); state != conn.StateOpen {
			s.log.Warnf("guess dropped, connection is %s", state)
			return
		}
		snap := s.Snapshot()
		if snap.GuessPending || snap.Result != nil {
			s.log.Warnf("guess dropped, one has already been submitted")
			return
		}
		var id string
		var ok bool
		if s.opts.Identity != nil {
			id, ok = s.opts.Identity()
		}
		if !ok || id == "" {
			s.log.Warnf("guess dropped, interrogator identity unavailable")
			return
		}

		s.conn.Send(message.Guess{
			InterrogatorID: id,
			SuspectAIID:    ai.String(),
			SuspectHumanID: human.String(),
		})
		s.update(func(snap *Snapshot) { snap.GuessPending = true })
		s.record("guess_sent", "")
		s.notify()
	})
	return nil
}

// Close detaches the session from its connection and stops the chat clock.
func (s *Session) Close() {
	s.unsubscribe()
	s.clock.Stop()
}

func (s *Session) handleOpen() {
	startClock := s.opts.ChatDuration > 0 && !s.clockStarted && !s.Snapshot().ChatEnded
	ticks := int(s.opts.ChatDuration / s.opts.TickInterval)
	s.update(func(snap *Snapshot) {
		snap.Status = StatusOpen
		if startClock {
			snap.Remaining = ticks
		}
	})
	if startClock {
		s.clockStarted = true
		s.clock.Start(ticks, s.tick, nil)
	}
	s.record("opened", "")
	s.notify()
}

func (s *Session) tick(remaining int) {
	s.update(func(snap *Snapshot) { snap.Remaining = remaining })
	s.notify()
}

func (s *Session) handleClose() {
	if s.Snapshot().Status == StatusGaveUp {
		return
	}
	s.update(func(snap *Snapshot) {
		snap.Status = StatusClosed
		// a verdict can only arrive on the socket that carried the guess
		if snap.Result == nil {
			snap.GuessPending = false
		}
	})
	s.notify()
}

func (s *Session) handleError(err error) {
	s.log.Warnf("room connection error: %v", err)
	s.update(func(snap *Snapshot) { snap.Status = StatusError })
	s.notify()
}

func (s *Session) handleReconnect(attempt int) {
	s.log.Infof("reconnecting to room (attempt %d)", attempt)
	s.update(func(snap *Snapshot) { snap.Status = StatusConnecting })
	s.notify()
}

func (s *Session) handleGiveUp() {
	s.update(func(snap *Snapshot) { snap.Status = StatusGaveUp })
	s.record("gave_up", "")
	s.notify()
	if s.opts.OnGiveUp != nil {
		s.opts.OnGiveUp()
	}
}

func (s *Session) handleMessage(msg message.Message) {
	switch m := msg.(type) {
	case message.Chat:
		s.log.LogEvent("debug", "message_received", m.Sender.String(), m.Body)
		s.update(func(snap *Snapshot) { snap.Transcript = append(snap.Transcript, m) })
		s.notify()
	case message.ChatEnded:
		s.chatEnded(m.Detail)
	case message.GuessResult:
		s.guessResult(m.IsCorrect)
	case message.ServerError:
		s.serverError(m.Detail)
	default:
		s.log.Debugf("ignoring %s in room", msg.Action())
	}
}

// chatEnded flips the input mode once; repeats are ignored.
func (s *Session) chatEnded(detail string) {
	if s.Snapshot().ChatEnded {
		return
	}
	s.clock.Stop()
	s.update(func(snap *Snapshot) {
		snap.ChatEnded = true
		snap.Remaining = 0
	})
	s.record("chat_ended", detail)
	s.notify()
	if s.opts.OnChatEnded != nil {
		s.opts.OnChatEnded()
	}
}

func (s *Session) guessResult(correct bool) {
	if s.Snapshot().Result != nil {
		s.log.Warnf("duplicate guess_result ignored")
		return
	}
	s.clock.Stop()
	s.update(func(snap *Snapshot) {
		snap.Result = &correct
		snap.GuessPending = false
	})
	s.log.LogEvent("info", "guess_result", s.opts.GameID, verdict(correct))
	s.record("guess_result", verdict(correct))
	s.notify()
	if s.opts.OnGuessResult != nil {
		s.opts.OnGuessResult(correct)
	}
}

// serverError surfaces a rejected command. A rejected guess frees the
// guess slot so the interrogator can try again.
func (s *Session) serverError(detail string) {
	s.log.Warnf("server error: %s", detail)
	s.update(func(snap *Snapshot) {
		snap.LastError = detail
		snap.GuessPending = false
	})
	s.record("error", detail)
	s.notify()
}

func verdict(correct bool) string {
	if correct {
		return "correct"
	}
	return "wrong"
}

func (s *Session) update(f func(snap *Snapshot)) {
	s.mu.Lock()
	f(&s.snap)
	s.snap.ChatInputEnabled = s.snap.Status == StatusOpen && !s.snap.ChatEnded && s.snap.Result == nil
	s.snap.GuessFormEnabled = s.snap.Role == message.RoleInterrogator && s.snap.ChatEnded &&
		!s.snap.GuessPending && s.snap.Result == nil
	s.mu.Unlock()
}

func (s *Session) notify() {
	if s.opts.OnChange != nil {
		s.opts.OnChange(s.Snapshot())
	}
}

func (s *Session) record(event, detail string) {
	s.journal.Record(journal.Event{
		Scope:   journal.ScopeRoom,
		Session: s.conn.ID(),
		Name:    event,
		GameID:  s.opts.GameID,
		Role:    s.opts.Role.String(),
		Detail:  detail,
		TS:      s.conn.Clock().Now(),
	})
}
