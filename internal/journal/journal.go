// internal/journal/journal.go
// Package journal mirrors session events to an external bus so a match or
// room can be replayed or watched from outside the client.
package journal

import (
	"strings"
	"sync"
	"time"
)

// Scopes.
const (
	ScopeMatch = "match"
	ScopeRoom  = "room"
)

const subjectRoot = "sessions"

// Event is one state transition of a match or room session.
type Event struct {
	Scope   string    `json:"scope"`
	Session string    `json:"session"`
	Name    string    `json:"event"`
	MatchID string    `json:"match_id,omitempty"`
	GameID  string    `json:"game_id,omitempty"`
	Role    string    `json:"role,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	TS      time.Time `json:"ts"`
}

// Subject is the bus subject for e, e.g. "sessions.match.match_found".
func (e Event) Subject() string {
	return strings.Join([]string{subjectRoot, token(e.Scope), token(e.Name)}, ".")
}

// token keeps a subject segment free of the separators NATS reserves.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

// Recorder accepts events without blocking the caller. Delivery is best
// effort; failures are logged by the implementation.
type Recorder interface {
	Record(e Event)
	Close() error
}

type Nop struct{}

func (Nop) Record(Event) {}
func (Nop) Close() error { return nil }

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}

// Memory keeps events in process.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Record(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *Memory) Close() error { return nil }

// Events returns a copy of everything recorded so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Names lists the recorded event names in order.
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.events))
	for i, e := range m.events {
		names[i] = e.Name
	}
	return names
}
