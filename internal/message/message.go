// internal/message/message.go
// Protocol messages exchanged with the match and room endpoints.
package message

import "time"

// Action is the wire discriminant carried in every frame's "action" field.
type Action string

// Commands, client to server.
const (
	ActionJoin    Action = "join"
	ActionLeave   Action = "leave"
	ActionAccept  Action = "accept"
	ActionDecline Action = "decline"
	ActionMessage Action = "message" // also relayed server to client
	ActionGuess   Action = "guess"
)

// Events, server to client.
const (
	ActionMatchFound   Action = "match_found"
	ActionMatched      Action = "matched"
	ActionTimeout      Action = "timeout"
	ActionError        Action = "error"
	ActionRequeue      Action = "requeue"
	ActionChatEnded    Action = "chat_ended"
	ActionGuessResult  Action = "guess_result"
	ActionGameStarting Action = "game_starting"
)

// Message is the closed set of protocol messages. Only types in this package
// implement it.
type Message interface {
	Action() Action
	Stamp() time.Time
	isMessage()
}

// Meta carries the timestamp shared by every variant. A zero TS is stamped by
// Encode at send time or by Decode on receipt.
type Meta struct {
	TS time.Time `json:"-"`
}

func (m Meta) Stamp() time.Time { return m.TS }
func (Meta) isMessage()         {}

type Join struct{ Meta }

type Leave struct{ Meta }

type Accept struct {
	Meta
	MatchID string `json:"match_id"`
}

type Decline struct {
	Meta
	MatchID string `json:"match_id"`
}

// Chat is a free-form message between the interrogator and one witness.
type Chat struct {
	Meta
	Sender    Role   `json:"sender"`
	Recipient Role   `json:"recipient"`
	Body      string `json:"body"`
}

// Guess is the interrogator's final verdict on which witness is the AI.
type Guess struct {
	Meta
	InterrogatorID string `json:"interrogator_id"`
	SuspectAIID    string `json:"suspect_ai_id"`
	SuspectHumanID string `json:"suspect_human_id"`
}

// MatchFound opens a confirmation window of Window seconds.
type MatchFound struct {
	Meta
	MatchID string `json:"match_id"`
	Role    Role   `json:"role"`
	Window  int    `json:"window"`
}

type Matched struct {
	Meta
	GameID string `json:"game_id"`
}

type Timeout struct {
	Meta
	Detail string `json:"detail,omitempty"`
}

// ServerError is the server's "error" event.
type ServerError struct {
	Meta
	Detail string `json:"detail,omitempty"`
}

type Requeue struct{ Meta }

type ChatEnded struct {
	Meta
	Detail string `json:"detail,omitempty"`
}

type GuessResult struct {
	Meta
	IsCorrect bool `json:"is_correct"`
}

// GameStarting precedes Matched while the server creates the game.
type GameStarting struct {
	Meta
	GameID string `json:"game_id"`
	Detail string `json:"detail,omitempty"`
}

func (Join) Action() Action         { return ActionJoin }
func (Leave) Action() Action        { return ActionLeave }
func (Accept) Action() Action       { return ActionAccept }
func (Decline) Action() Action      { return ActionDecline }
func (Chat) Action() Action         { return ActionMessage }
func (Guess) Action() Action        { return ActionGuess }
func (MatchFound) Action() Action   { return ActionMatchFound }
func (Matched) Action() Action      { return ActionMatched }
func (Timeout) Action() Action      { return ActionTimeout }
func (ServerError) Action() Action  { return ActionError }
func (Requeue) Action() Action      { return ActionRequeue }
func (ChatEnded) Action() Action    { return ActionChatEnded }
func (GuessResult) Action() Action  { return ActionGuessResult }
func (GameStarting) Action() Action { return ActionGameStarting }
