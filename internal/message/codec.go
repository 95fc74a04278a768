// internal/message/codec.go
// Decodes inbound frames and encodes outbound messages.
package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// naiveISO is the timestamp layout the API emits when it forgets the offset.
const naiveISO = "2006-01-02T15:04:05.999999999"

type variant struct {
	required []string
	decode   func(raw []byte, ts time.Time) (Message, error)
}

var variants = map[Action]variant{
	ActionJoin:         {decode: into[Join, *Join]},
	ActionLeave:        {decode: into[Leave, *Leave]},
	ActionAccept:       {required: []string{"match_id"}, decode: into[Accept, *Accept]},
	ActionDecline:      {required: []string{"match_id"}, decode: into[Decline, *Decline]},
	ActionMessage:      {required: []string{"sender", "recipient", "body"}, decode: into[Chat, *Chat]},
	ActionGuess:        {required: []string{"interrogator_id", "suspect_ai_id", "suspect_human_id"}, decode: into[Guess, *Guess]},
	ActionMatchFound:   {required: []string{"match_id", "role", "window"}, decode: into[MatchFound, *MatchFound]},
	ActionMatched:      {required: []string{"game_id"}, decode: into[Matched, *Matched]},
	ActionTimeout:      {decode: into[Timeout, *Timeout]},
	ActionError:        {decode: into[ServerError, *ServerError]},
	ActionRequeue:      {decode: into[Requeue, *Requeue]},
	ActionChatEnded:    {decode: into[ChatEnded, *ChatEnded]},
	ActionGuessResult:  {required: []string{"is_correct"}, decode: into[GuessResult, *GuessResult]},
	ActionGameStarting: {required: []string{"game_id"}, decode: into[GameStarting, *GameStarting]},
}

func (m *Meta) setStamp(ts time.Time) { m.TS = ts }

func into[T any, P interface {
	*T
	setStamp(time.Time)
}](raw []byte, ts time.Time) (Message, error) {
	var v T
	p := P(&v)
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, err
	}
	p.setStamp(ts)
	return any(v).(Message), nil
}

// Decode parses one inbound frame. Every failure is a *DecodeError; the
// caller is expected to log and drop it rather than tear the connection
// down. Frames without a timestamp are stamped with now.
func Decode(raw []byte, now time.Time) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &DecodeError{Err: ErrMalformed, Cause: err}
	}
	if fields == nil {
		return nil, &DecodeError{Err: ErrMalformed, Cause: fmt.Errorf("frame is not an object")}
	}

	action, err := discriminant(fields)
	if err != nil {
		return nil, err
	}
	if _, ok := fields["action"]; !ok {
		// discriminant filled in a legacy frame; decode the rewritten form
		raw, _ = json.Marshal(fields)
	}
	v, ok := variants[action]
	if !ok {
		return nil, &DecodeError{Action: string(action), Err: ErrUnknownAction}
	}
	for _, name := range v.required {
		if !present(fields, name) {
			return nil, &DecodeError{Action: string(action), Field: name, Err: ErrMissingField}
		}
	}

	msg, err := v.decode(raw, timestamp(fields, now))
	if err != nil {
		return nil, &DecodeError{Action: string(action), Err: ErrInvalidField, Cause: err}
	}
	return msg, nil
}

// discriminant reads the action field. The API still emits two kinds of
// frames without one: bare {"error": "..."} replies and relayed AI chat
// lines. Both are mapped onto their typed variants.
func discriminant(fields map[string]json.RawMessage) (Action, error) {
	raw, ok := fields["action"]
	if !ok {
		switch {
		case present(fields, "error"):
			fields["detail"] = fields["error"]
			return ActionError, nil
		case present(fields, "sender") && present(fields, "recipient") && present(fields, "body"):
			return ActionMessage, nil
		}
		return "", &DecodeError{Field: "action", Err: ErrMalformed, Cause: fmt.Errorf("missing discriminant")}
	}
	var action string
	if err := json.Unmarshal(raw, &action); err != nil {
		return "", &DecodeError{Field: "action", Err: ErrMalformed, Cause: err}
	}
	return Action(action), nil
}

func present(fields map[string]json.RawMessage, name string) bool {
	raw, ok := fields[name]
	return ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func timestamp(fields map[string]json.RawMessage, now time.Time) time.Time {
	raw, ok := fields["ts"]
	if !ok {
		return now
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return now
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts
	}
	if ts, err := time.ParseInLocation(naiveISO, s, time.UTC); err == nil {
		return ts
	}
	return now
}

// Encode renders m as {"action": ..., "ts": ..., ...fields}. A zero
// timestamp is stamped with now.
func Encode(m Message, now time.Time) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode: nil message")
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Action(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Action(), err)
	}

	ts := m.Stamp()
	if ts.IsZero() {
		ts = now
	}
	fields["action"], _ = json.Marshal(m.Action())
	fields["ts"], _ = json.Marshal(ts.UTC().Format(time.RFC3339Nano))
	return json.Marshal(fields)
}
