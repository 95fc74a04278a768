// internal/message/errors.go
// Decode error type and its sentinel causes.
package message

import (
	"errors"
	"strings"
)

var (
	ErrMalformed     = errors.New("malformed frame")
	ErrUnknownAction = errors.New("unknown action")
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidField  = errors.New("invalid field")
)

// DecodeError describes an inbound frame that could not be turned into a
// Message. Err is one of the sentinels above; Cause, when set, is the
// underlying parse error.
type DecodeError struct {
	Action string
	Field  string
	Err    error
	Cause  error
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("decode")
	if e.Action != "" {
		b.WriteString(" " + e.Action)
	}
	b.WriteString(": " + e.Err.Error())
	if e.Field != "" {
		b.WriteString(" " + e.Field)
	}
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *DecodeError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}
