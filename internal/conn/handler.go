// internal/conn/handler.go
// Handler interface and its function-field adapter.
package conn

import "github.com/erilali/turing/internal/message"

// Handler receives lifecycle events and decoded messages. Every method is
// called on the Manager's loop goroutine, in subscription order.
type Handler interface {
	HandleOpen()
	HandleClose()
	HandleError(err error)
	HandleReconnect(attempt int)
	HandleGiveUp()
	HandleMessage(msg message.Message)
}

// Hooks adapts plain functions to Handler. Nil fields are skipped.
type Hooks struct {
	OnOpen      func()
	OnClose     func()
	OnError     func(err error)
	OnReconnect func(attempt int)
	OnGiveUp    func()
	OnMessage   func(msg message.Message)
}

func (h Hooks) HandleOpen() {
	if h.OnOpen != nil {
		h.OnOpen()
	}
}

func (h Hooks) HandleClose() {
	if h.OnClose != nil {
		h.OnClose()
	}
}

func (h Hooks) HandleError(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

func (h Hooks) HandleReconnect(attempt int) {
	if h.OnReconnect != nil {
		h.OnReconnect(attempt)
	}
}

func (h Hooks) HandleGiveUp() {
	if h.OnGiveUp != nil {
		h.OnGiveUp()
	}
}

func (h Hooks) HandleMessage(msg message.Message) {
	if h.OnMessage != nil {
		h.OnMessage(msg)
	}
}
