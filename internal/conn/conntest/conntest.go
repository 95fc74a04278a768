// internal/conn/conntest/conntest.go
// Package conntest provides an in-memory transport for exercising code
// built on conn.Manager without a network.
package conntest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/erilali/turing/internal/conn"
	"github.com/erilali/turing/internal/message"
)

// ErrRefused is the default dial failure.
var ErrRefused = errors.New("conntest: connection refused")

// Dialer hands out in-memory Sockets. Failures queued with FailNext are
// consumed one per dial before FailAll is consulted.
type Dialer struct {
	mu       sync.Mutex
	next     []error
	all      error
	urls     []string
	accepted chan *Socket
}

func NewDialer() *Dialer {
	return &Dialer{accepted: make(chan *Socket, 16)}
}

// FailNext makes the next len(errs) dials fail with the given errors.
// A nil entry is replaced with ErrRefused.
func (d *Dialer) FailNext(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, err := range errs {
		if err == nil {
			err = ErrRefused
		}
		d.next = append(d.next, err)
	}
}

// FailAll makes every dial fail with err until called again with nil.
func (d *Dialer) FailAll(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.all = err
}

func (d *Dialer) Dial(ctx context.Context, url string) (conn.Socket, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	var err error
	switch {
	case len(d.next) > 0:
		err = d.next[0]
		d.next = d.next[1:]
	case d.all != nil:
		err = d.all
	}
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s := NewSocket()
	d.accepted <- s
	return s, nil
}

// Dials reports how many dial attempts were made.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *Dialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// Next waits for the next successful dial.
func (d *Dialer) Next(t testing.TB, within time.Duration) *Socket {
	t.Helper()
	select {
	case s := <-d.accepted:
		return s
	case <-time.After(within):
		t.Fatalf("conntest: no connection accepted within %v", within)
		return nil
	}
}

type frame struct {
	data []byte
	err  error
}

// Socket is the server end of an in-memory connection. Frames pushed into
// it are read by the Manager; frames the Manager writes land in Sent.
type Socket struct {
	inbound   chan frame
	sent      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func NewSocket() *Socket {
	return &Socket{
		inbound: make(chan frame, 64),
		sent:    make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (s *Socket) ReadMessage() ([]byte, error) {
	select {
	case f := <-s.inbound:
		return f.data, f.err
	case <-s.closed:
		return nil, fmt.Errorf("%w: socket closed", conn.ErrClosed)
	}
}

func (s *Socket) WriteMessage(data []byte) error {
	select {
	case <-s.closed:
		return fmt.Errorf("%w: socket closed", conn.ErrClosed)
	default:
	}
	select {
	case s.sent <- data:
		return nil
	case <-s.closed:
		return fmt.Errorf("%w: socket closed", conn.ErrClosed)
	}
}

func (s *Socket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// Closed is closed once either side closes the socket.
func (s *Socket) Closed() <-chan struct{} { return s.closed }

// Push delivers msg to the reader as a server frame.
func (s *Socket) Push(msg message.Message) {
	data, err := message.Encode(msg, time.Now())
	if err != nil {
		panic(err)
	}
	s.PushRaw(data)
}

func (s *Socket) PushRaw(data []byte) {
	s.inbound <- frame{data: data}
}

// Drop fails the reader with err, simulating a lost connection. A nil err
// is an orderly close.
func (s *Socket) Drop(err error) {
	if err == nil {
		err = fmt.Errorf("%w: dropped by peer", conn.ErrClosed)
	}
	s.inbound <- frame{err: err}
}

// Expect waits for the next frame written by the client and decodes it.
func (s *Socket) Expect(t testing.TB, within time.Duration) message.Message {
	t.Helper()
	select {
	case data := <-s.sent:
		msg, err := message.Decode(data, time.Now())
		if err != nil {
			t.Fatalf("conntest: client sent undecodable frame %s: %v", data, err)
		}
		return msg
	case <-time.After(within):
		t.Fatalf("conntest: nothing sent within %v", within)
		return nil
	}
}

// ExpectNone fails if the client writes anything within the window.
func (s *Socket) ExpectNone(t testing.TB, within time.Duration) {
	t.Helper()
	select {
	case data := <-s.sent:
		t.Fatalf("conntest: unexpected frame %s", data)
	case <-time.After(within):
	}
}
