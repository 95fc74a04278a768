// internal/conn/websocket.go
package conn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	webSocketReadDeadline  = 60 * time.Second
	webSocketWriteDeadline = 10 * time.Second
	webSocketPingPeriod    = (webSocketReadDeadline * 9) / 10 // Must be less than readDeadline
	webSocketHandshake     = 10 * time.Second
	maxMessageSize         = 64 * 1024
)

// ErrClosed marks an orderly close of the transport, as opposed to a
// transport failure.
var ErrClosed = errors.New("connection closed")

// Socket is one established transport. ReadMessage is only called from the
// read pump and WriteMessage only from the write pump; Close may be called
// from anywhere.
type Socket interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Pinger is implemented by sockets that need keepalive frames.
type Pinger interface {
	Ping() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}

// WebsocketDialer dials text-frame WebSocket endpoints with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: webSocketHandshake,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context, rawURL string) (Socket, error) {
	c, resp, err := d.Dialer.DialContext(ctx, rawURL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", Redact(rawURL), resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", Redact(rawURL), err)
	}

	c.SetReadLimit(maxMessageSize)
	c.SetReadDeadline(time.Now().Add(webSocketReadDeadline))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(webSocketReadDeadline))
		return nil
	})
	return &wsSocket{conn: c}, nil
}

type wsSocket struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func (s *wsSocket) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, fmt.Errorf("%w: %v", ErrClosed, err)
			}
			return nil, err
		}
		s.conn.SetReadDeadline(time.Now().Add(webSocketReadDeadline))
		// binary frames are not part of the protocol
		if kind != websocket.TextMessage {
			continue
		}
		return data, nil
	}
}

func (s *wsSocket) WriteMessage(data []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(webSocketWriteDeadline))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSocket) Ping() error {
	s.conn.SetWriteDeadline(time.Now().Add(webSocketWriteDeadline))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

func (s *wsSocket) Close() error {
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(webSocketWriteDeadline))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// Redact hides the bearer credential in an endpoint URL so it can be logged.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "redacted")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
