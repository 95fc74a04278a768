// internal/conn/websocket_test.go
// gorilla transport tests against an httptest server.
package conn_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/erilali/turing/internal/conn"
	"github.com/erilali/turing/internal/message"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// matchServer greets every client with a match_found frame and forwards
// whatever the client writes to received.
func matchServer(t *testing.T, received chan<- []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		greeting := `{"action":"match_found","match_id":"m-42","role":"W","window":10,"ts":"2026-03-01T12:00:00"}`
		if err := ws.WriteMessage(websocket.TextMessage, []byte(greeting)); err != nil {
			return
		}
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			received <- data
			if strings.Contains(string(data), `"leave"`) {
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/match?token=" + token
}

func TestWebsocket_RoundTrip(t *testing.T) {
	received := make(chan []byte, 8)
	srv := matchServer(t, received)

	m := conn.New(conn.Options{URL: wsURL(srv, "secret"), MaxRetries: -1})
	t.Cleanup(func() {
		m.Close()
		<-m.Done()
	})
	r := record(m)

	m.Connect()
	r.expect(t, "open")

	got := r.message(t)
	require.IsType(t, message.MatchFound{}, got)
	found := got.(message.MatchFound)
	assert.Equal(t, "m-42", found.MatchID)
	assert.Equal(t, message.RoleHuman, found.Role)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), found.Stamp())

	m.Send(message.Accept{MatchID: "m-42"})
	select {
	case data := <-received:
		assert.Contains(t, string(data), `"action":"accept"`)
		assert.Contains(t, string(data), `"match_id":"m-42"`)
	case <-time.After(wait):
		t.Fatal("server received nothing")
	}

	// the server answers leave with an orderly close
	m.Send(message.Leave{})
	r.expect(t, "close", "give_up")
}

func TestWebsocket_DialFailureReportsStatus(t *testing.T) {
	srv := matchServer(t, make(chan []byte, 1))

	m := conn.New(conn.Options{URL: wsURL(srv, "wrong"), MaxRetries: -1})
	t.Cleanup(m.Close)

	var dialErr error
	errs := make(chan error, 1)
	m.Subscribe(conn.Hooks{OnError: func(err error) { errs <- err }})
	m.Connect()
	select {
	case dialErr = <-errs:
	case <-time.After(wait):
		t.Fatal("no dial error")
	}
	assert.Contains(t, dialErr.Error(), "401")
	assert.Contains(t, dialErr.Error(), "token=redacted")
	assert.NotContains(t, dialErr.Error(), "wrong")
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "wss://api.test/ws/rooms/r1?token=redacted", conn.Redact("wss://api.test/ws/rooms/r1?token=abc.def"))
	assert.Equal(t, "ws://api.test/ws/match", conn.Redact("ws://api.test/ws/match"))
}
