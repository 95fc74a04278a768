// internal/conn/manager_test.go
// Manager lifecycle and reconnect policy tests.
package conn_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/erilali/turing/internal/conn"
	"github.com/erilali/turing/internal/conn/conntest"
	"github.com/erilali/turing/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = time.Second

type recorder struct {
	events chan string
	msgs   chan message.Message
}

func record(m *conn.Manager) *recorder {
	r := &recorder{events: make(chan string, 128), msgs: make(chan message.Message, 64)}
	m.Subscribe(conn.Hooks{
		OnOpen:      func() { r.events <- "open" },
		OnClose:     func() { r.events <- "close" },
		OnError:     func(error) { r.events <- "error" },
		OnReconnect: func(n int) { r.events <- fmt.Sprintf("reconnect:%d", n) },
		OnGiveUp:    func() { r.events <- "give_up" },
		OnMessage:   func(msg message.Message) { r.msgs <- msg },
	})
	return r
}

func (r *recorder) expect(t *testing.T, want ...string) {
	t.Helper()
	for _, w := range want {
		select {
		case got := <-r.events:
			require.Equal(t, w, got)
		case <-time.After(wait):
			t.Fatalf("timed out waiting for %q", w)
		}
	}
}

func (r *recorder) expectQuiet(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case got := <-r.events:
		t.Fatalf("unexpected event %q", got)
	case <-time.After(within):
	}
}

func (r *recorder) message(t *testing.T) message.Message {
	t.Helper()
	select {
	case msg := <-r.msgs:
		return msg
	case <-time.After(wait):
		t.Fatalf("timed out waiting for a message")
		return nil
	}
}

func newManager(t *testing.T, d *conntest.Dialer, retries int) *conn.Manager {
	t.Helper()
	m := conn.New(conn.Options{
		URL:               "ws://match.test/ws/match?token=secret",
		Dialer:            d,
		MaxRetries:        retries,
		ReconnectInterval: 5 * time.Millisecond,
	})
	t.Cleanup(func() {
		m.Close()
		<-m.Done()
	})
	return m
}

// settle waits until everything queued on the loop has run.
func settle(t *testing.T, m *conn.Manager) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, m.Do(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(wait):
		t.Fatal("loop did not drain")
	}
}

func TestManager_OpenDeliversAndSends(t *testing.T) {
	d := conntest.NewDialer()
	m := newManager(t, d, 0)
	r := record(m)

	m.Connect()
	sock := d.Next(t, wait)
	r.expect(t, "open")
	assert.Equal(t, conn.StateOpen, m.State())
	assert.Equal(t, []string{"ws://match.test/ws/match?token=secret"}, d.URLs())

	m.Send(message.Join{})
	sent := sock.Expect(t, wait)
	assert.Equal(t, message.ActionJoin, sent.Action())
	assert.False(t, sent.Stamp().IsZero())

	sock.Push(message.MatchFound{MatchID: "m1", Role: message.RoleInterrogator, Window: 10})
	got := r.message(t)
	require.IsType(t, message.MatchFound{}, got)
	assert.Equal(t, "m1", got.(message.MatchFound).MatchID)
}

func TestManager_SendWhileClosedIsDropped(t *testing.T) {
	d := conntest.NewDialer()
	m := newManager(t, d, 0)
	r := record(m)

	m.Send(message.Join{})
	m.Connect()
	sock := d.Next(t, wait)
	r.expect(t, "open")

	sock.ExpectNone(t, 50*time.Millisecond)
}

func TestManager_ConnectWhileOpenIsNoop(t *testing.T) {
	d := conntest.NewDialer()
	m := newManager(t, d, 0)
	r := record(m)

	m.Connect()
	m.Connect()
	d.Next(t, wait)
	r.expect(t, "open")
	m.Connect()
	settle(t, m)

	r.expectQuiet(t, 50*time.Millisecond)
	assert.Equal(t, 1, d.Dials())
}

func TestManager_UndecodableFrameIsSkipped(t *testing.T) {
	d := conntest.NewDialer()
	m := newManager(t, d, 0)
	r := record(m)

	m.Connect()
	sock := d.Next(t, wait)
	r.expect(t, "open")

	sock.PushRaw([]byte("not json"))
	sock.PushRaw([]byte(`{"action":"shrug"}`))
	sock.PushRaw([]byte(`{"action":"match_found","role":"I"}`))
	sock.Push(message.Requeue{})

	assert.IsType(t, message.Requeue{}, r.message(t))
	assert.Equal(t, conn.StateOpen, m.State())
	r.expectQuiet(t, 50*time.Millisecond)
}

func TestManager_ReconnectsAfterDropAndResetsRetries(t *testing.T) {
	d := conntest.NewDialer()
	m := newManager(t, d, 0)
	r := record(m)

	m.Connect()
	sock := d.Next(t, wait)
	r.expect(t, "open")

	sock.Drop(errors.New("connection reset"))
	r.expect(t, "error", "close", "reconnect:1")

	d.Next(t, wait)
	r.expect(t, "open")
	settle(t, m)
	c := m.Snapshot()
	assert.Equal(t, 0, c.Retries)
	assert.False(t, c.Exhausted)
	assert.Equal(t, 2, d.Dials())
}

func TestManager_OrderlyCloseStillReconnects(t *testing.T) {
	d := conntest.NewDialer()
	m := newManager(t, d, 0)
	r := record(m)

	m.Connect()
	sock := d.Next(t, wait)
	r.expect(t, "open")

	sock.Drop(nil)
	r.expect(t, "close", "reconnect:1")
	d.Next(t, wait)
	r.expect(t, "open")
}

func TestManager_GivesUpAfterMaxRetries(t *testing.T) {
	d := conntest.NewDialer()
	m := newManager(t, d, 0)
	r := record(m)

	m.Connect()
	sock := d.Next(t, wait)
	r.expect(t, "open")

	d.FailAll(conntest.ErrRefused)
	sock.Drop(errors.New("server went away"))
	r.expect(t, "error", "close")
	for attempt := 1; attempt <= conn.DefaultMaxRetries; attempt++ {
		r.expect(t, fmt.Sprintf("reconnect:%d", attempt), "error", "close")
	}
	r.expect(t, "give_up")

	r.expectQuiet(t, 50*time.Millisecond)
	assert.Equal(t, 1+conn.DefaultMaxRetries, d.Dials())

	c := m.Snapshot()
	assert.True(t, c.Exhausted)
	assert.Equal(t, conn.DefaultMaxRetries, c.Retries)
	assert.Equal(t, conn.StateClosed, c.State)
}

func TestManager_ExplicitConnectAfterGiveUpStartsFreshBudget(t *testing.T) {
	d := conntest.NewDialer()
	m := newManager(t, d, 1)
	r := record(m)

	d.FailAll(conntest.ErrRefused)
	m.Connect()
	r.expect(t, "error", "close", "reconnect:1", "error", "close", "give_up")
	assert.Equal(t, 2, d.Dials())

	d.FailAll(nil)
	m.Connect()
	d.Next(t, wait)
	r.expect(t, "open")
	settle(t, m)
	c := m.Snapshot()
	assert.False(t, c.Exhausted)
	assert.Equal(t, 0, c.Retries)
}

func TestManager_NegativeMaxRetriesNeverRedials(t *testing.T) {
	d := conntest.NewDialer()
	m := newManager(t, d, -1)
	r := record(m)

	d.FailNext(nil)
	m.Connect()
	r.expect(t, "error", "close", "give_up")
	r.expectQuiet(t, 50*time.Millisecond)
	assert.Equal(t, 1, d.Dials())
}

func TestManager_DisconnectSuppressesReconnect(t *testing.T) {
	d := conntest.NewDialer()
	m := newManager(t, d, 0)
	r := record(m)

	m.Connect()
	sock := d.Next(t, wait)
	r.expect(t, "open")

	m.Disconnect()
	r.expect(t, "close")
	select {
	case <-sock.Closed():
	case <-time.After(wait):
		t.Fatal("socket was not closed")
	}

	r.expectQuiet(t, 50*time.Millisecond)
	c := m.Snapshot()
	assert.True(t, c.ManualClose)
	assert.Equal(t, conn.StateClosed, c.State)
	assert.Equal(t, 0, c.Retries)
	assert.Equal(t, 1, d.Dials())

	m.Connect()
	d.Next(t, wait)
	r.expect(t, "open")
	settle(t, m)
	assert.False(t, m.Snapshot().ManualClose)
}

func TestManager_DisconnectCancelsPendingRetry(t *testing.T) {
	d := conntest.NewDialer()
	m := conn.New(conn.Options{
		URL:               "ws://match.test/ws/match",
		Dialer:            d,
		ReconnectInterval: 100 * time.Millisecond,
	})
	defer m.Close()
	r := record(m)

	d.FailNext(nil)
	m.Connect()
	r.expect(t, "error", "close", "reconnect:1")
	m.Disconnect()
	settle(t, m)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, d.Dials())
	r.expectQuiet(t, 20*time.Millisecond)
}

func TestManager_UnsubscribeStopsDelivery(t *testing.T) {
	d := conntest.NewDialer()
	m := newManager(t, d, 0)
	r := record(m)

	calls := 0
	unsubscribe := m.Subscribe(conn.Hooks{OnOpen: func() { calls++ }})
	unsubscribe()

	m.Connect()
	d.Next(t, wait)
	r.expect(t, "open")
	settle(t, m)
	assert.Equal(t, 0, calls)
}

func TestManager_CloseStopsLoop(t *testing.T) {
	d := conntest.NewDialer()
	m := conn.New(conn.Options{URL: "ws://match.test/ws/match", Dialer: d})
	r := record(m)

	m.Connect()
	d.Next(t, wait)
	r.expect(t, "open")

	m.Close()
	r.expect(t, "close")
	select {
	case <-m.Done():
	case <-time.After(wait):
		t.Fatal("loop did not exit")
	}
	assert.False(t, m.Do(func() {}))
}
