// internal/journal/redis_test.go
// Redis journal tests against miniredis.
package journal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// subscribe returns the message channel of a confirmed subscription.
func subscribe(t *testing.T, addr, channel string) <-chan *redis.Message {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sub := client.Subscribe(ctx, channel)
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	return sub.Channel()
}

func recvEvent(t *testing.T, ch <-chan *redis.Message) (string, Event) {
	t.Helper()
	select {
	case msg := <-ch:
		var e Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &e))
		return msg.Channel, e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for journal event")
		return "", Event{}
	}
}

func TestRedis_PublishesAndFlushesOnClose(t *testing.T) {
	mr := miniredis.RunT(t)
	ch := subscribe(t, mr.Addr(), "test:sessions")

	r, err := NewRedis(RedisConfig{Addr: mr.Addr(), Prefix: "test:"}, nil)
	require.NoError(t, err)

	r.Record(Event{Scope: ScopeMatch, Session: "c0ffee", Name: "matched", GameID: "g1"})
	r.Record(Event{Scope: ScopeRoom, Session: "c0ffee", Name: "guess_result", Detail: "correct"})
	require.NoError(t, r.Close())

	channel, e := recvEvent(t, ch)
	assert.Equal(t, "test:sessions", channel)
	assert.Equal(t, "matched", e.Name)
	assert.Equal(t, "g1", e.GameID)

	_, e = recvEvent(t, ch)
	assert.Equal(t, "guess_result", e.Name)
	assert.Equal(t, "correct", e.Detail)
}

func TestRedis_RecordAfterCloseIsDropped(t *testing.T) {
	mr := miniredis.RunT(t)

	r, err := NewRedis(RedisConfig{Addr: mr.Addr(), Prefix: "test:"}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	assert.NotPanics(t, func() { r.Record(Event{Name: "late"}) })
	assert.NoError(t, r.Close())
}

func TestNewRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedis(RedisConfig{Addr: addr}, nil)
	assert.Error(t, err)
}
