// internal/endpoint/endpoint_test.go
// Endpoint URL builder tests.
package endpoint

import (
	"testing"

	"github.com/erilali/turing/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8000/api", "ws://localhost:8000/api/ws/match?token=abc"},
		{"https://game.example.com/api/", "wss://game.example.com/api/ws/match?token=abc"},
		{"wss://game.example.com", "wss://game.example.com/ws/match?token=abc"},
		{"WS://localhost:8000/api", "ws://localhost:8000/api/ws/match?token=abc"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := Match(tt.base, "abc")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoom(t *testing.T) {
	got, err := Room("https://game.example.com/api", "5e1f", message.RoleHuman, "a.b+c/d")
	require.NoError(t, err)
	assert.Equal(t, "wss://game.example.com/api/ws/rooms/5e1f/H?token=a.b%2Bc%2Fd", got)
}

func TestRejects(t *testing.T) {
	_, err := Match("ftp://host", "t")
	assert.Error(t, err)
	_, err = Match("localhost:8000", "t")
	assert.Error(t, err)
	_, err = Room("http://host/api", "", message.RoleInterrogator, "t")
	assert.Error(t, err)
	_, err = Room("http://host/api", "g1", message.Role("W"), "t")
	assert.Error(t, err)
}
