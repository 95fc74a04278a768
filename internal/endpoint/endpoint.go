// internal/endpoint/endpoint.go
// Package endpoint builds the realtime URLs for matchmaking and game rooms.
package endpoint

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/erilali/turing/internal/message"
)

// Match returns {base}/ws/match?token={token}.
func Match(base, token string) (string, error) {
	u, err := parse(base)
	if err != nil {
		return "", err
	}
	return build(u, token, "ws", "match"), nil
}

// Room returns {base}/ws/rooms/{gameID}/{role}?token={token}.
func Room(base, gameID string, role message.Role, token string) (string, error) {
	u, err := parse(base)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(gameID) == "" {
		return "", fmt.Errorf("room endpoint: empty game id")
	}
	if !role.Valid() {
		return "", fmt.Errorf("room endpoint: invalid role %q", role)
	}
	return build(u, token, "ws", "rooms", gameID, role.String()), nil
}

// parse accepts http(s) and ws(s) bases; http maps to ws and https to wss.
func parse(base string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, fmt.Errorf("parse base %q: %w", base, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("base %q: unsupported scheme %q", base, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base %q: missing host", base)
	}
	return u, nil
}

func build(u *url.URL, token string, segments ...string) string {
	path := strings.TrimRight(u.Path, "/")
	for _, s := range segments {
		path += "/" + url.PathEscape(s)
	}
	q := url.Values{}
	q.Set("token", token)
	return u.Scheme + "://" + u.Host + path + "?" + q.Encode()
}
