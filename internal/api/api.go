// internal/api/api.go
// Request/response client for the companion HTTP API: queueing, polling,
// match acceptance and guess submission.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erilali/turing/internal/auth"
	"github.com/erilali/turing/internal/logger"
)

const (
	DefaultBaseURL = "http://localhost:8000/api"
	requestTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

// Error is a non-2xx response. Detail comes from the API's {"detail": ...}
// body when present, otherwise the status text.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Detail)
}

type Client struct {
	base  string
	http  *http.Client
	token auth.TokenSource
	log   *logger.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(base string, token auth.TokenSource, opts ...Option) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	c := &Client{
		base:  strings.TrimRight(base, "/"),
		http:  &http.Client{Timeout: requestTimeout},
		token: token,
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.OrNop(c.log)
	return c
}

type PollResult struct {
	Matched bool   `json:"matched"`
	GameID  string `json:"game_id,omitempty"`
}

// AcceptResult carries the game id once both players accepted; until then
// Waiting is set.
type AcceptResult struct {
	GameID  string `json:"game_id,omitempty"`
	Waiting bool   `json:"waiting,omitempty"`
}

type Game struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Side    string `json:"side"`
	Success *bool  `json:"success"`
}

// Enqueue puts the current user in the matchmaking queue.
func (c *Client) Enqueue(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/match/queue", nil, nil, nil)
}

func (c *Client) Poll(ctx context.Context) (PollResult, error) {
	var out PollResult
	err := c.do(ctx, http.MethodPost, "/match/poll", nil, nil, &out)
	return out, err
}

// Accept confirms matchID. The API reads the id from the query string;
// it is sent in the body as well.
func (c *Client) Accept(ctx context.Context, matchID string) (AcceptResult, error) {
	if matchID == "" {
		return AcceptResult{}, errors.New("api: empty match id")
	}
	var out AcceptResult
	q := url.Values{"match_id": {matchID}}
	err := c.do(ctx, http.MethodPost, "/match/accept", q, map[string]string{"match_id": matchID}, &out)
	return out, err
}

// Guess submits the interrogator's verdict for gameID and returns the
// finished game.
func (c *Client) Guess(ctx context.Context, gameID string, suspectAI bool) (Game, error) {
	if gameID == "" {
		return Game{}, errors.New("api: empty game id")
	}
	var out Game
	path := "/rooms/" + url.PathEscape(gameID) + "/guess"
	err := c.do(ctx, http.MethodPost, path, nil, map[string]bool{"suspect_ai": suspectAI}, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != nil {
		if token, err := c.token(); err == nil {
			req.Header.Set("Authorization", "Bearer "+token)
		} else {
			c.log.Debugf("%s %s without credentials: %v", method, path, err)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.log.WithFields(map[string]interface{}{
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debugf("%s %s", method, path)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode, Detail: http.StatusText(resp.StatusCode)}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(data, &payload) == nil && len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			apiErr.Detail = s
		} else {
			// validation errors arrive as a list of objects
			apiErr.Detail = string(payload.Detail)
		}
	}
	return apiErr
}
