// Package api is the REST side channel next to the realtime socket:
// account endpoints plus read-only game queries used to validate a saved
// session before re-establishing the live connection.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"tmars/client/internal/protocol"
)

// ErrGameNotFound distinguishes "the game is gone" from transient
// failures, so callers can clear an orphaned session without treating
// every HTTP hiccup as a lost game.
var ErrGameNotFound = errors.New("game not found")

type Client struct {
	base string
	http *http.Client

	// TokenPath overrides where the bearer token lives; empty means the
	// default config-dir location.
	TokenPath string
}

func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 8 * time.Second},
	}
}

func (c *Client) url(path string) string {
	return c.base + "/api/v1" + path
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if tok := c.LoadToken(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return c.http.Do(req)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrGameNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// GetGame fetches one game, or ErrGameNotFound when the server reports
// 404. The payload comes back opaque; existence is what callers check.
func (c *Client) GetGame(ctx context.Context, gameID, playerID string) (protocol.Snapshot, error) {
	path := "/games/" + neturl.PathEscape(gameID)
	if playerID != "" {
		path += "?playerId=" + neturl.QueryEscape(playerID)
	}
	var snap json.RawMessage
	if err := c.getJSON(ctx, path, &snap); err != nil {
		if errors.Is(err, ErrGameNotFound) {
			return nil, fmt.Errorf("game %s: %w", gameID, ErrGameNotFound)
		}
		return nil, err
	}
	return protocol.Snapshot(snap), nil
}

type GameSummary struct {
	ID         string `json:"id"`
	Status     string `json:"status,omitempty"`
	Players    int    `json:"players,omitempty"`
	MaxPlayers int    `json:"maxPlayers,omitempty"`
}

func (c *Client) ListGames(ctx context.Context) ([]GameSummary, error) {
	var out []GameSummary
	if err := c.getJSON(ctx, "/games", &out); err != nil {
		return nil, err
	}
	return out, nil
}

type CreateGameRequest struct {
	MaxPlayers int `json:"maxPlayers,omitempty"`
}

type CreateGameResponse struct {
	ID string `json:"id"`
}

func (c *Client) CreateGame(ctx context.Context, req CreateGameRequest) (CreateGameResponse, error) {
	var out CreateGameResponse
	if err := c.postJSON(ctx, "/games", req, &out); err != nil {
		return CreateGameResponse{}, err
	}
	return out, nil
}
