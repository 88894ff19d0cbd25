package api

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tmars/client/internal/session"
)

type RegisterRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

func (c *Client) Register(ctx context.Context, username, password string) error {
	req := RegisterRequest{Username: username, Password: password, PasswordConfirm: password}
	return c.postJSON(ctx, "/register", req, nil)
}

// Login authenticates and persists the returned token for both the REST
// client and the websocket dial.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out LoginResponse
	if err := c.postJSON(ctx, "/login", LoginRequest{Username: username, Password: password}, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errors.New("login: empty token in response")
	}
	if err := c.SaveToken(out.Token); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (c *Client) tokenPath() string {
	if c.TokenPath != "" {
		return c.TokenPath
	}
	return session.ConfigPath("token.json")
}

func (c *Client) SaveToken(tok string) error {
	return os.WriteFile(c.tokenPath(), []byte(strings.TrimSpace(tok)), 0o600)
}

func (c *Client) LoadToken() string {
	b, _ := os.ReadFile(c.tokenPath())
	return strings.TrimSpace(string(b))
}

func (c *Client) ClearToken() {
	_ = os.Remove(c.tokenPath())
}

// TokenValid peeks at the stored token's exp claim without verifying the
// signature (only the server holds the key) and reports whether it is
// worth presenting at all.
func (c *Client) TokenValid() bool {
	tok := c.LoadToken()
	if tok == "" {
		return false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(tok, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil {
		return false
	}
	if exp == nil {
		// no expiry claim, assume usable
		return true
	}
	return exp.After(time.Now())
}
