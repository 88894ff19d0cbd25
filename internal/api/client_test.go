package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tmars/client/internal/api"
)

func newTestServer(t *testing.T) (*httptest.Server, *mux.Router) {
	t.Helper()
	r := mux.NewRouter()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, r
}

func newTestClient(t *testing.T, srv *httptest.Server) *api.Client {
	t.Helper()
	c := api.NewClient(srv.URL)
	c.TokenPath = filepath.Join(t.TempDir(), "token.json")
	return c
}

func TestClient_GetGame(t *testing.T) {
	srv, r := newTestServer(t)
	r.HandleFunc("/api/v1/games/{gameId}", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "g1", mux.Vars(req)["gameId"])
		assert.Equal(t, "p1", req.URL.Query().Get("playerId"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"g1","generation":3}`))
	}).Methods(http.MethodGet)

	c := newTestClient(t, srv)
	snap, err := c.GetGame(context.Background(), "g1", "p1")
	require.NoError(t, err)

	var game struct {
		ID         string `json:"id"`
		Generation int    `json:"generation"`
	}
	require.NoError(t, json.Unmarshal(snap, &game))
	assert.Equal(t, "g1", game.ID)
	assert.Equal(t, 3, game.Generation)
}

func TestClient_GetGameNotFound(t *testing.T) {
	srv, r := newTestServer(t)
	r.HandleFunc("/api/v1/games/{gameId}", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such game", http.StatusNotFound)
	}).Methods(http.MethodGet)

	c := newTestClient(t, srv)
	snap, err := c.GetGame(context.Background(), "gone", "")
	assert.Nil(t, snap)
	require.ErrorIs(t, err, api.ErrGameNotFound)
}

func TestClient_GetGameServerErrorIsNotNotFound(t *testing.T) {
	srv, r := newTestServer(t)
	r.HandleFunc("/api/v1/games/{gameId}", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}).Methods(http.MethodGet)

	c := newTestClient(t, srv)
	_, err := c.GetGame(context.Background(), "g1", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, api.ErrGameNotFound)
}

func TestClient_CreateAndListGames(t *testing.T) {
	srv, r := newTestServer(t)
	r.HandleFunc("/api/v1/games", func(w http.ResponseWriter, req *http.Request) {
		var in api.CreateGameRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&in))
		assert.Equal(t, 4, in.MaxPlayers)
		_ = json.NewEncoder(w).Encode(api.CreateGameResponse{ID: "g-new"})
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/games", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]api.GameSummary{{ID: "g-new", Players: 1, MaxPlayers: 4}})
	}).Methods(http.MethodGet)

	c := newTestClient(t, srv)
	created, err := c.CreateGame(context.Background(), api.CreateGameRequest{MaxPlayers: 4})
	require.NoError(t, err)
	assert.Equal(t, "g-new", created.ID)

	games, err := c.ListGames(context.Background())
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "g-new", games[0].ID)
}

func TestClient_LoginStoresBearerToken(t *testing.T) {
	srv, r := newTestServer(t)
	r.HandleFunc("/api/v1/login", func(w http.ResponseWriter, req *http.Request) {
		var in api.LoginRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&in))
		assert.Equal(t, "nova", in.Username)
		_ = json.NewEncoder(w).Encode(api.LoginResponse{Token: "tok-123", Username: in.Username})
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/games", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "Bearer tok-123", req.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]api.GameSummary{})
	}).Methods(http.MethodGet)

	c := newTestClient(t, srv)
	tok, err := c.Login(context.Background(), "nova", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", tok)
	assert.Equal(t, "tok-123", c.LoadToken())

	_, err = c.ListGames(context.Background())
	require.NoError(t, err)

	c.ClearToken()
	assert.Empty(t, c.LoadToken())
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "nova",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func TestClient_TokenValid(t *testing.T) {
	c := api.NewClient("http://unused")
	c.TokenPath = filepath.Join(t.TempDir(), "token.json")

	assert.False(t, c.TokenValid(), "no token")

	require.NoError(t, c.SaveToken("garbage"))
	assert.False(t, c.TokenValid(), "unparseable token")

	require.NoError(t, c.SaveToken(signedToken(t, time.Now().Add(-time.Hour))))
	assert.False(t, c.TokenValid(), "expired token")

	require.NoError(t, c.SaveToken(signedToken(t, time.Now().Add(time.Hour))))
	assert.True(t, c.TokenValid())
}
