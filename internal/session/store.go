// Package session persists the player's current game membership so a
// restarted client can offer to rejoin the game it was in.
package session

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Session is the one record the store owns. It is written only after the
// server has confirmed a join or reconnect.
type Session struct {
	GameID     string    `json:"gameId"`
	PlayerID   string    `json:"playerId"`
	PlayerName string    `json:"playerName"`
	SavedAt    time.Time `json:"savedAt"`
}

// Store reads and writes the single session file. The record is always
// replaced wholesale, never patched.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore() *Store {
	return &Store{path: ConfigPath("session.json")}
}

// NewStoreAt pins the store to an explicit file path.
func NewStoreAt(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Save(sess Session) error {
	if sess.SavedAt.IsZero() {
		sess.SavedAt = time.Now().UTC()
	}
	b, err := json.Marshal(&sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.WriteFile(s.path, b, 0o600)
}

// Load returns the saved session, or nil when none exists. A record that
// fails to parse or lacks its identifying fields is treated as absent and
// removed, so a corrupt file can never wedge startup.
func (s *Store) Load() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		_ = os.Remove(s.path)
		return nil
	}
	if sess.GameID == "" || sess.PlayerName == "" {
		_ = os.Remove(s.path)
		return nil
	}
	return &sess
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = os.Remove(s.path)
}
