package realtime

import (
	"context"
	"errors"
	"fmt"

	"tmars/client/internal/api"
	"tmars/client/internal/protocol"
)

// ErrNoSession means nothing was persisted (or the record was corrupt and
// has been discarded). The caller should route to the landing flow.
var ErrNoSession = errors.New("realtime: no saved session")

// ErrGameGone means the persisted session pointed at a game the server no
// longer knows. The session has already been cleared.
var ErrGameGone = errors.New("realtime: saved game no longer exists")

// GameQuerier is the read-only side channel used to validate a saved
// session before the live reconnect.
type GameQuerier interface {
	GetGame(ctx context.Context, gameID, playerID string) (protocol.Snapshot, error)
}

// ResumeSession replays the persisted session: check the game still
// exists, reconnect with the saved identity, refresh the record. The
// whole flow is single-flight per game, so a view layer that mounts
// twice in quick succession produces one reconnect, not two.
//
// The session survives every failure except a confirmed "game gone";
// transient errors leave it in place for the next attempt.
func (m *Manager) ResumeSession(ctx context.Context, games GameQuerier) (IdentityResult, error) {
	sess := m.store.Load()
	if sess == nil {
		return IdentityResult{}, ErrNoSession
	}

	v, err, shared := m.resume.Do(sess.GameID, func() (any, error) {
		if _, err := games.GetGame(ctx, sess.GameID, sess.PlayerID); err != nil {
			if errors.Is(err, api.ErrGameNotFound) {
				m.logger.Info("saved game is gone, clearing session", "game", sess.GameID)
				m.store.Clear()
				return nil, fmt.Errorf("%w: %s", ErrGameGone, sess.GameID)
			}
			return nil, fmt.Errorf("validate game %s: %w", sess.GameID, err)
		}

		res, err := m.PlayerConnect(ctx, sess.PlayerName, sess.GameID, sess.PlayerID)
		if err != nil {
			return nil, err
		}
		m.SetCurrentPlayerID(res.PlayerID)
		return res, nil
	})
	if shared {
		m.logger.Debug("resume joined in-flight attempt", "game", sess.GameID)
	}
	if err != nil {
		return IdentityResult{}, err
	}
	return v.(IdentityResult), nil
}
