// Package protocol defines the JSON wire contract spoken with the game
// server: one envelope shape plus a payload struct per message type.
package protocol

import "encoding/json"

type MessageType string

const (
	// ================= C -> S =================
	TypePlayerConnect   MessageType = "player-connect"
	TypePlayerReconnect MessageType = "player-reconnect"
	TypePlayAction      MessageType = "do-action"

	// ================= S -> C =================
	TypeGameUpdated        MessageType = "game-updated"
	TypePlayerConnected    MessageType = "player-connected"
	TypePlayerReconnected  MessageType = "player-reconnected"
	TypePlayerDisconnected MessageType = "player-disconnected"
	TypeError              MessageType = "error"
	TypeFullState          MessageType = "full-state"
)

// Envelope wraps every message in both directions.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
	GameID  string          `json:"gameId,omitempty"`
}

// Snapshot is the authoritative game-state object. The client routes it
// verbatim and never interprets its contents.
type Snapshot = json.RawMessage

// NewEnvelope marshals payload into a ready-to-send envelope.
func NewEnvelope(t MessageType, payload any, gameID string) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, Payload: b, GameID: gameID}, nil
}

type PlayerConnectPayload struct {
	PlayerName string `json:"playerName"`
	GameID     string `json:"gameId"`
}

type PlayerReconnectPayload struct {
	PlayerName string `json:"playerName"`
	GameID     string `json:"gameId"`
}

type PlayActionPayload struct {
	ActionRequest json.RawMessage `json:"actionRequest"`
}

type GameUpdatedPayload struct {
	Game Snapshot `json:"game"`
}

type PlayerConnectedPayload struct {
	PlayerID   string   `json:"playerId"`
	PlayerName string   `json:"playerName"`
	Game       Snapshot `json:"game"`
}

type PlayerReconnectedPayload struct {
	PlayerID   string   `json:"playerId"`
	PlayerName string   `json:"playerName"`
	Game       Snapshot `json:"game"`
}

type PlayerDisconnectedPayload struct {
	PlayerID   string   `json:"playerId"`
	PlayerName string   `json:"playerName"`
	Game       Snapshot `json:"game"`
}

type FullStatePayload struct {
	Game     Snapshot `json:"game"`
	PlayerID string   `json:"playerId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
