// Package events carries server-originated state changes to the UI layers.
// Each event is a closed variant keyed by Kind, so a subscriber can never
// register for a misspelled event name.
package events

import "tmars/client/internal/protocol"

type Kind int

const (
	KindGameUpdated Kind = iota
	KindPlayerConnected
	KindPlayerReconnected
	KindPlayerDisconnected
	KindConnectionDown
	KindConnectionUp
)

func (k Kind) String() string {
	switch k {
	case KindGameUpdated:
		return "game-updated"
	case KindPlayerConnected:
		return "player-connected"
	case KindPlayerReconnected:
		return "player-reconnected"
	case KindPlayerDisconnected:
		return "player-disconnected"
	case KindConnectionDown:
		return "connection-down"
	case KindConnectionUp:
		return "connection-up"
	}
	return "unknown"
}

type Event interface {
	Kind() Kind
}

// GameUpdated carries a fresh authoritative snapshot. The most recent one
// supersedes everything delivered before it.
type GameUpdated struct {
	GameID string
	Game   protocol.Snapshot
}

func (GameUpdated) Kind() Kind { return KindGameUpdated }

type PlayerConnected struct {
	PlayerID   string
	PlayerName string
	Game       protocol.Snapshot
}

func (PlayerConnected) Kind() Kind { return KindPlayerConnected }

type PlayerReconnected struct {
	PlayerID   string
	PlayerName string
	Game       protocol.Snapshot
}

func (PlayerReconnected) Kind() Kind { return KindPlayerReconnected }

type PlayerDisconnected struct {
	PlayerID   string
	PlayerName string
}

func (PlayerDisconnected) Kind() Kind { return KindPlayerDisconnected }

// ConnectionDown fires when the transport is lost. The manager keeps
// redialing on its own; this is informational.
type ConnectionDown struct {
	Err error
}

func (ConnectionDown) Kind() Kind { return KindConnectionDown }

// ConnectionUp fires on every successful dial, the first one included.
type ConnectionUp struct {
	Attempt int
}

func (ConnectionUp) Kind() Kind { return KindConnectionUp }
