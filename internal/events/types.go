// Package events defines the change events produced by observers and the bus
// that delivers them to subscribers in batches.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/energizer-project/mcwatch/internal/status"
)

// EventType represents the kind of change an Event reports.
type EventType string

const (
	EventOnlineStatus EventType = "online_status_changed"
	EventPlayerCount  EventType = "player_count_changed"
	EventPlayerJoined EventType = "player_joined"
	EventPlayerLeft   EventType = "player_left"
)

// Event is a single change. Payload is one of OnlineStatusPayload,
// PlayerCountPayload or PlayerPayload depending on Type.
type Event struct {
	Type    EventType   `json:"type"`
	Source  string      `json:"source"`
	Payload interface{} `json:"payload"`
}

// OnlineStatusPayload reports that a server came online or went offline.
// Online events carry Motd and Version; offline events carry ErrorSummary.
type OnlineStatusPayload struct {
	Online         bool   `json:"online"`
	Motd           string `json:"motd,omitempty"`
	ErrorSummary   string `json:"error,omitempty"`
	Version        string `json:"version"`
	CurrentPlayers int    `json:"current_players"`
	MaxPlayers     int    `json:"max_players"`
}

// PlayerCountPayload reports a change in the number of online players.
type PlayerCountPayload struct {
	Delta int `json:"delta"`
}

// PlayerPayload names the player who joined or left.
type PlayerPayload struct {
	Player status.PlayerRef
}

// MarshalJSON includes the derived display name.
func (p PlayerPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
	}{p.Player.ID, p.Player.RawName, p.Player.DisplayName()})
}

// NewOnlineStatus builds an OnlineStatusChanged event.
func NewOnlineStatus(source string, p OnlineStatusPayload) Event {
	return Event{Type: EventOnlineStatus, Source: source, Payload: p}
}

// NewPlayerCount builds a PlayerCountChanged event.
func NewPlayerCount(source string, delta int) Event {
	return Event{Type: EventPlayerCount, Source: source, Payload: PlayerCountPayload{Delta: delta}}
}

// NewPlayerJoined builds a PlayerJoined event.
func NewPlayerJoined(source string, player status.PlayerRef) Event {
	return Event{Type: EventPlayerJoined, Source: source, Payload: PlayerPayload{Player: player}}
}

// NewPlayerLeft builds a PlayerLeft event.
func NewPlayerLeft(source string, player status.PlayerRef) Event {
	return Event{Type: EventPlayerLeft, Source: source, Payload: PlayerPayload{Player: player}}
}

// Batch is the ordered list of events one observer produced in one refresh.
type Batch struct {
	ID       string          `json:"id"`
	Label    string          `json:"label"`
	Endpoint status.Endpoint `json:"endpoint"`
	At       time.Time       `json:"at"`
	Events   []Event         `json:"events"`
}

// NewBatch stamps a batch with a fresh id and the current time.
func NewBatch(label string, ep status.Endpoint, evs []Event) Batch {
	return Batch{
		ID:       uuid.NewString(),
		Label:    label,
		Endpoint: ep,
		At:       time.Now().UTC(),
		Events:   evs,
	}
}
