package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Movement is one player's move record. It is created client-side at send
// time: the id and the timestamp are never server-assigned, so ordering
// across clients is best-effort only.
type Movement struct {
	ID        string          `json:"id"`
	Room      string          `json:"room"`
	Player    *Player         `json:"player"`
	Movement  json.RawMessage `json:"movement"`
	Timestamp int64           `json:"timestamp"`
}

func NewMovement(room string, player *Player, movement json.RawMessage) *Movement {
	return &Movement{
		ID:        uuid.NewString(),
		Room:      room,
		Player:    player,
		Movement:  movement,
		Timestamp: time.Now().UnixMilli(),
	}
}
