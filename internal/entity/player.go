package entity

import "encoding/json"

// Player is one participant of a room. ID doubles as the connection
// identifier, GameState carries the game-specific per-player payload.
type Player struct {
	ID        string          `json:"id"`
	Nickname  string          `json:"nickname,omitempty"`
	IsOwner   bool            `json:"is_owner"`
	GameState json.RawMessage `json:"game_state,omitempty"`
}

func (that *Player) Clone() *Player {
	if that == nil {
		return nil
	}

	clone := *that

	if that.GameState != nil {
		clone.GameState = make(json.RawMessage, len(that.GameState))
		copy(clone.GameState, that.GameState)
	}

	return &clone
}
