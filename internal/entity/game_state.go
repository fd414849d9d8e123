package entity

import (
	"encoding/json"

	"github.com/google/uuid"
)

// GameState is the wholesale-replaceable snapshot of one room's game.
// The ID is generated once per distinct state; a new move produces a new
// GameState instead of mutating the identity of the old one.
type GameState struct {
	ID    string          `json:"id"`
	Game  string          `json:"game"`
	State json.RawMessage `json:"state"`
}

func NewGameState(game string, state json.RawMessage) *GameState {
	return &GameState{
		ID:    uuid.NewString(),
		Game:  game,
		State: state,
	}
}

// Validate reports whether the snapshot has the shape the protocol
// requires. Inbound sync payloads must pass this check before they are
// allowed to replace local state.
func (that *GameState) Validate() bool {
	if that == nil {
		return false
	}

	return that.ID != "" && that.Game != "" && len(that.State) > 0
}

func (that *GameState) Clone() *GameState {
	if that == nil {
		return nil
	}

	clone := *that

	if that.State != nil {
		clone.State = make(json.RawMessage, len(that.State))
		copy(clone.State, that.State)
	}

	return &clone
}
