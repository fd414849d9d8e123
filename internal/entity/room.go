package entity

import "github.com/othellohq/othello-backend/internal/apperror"

const DefaultMaxPlayers = 2

// Room is a named multiplayer session container: an ordered roster (join
// order is preserved), one game state and the history of replaced states.
type Room struct {
	Room       string       `json:"room"`
	Game       string       `json:"game,omitempty"`
	MaxPlayers int          `json:"max_players"`
	MinPlayers int          `json:"min_players"`
	Players    []*Player    `json:"players"`
	GameState  *GameState   `json:"game_state,omitempty"`
	History    []*GameState `json:"history,omitempty"`
}

func NewRoom(name, game string, maxPlayers, minPlayers int) *Room {
	if maxPlayers < 1 {
		maxPlayers = DefaultMaxPlayers
	}

	if minPlayers < 1 {
		minPlayers = DefaultMaxPlayers
	}

	return &Room{
		Room:       name,
		Game:       game,
		MaxPlayers: maxPlayers,
		MinPlayers: minPlayers,
	}
}

func (that *Room) IsFull() bool {
	return len(that.Players) >= that.MaxPlayers
}

func (that *Room) IsEmpty() bool {
	return len(that.Players) == 0
}

// AddPlayer appends the player to the roster. A player already on the
// roster is reported as such even when the room is at capacity; a full
// room is rejected without any roster mutation.
func (that *Room) AddPlayer(player *Player) error {
	if that.PlayerByID(player.ID) != nil {
		return apperror.ErrAlreadyInRoom
	}

	if that.IsFull() {
		return apperror.ErrRoomFull
	}

	that.Players = append(that.Players, player)

	return nil
}

// RemovePlayer deletes the player from the roster, preserving join order
// of the remaining players.
func (that *Room) RemovePlayer(id string) (*Player, error) {
	for i, player := range that.Players {
		if player.ID != id {
			continue
		}

		that.Players = append(that.Players[:i], that.Players[i+1:]...)

		return player, nil
	}

	return nil, apperror.ErrPlayerNotFound
}

func (that *Room) PlayerByID(id string) *Player {
	for _, player := range that.Players {
		if player.ID == id {
			return player
		}
	}

	return nil
}

// Owner returns the player holding ownership, or nil when the roster has
// none (for example when the prior owner's record was evicted).
func (that *Room) Owner() *Player {
	for _, player := range that.Players {
		if player.IsOwner {
			return player
		}
	}

	return nil
}

// SetOwner makes the given player the single owner. Ownership is
// transferred, never duplicated.
func (that *Room) SetOwner(id string) (*Player, error) {
	owner := that.PlayerByID(id)
	if owner == nil {
		return nil, apperror.ErrPlayerNotFound
	}

	for _, player := range that.Players {
		player.IsOwner = player.ID == id
	}

	return owner, nil
}

// ReplaceGameState swaps the current state wholesale and keeps the
// replaced one in the history.
func (that *Room) ReplaceGameState(state *GameState) {
	if that.GameState != nil {
		that.History = append(that.History, that.GameState)
	}

	that.GameState = state
}

// Snapshot returns a deep copy safe to hand to other goroutines or to
// marshal onto the wire after the registry lock is released.
func (that *Room) Snapshot() *Room {
	clone := &Room{
		Room:       that.Room,
		Game:       that.Game,
		MaxPlayers: that.MaxPlayers,
		MinPlayers: that.MinPlayers,
		GameState:  that.GameState.Clone(),
	}

	for _, player := range that.Players {
		clone.Players = append(clone.Players, player.Clone())
	}

	for _, state := range that.History {
		clone.History = append(clone.History, state.Clone())
	}

	return clone
}
