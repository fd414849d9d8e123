package multiplayer

import "github.com/othellohq/othello-backend/internal/entity"

// Event is the tagged union of local notifications a session republishes
// for inbound transport events. Callers consume them from Events()
// instead of mutating shared fields.
type Event interface {
	isEvent()
}

// RoomJoined confirms membership with the room's canonical snapshot.
type RoomJoined struct {
	Room *entity.Room
}

// RoomFull signals a refused join; the client is not a member.
type RoomFull struct {
	Room *entity.Room
}

type PlayerJoined struct {
	Player *entity.Player
}

type PlayerLeft struct {
	Player *entity.Player
}

// OwnerChanged announces the canonical owner. IsSelf is true when the
// local player holds ownership.
type OwnerChanged struct {
	Owner  *entity.Player
	IsSelf bool
}

type MoveReceived struct {
	Movement *entity.Movement
}

// StateSynced reports a wholesale replacement of the local game state.
type StateSynced struct {
	State *entity.GameState
}

type GameStarted struct {
	State *entity.GameState
}

type GameEnded struct {
	State *entity.GameState
}

func (RoomJoined) isEvent()   {}
func (RoomFull) isEvent()     {}
func (PlayerJoined) isEvent() {}
func (PlayerLeft) isEvent()   {}
func (OwnerChanged) isEvent() {}
func (MoveReceived) isEvent() {}
func (StateSynced) isEvent()  {}
func (GameStarted) isEvent()  {}
func (GameEnded) isEvent()    {}
