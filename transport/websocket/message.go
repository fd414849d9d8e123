package websocket

import (
	"encoding/json"

	"github.com/othellohq/othello-backend/internal/entity"
	"github.com/othellohq/othello-backend/internal/registry"
)

// Client-originated actions.
const (
	ActionRoomJoin    = "room_join"
	ActionRoomLeave   = "room_leave"
	ActionPlayerMove  = "player_move"
	ActionSyncGame    = "sync_game"
	ActionStartGame   = "start_game"
	ActionRestartGame = "restart_game"
	ActionGameEnd     = "game_end"
)

// Server-originated actions.
const (
	ActionRoomJoined  = "room_joined"
	ActionRoomFull    = "room_full"
	ActionPlayerJoin  = "player_join"
	ActionPlayerLeave = "player_leave"
	ActionSetOwner    = "set_owner"
)

// Message is the wire envelope. The payload shape is fixed per action and
// validated before use; unrecognized or malformed messages are rejected
// at this boundary instead of being trusted implicitly.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type joinPayload struct {
	Room   string               `json:"room"`
	Player *entity.Player       `json:"player"`
	Config *registry.JoinConfig `json:"config,omitempty"`
}

type leavePayload struct {
	Room string `json:"room"`
}

type syncPayload struct {
	Room  string            `json:"room"`
	State *entity.GameState `json:"state"`
}

type lifecyclePayload struct {
	Room  string            `json:"room"`
	State *entity.GameState `json:"state,omitempty"`
}

type roomPayload struct {
	Room     string       `json:"room"`
	Snapshot *entity.Room `json:"snapshot"`
}

type playerPayload struct {
	Player *entity.Player `json:"player"`
	Room   *entity.Room   `json:"room,omitempty"`
}

type errorPayload struct {
	Error string `json:"error"`
}
