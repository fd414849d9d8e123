package apperror

import "errors"

var (
	ErrRoomFull       = errors.New("room is full")
	ErrRoomNotFound   = errors.New("room not found")
	ErrPlayerNotFound = errors.New("player not found in room")
	ErrAlreadyInRoom  = errors.New("player is already in room")
	ErrNotRoomOwner   = errors.New("player is not the room owner")
	ErrNotYourTurn    = errors.New("it's not your turn")
	ErrCellOccupied   = errors.New("cell is already occupied")
	ErrIllegalMove    = errors.New("move doesn't flip any chip")
	ErrGameFinished   = errors.New("game is already finished")
	ErrInvalidGameTag = errors.New("unsupported game tag")
	ErrMalformedState = errors.New("malformed game state payload")
	ErrNotConnected   = errors.New("client is not connected")
)
