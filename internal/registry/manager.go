package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/othellohq/othello-backend/internal/apperror"
	"github.com/othellohq/othello-backend/internal/entity"
	"github.com/othellohq/othello-backend/internal/othello"
)

type roomRepo interface {
	CreateOrUpdate(ctx context.Context, room *entity.Room) error
	DeleteByID(ctx context.Context, id string) error
}

type historyRepo interface {
	Append(ctx context.Context, room string, state *entity.GameState) error
}

// Manager owns the room table. Every mutation happens under one mutex so
// that join/leave/ownership transitions stay linearizable across
// concurrent connection handlers.
type Manager struct {
	logger *slog.Logger

	mu    sync.Mutex
	rooms map[string]*entity.Room

	roomRepo    roomRepo
	historyRepo historyRepo
}

func NewManager(logger *slog.Logger, roomRepo roomRepo, historyRepo historyRepo) *Manager {
	return &Manager{
		logger: logger,

		rooms: make(map[string]*entity.Room),

		roomRepo:    roomRepo,
		historyRepo: historyRepo,
	}
}

// JoinConfig carries the joining client's view of the room, used when the
// room doesn't exist yet (for example when a client recreates a room it
// believes already has members).
type JoinConfig struct {
	Game       string            `json:"game,omitempty"`
	MaxPlayers int               `json:"max_players,omitempty"`
	MinPlayers int               `json:"min_players,omitempty"`
	Players    []*entity.Player  `json:"players,omitempty"`
	GameState  *entity.GameState `json:"game_state,omitempty"`
}

type JoinResult struct {
	Room    *entity.Room
	Owner   *entity.Player
	Created bool
}

// Join admits the player into the room, creating the room on its first
// sighting. The first joiner of a fresh room becomes owner; if ownership
// is ever missing the next joiner claims it. A full room rejects the join
// with ErrRoomFull and an unchanged roster snapshot.
func (that *Manager) Join(ctx context.Context, roomName string, player *entity.Player, config *JoinConfig) (*JoinResult, error) {
	log := that.logger.With("method", "Join", "room", roomName)

	that.mu.Lock()

	room, exists := that.rooms[roomName]
	if !exists {
		room = that.createRoom(roomName, player, config)
		that.rooms[roomName] = room

		result := &JoinResult{
			Room:    room.Snapshot(),
			Owner:   room.Owner().Clone(),
			Created: true,
		}
		that.mu.Unlock()

		that.persistRoom(ctx, result.Room)

		log.Info("room created", "player", player.ID)

		return result, nil
	}

	if err := room.AddPlayer(player); err != nil {
		if errors.Is(err, apperror.ErrRoomFull) {
			result := &JoinResult{Room: room.Snapshot()}
			that.mu.Unlock()

			log.Info("join rejected, room is full", "player", player.ID)

			return result, apperror.ErrRoomFull
		}

		that.mu.Unlock()

		return nil, fmt.Errorf("failed to add player: %w", err)
	}

	// last-writer-wins claim: no election among existing members.
	if room.Owner() == nil {
		player.IsOwner = true
	} else {
		player.IsOwner = false
	}

	result := &JoinResult{
		Room:  room.Snapshot(),
		Owner: room.Owner().Clone(),
	}
	that.mu.Unlock()

	that.persistRoom(ctx, result.Room)

	log.Info("player joined", "player", player.ID, "players", len(result.Room.Players))

	return result, nil
}

type LeaveResult struct {
	Room        *entity.Room
	Player      *entity.Player
	NewOwner    *entity.Player
	RoomRemoved bool
}

// Leave removes the player, re-elects the owner (first remaining joiner)
// when the leaver held it, and drops the room entirely when the roster
// becomes empty.
func (that *Manager) Leave(ctx context.Context, roomName, playerID string) (*LeaveResult, error) {
	log := that.logger.With("method", "Leave", "room", roomName)

	that.mu.Lock()

	room, exists := that.rooms[roomName]
	if !exists {
		that.mu.Unlock()
		return nil, apperror.ErrRoomNotFound
	}

	player, err := room.RemovePlayer(playerID)
	if err != nil {
		that.mu.Unlock()
		return nil, fmt.Errorf("failed to remove player: %w", err)
	}

	result := &LeaveResult{Player: player.Clone()}

	if room.IsEmpty() {
		delete(that.rooms, roomName)
		result.RoomRemoved = true
		that.mu.Unlock()

		that.dropRoom(ctx, roomName)

		log.Info("room removed", "player", playerID)

		return result, nil
	}

	if player.IsOwner {
		newOwner, err := room.SetOwner(room.Players[0].ID)
		if err != nil {
			that.mu.Unlock()
			return nil, fmt.Errorf("failed to transfer ownership: %w", err)
		}

		result.NewOwner = newOwner.Clone()
	}

	result.Room = room.Snapshot()
	that.mu.Unlock()

	that.persistRoom(ctx, result.Room)

	if result.NewOwner != nil {
		log.Info("ownership transferred", "player", playerID, "owner", result.NewOwner.ID)
	}

	log.Info("player left", "player", playerID, "players", len(result.Room.Players))

	return result, nil
}

// Room returns a point-in-time snapshot of the room.
func (that *Manager) Room(roomName string) (*entity.Room, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	room, exists := that.rooms[roomName]
	if !exists {
		return nil, apperror.ErrRoomNotFound
	}

	return room.Snapshot(), nil
}

// SyncState replaces the room's game state wholesale. The replaced state
// is kept in the room history and archived best effort; the relay never
// re-validates move legality, it only checks the payload shape.
func (that *Manager) SyncState(ctx context.Context, roomName string, state *entity.GameState) error {
	that.mu.Lock()

	room, exists := that.rooms[roomName]
	if !exists {
		that.mu.Unlock()
		return apperror.ErrRoomNotFound
	}

	if !state.Validate() {
		that.mu.Unlock()
		return apperror.ErrMalformedState
	}

	room.ReplaceGameState(state)
	snapshot := room.Snapshot()
	that.mu.Unlock()

	that.persistRoom(ctx, snapshot)
	that.archiveState(ctx, roomName, state)

	return nil
}

// ResetGame installs a fresh game state for the room, used by
// restart_game.
func (that *Manager) ResetGame(ctx context.Context, roomName string) (*entity.GameState, error) {
	that.mu.Lock()

	room, exists := that.rooms[roomName]
	if !exists {
		that.mu.Unlock()
		return nil, apperror.ErrRoomNotFound
	}

	state, err := othello.NewGameState()
	if err != nil {
		that.mu.Unlock()
		return nil, fmt.Errorf("failed to create game state: %w", err)
	}

	room.ReplaceGameState(state)
	snapshot := room.Snapshot()
	that.mu.Unlock()

	that.persistRoom(ctx, snapshot)
	that.archiveState(ctx, roomName, state)

	return state.Clone(), nil
}

func (that *Manager) createRoom(roomName string, player *entity.Player, config *JoinConfig) *entity.Room {
	if config == nil {
		config = &JoinConfig{}
	}

	game := config.Game
	if game == "" {
		game = othello.GameTag
	}

	room := entity.NewRoom(roomName, game, config.MaxPlayers, config.MinPlayers)

	player.IsOwner = true
	_ = room.AddPlayer(player)

	// pre-seeded members from a client recreating the room
	for _, seeded := range config.Players {
		if seeded.ID == player.ID {
			continue
		}

		seeded.IsOwner = false
		if err := room.AddPlayer(seeded); err != nil {
			break
		}
	}

	if config.GameState.Validate() {
		room.GameState = config.GameState
	} else if state, err := othello.NewGameState(); err == nil {
		room.GameState = state
	}

	return room
}

// persistRoom mirrors a room snapshot into storage. Called after the
// registry mutex is released; the mirror is never read back as authority.
// Failures are logged and never fail the in-memory operation.
func (that *Manager) persistRoom(ctx context.Context, room *entity.Room) {
	if that.roomRepo == nil {
		return
	}

	if err := that.roomRepo.CreateOrUpdate(ctx, room); err != nil {
		that.logger.Error("failed to persist room", "room", room.Room, "error", err)
	}
}

func (that *Manager) dropRoom(ctx context.Context, roomName string) {
	if that.roomRepo == nil {
		return
	}

	if err := that.roomRepo.DeleteByID(ctx, roomName); err != nil {
		that.logger.Error("failed to delete room", "room", roomName, "error", err)
	}
}

func (that *Manager) archiveState(ctx context.Context, roomName string, state *entity.GameState) {
	if that.historyRepo == nil {
		return
	}

	if err := that.historyRepo.Append(ctx, roomName, state); err != nil {
		that.logger.Error("failed to archive game state", "room", roomName, "error", err)
	}
}
