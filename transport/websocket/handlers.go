package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/othellohq/othello-backend/internal/apperror"
	"github.com/othellohq/othello-backend/internal/entity"
)

func (that *Server) handleRoomJoin(ctx context.Context, c *conn, msg *Message) error {
	log := that.logger.With("method", "handleRoomJoin")

	var payloadReq joinPayload

	if err := json.Unmarshal(msg.Payload, &payloadReq); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if payloadReq.Room == "" {
		log.Error("Room is missing in payload")
		return that.sendErrorResponse(c, msg.Action, "Room is required")
	}

	if payloadReq.Player == nil || payloadReq.Player.ID == "" {
		log.Error("Player is missing in payload")
		return that.sendErrorResponse(c, msg.Action, "Player is required")
	}

	log = log.With("room", payloadReq.Room, "playerID", payloadReq.Player.ID)

	result, err := that.rooms.Join(ctx, payloadReq.Room, payloadReq.Player, payloadReq.Config)
	if errors.Is(err, apperror.ErrRoomFull) {
		// the join is refused: no roster mutation, no broadcast
		return c.send(ActionRoomFull, roomPayload{Room: payloadReq.Room, Snapshot: result.Room})
	}

	if err != nil {
		log.Error("failed to join room", "error", err)
		return that.sendErrorResponse(c, msg.Action, fmt.Sprintf("room %s: %v", payloadReq.Room, err))
	}

	that.register(c, payloadReq.Room, payloadReq.Player.ID)

	if err = c.send(ActionRoomJoined, roomPayload{Room: payloadReq.Room, Snapshot: result.Room}); err != nil {
		return fmt.Errorf("failed to confirm membership: %w", err)
	}

	// the canonical owner goes to the joiner regardless of who holds it
	if err = c.send(ActionSetOwner, playerPayload{Player: result.Owner}); err != nil {
		return fmt.Errorf("failed to announce owner: %w", err)
	}

	that.broadcast(payloadReq.Room, payloadReq.Player.ID, ActionPlayerJoin, playerPayload{
		Player: result.Room.PlayerByID(payloadReq.Player.ID),
		Room:   result.Room,
	})

	log.Info("Player joined room")

	return nil
}

func (that *Server) handleRoomLeave(ctx context.Context, c *conn, msg *Message) error {
	log := that.logger.With("method", "handleRoomLeave")

	var payloadReq leavePayload

	if err := json.Unmarshal(msg.Payload, &payloadReq); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if payloadReq.Room == "" || payloadReq.Room != c.room {
		log.Error("Room is missing in payload or doesn't match the connection")
		return that.sendErrorResponse(c, msg.Action, "Room is required")
	}

	that.leaveRoom(ctx, c, log)

	return nil
}

func (that *Server) handlePlayerMove(ctx context.Context, c *conn, msg *Message) error {
	log := that.logger.With("method", "handlePlayerMove")

	var movement entity.Movement

	if err := json.Unmarshal(msg.Payload, &movement); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if movement.Room == "" || movement.Player == nil || len(movement.Movement) == 0 {
		log.Error("Movement payload is incomplete")
		return that.sendErrorResponse(c, msg.Action, "Movement is required")
	}

	if _, err := that.rooms.Room(movement.Room); err != nil {
		log.Error("failed to find room", "room", movement.Room, "error", err)
		return that.sendErrorResponse(c, msg.Action, "room doesn't exist")
	}

	// relayed verbatim, no legality inspection
	that.broadcast(movement.Room, c.playerID, ActionPlayerMove, &movement)

	log.Info("Player moved", "room", movement.Room, "playerID", movement.Player.ID)

	return nil
}

func (that *Server) handleSyncGame(ctx context.Context, c *conn, msg *Message) error {
	log := that.logger.With("method", "handleSyncGame")

	var payloadReq syncPayload

	if err := json.Unmarshal(msg.Payload, &payloadReq); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if payloadReq.Room == "" || !payloadReq.State.Validate() {
		log.Error("Game state is missing or malformed in payload")
		return that.sendErrorResponse(c, msg.Action, "Game state is required")
	}

	if err := that.rooms.SyncState(ctx, payloadReq.Room, payloadReq.State); err != nil {
		log.Error("failed to sync game state", "room", payloadReq.Room, "error", err)
		return that.sendErrorResponse(c, msg.Action, fmt.Sprintf("room %s: %v", payloadReq.Room, err))
	}

	that.broadcast(payloadReq.Room, c.playerID, ActionSyncGame, payloadReq.State)

	log.Info("Game state synced", "room", payloadReq.Room)

	return nil
}

func (that *Server) handleStartGame(ctx context.Context, c *conn, msg *Message) error {
	log := that.logger.With("method", "handleStartGame")

	room, err := that.confirmOwner(c, msg)
	if err != nil {
		return err
	}

	that.broadcast(room.Room, "", ActionStartGame, room.GameState)

	log.Info("Game started", "room", room.Room)

	return nil
}

func (that *Server) handleRestartGame(ctx context.Context, c *conn, msg *Message) error {
	log := that.logger.With("method", "handleRestartGame")

	room, err := that.confirmOwner(c, msg)
	if err != nil {
		return err
	}

	state, err := that.rooms.ResetGame(ctx, room.Room)
	if err != nil {
		log.Error("failed to reset game", "room", room.Room, "error", err)
		return that.sendErrorResponse(c, msg.Action, fmt.Sprintf("room %s: %v", room.Room, err))
	}

	that.broadcast(room.Room, "", ActionStartGame, state)

	log.Info("Game restarted", "room", room.Room)

	return nil
}

func (that *Server) handleGameEnd(ctx context.Context, c *conn, msg *Message) error {
	log := that.logger.With("method", "handleGameEnd")

	room, err := that.confirmOwner(c, msg)
	if err != nil {
		return err
	}

	var payloadReq lifecyclePayload
	if len(msg.Payload) > 0 {
		if err = json.Unmarshal(msg.Payload, &payloadReq); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	state := room.GameState

	if payloadReq.State.Validate() {
		if err = that.rooms.SyncState(ctx, room.Room, payloadReq.State); err != nil {
			log.Error("failed to sync final state", "room", room.Room, "error", err)
			return that.sendErrorResponse(c, msg.Action, fmt.Sprintf("room %s: %v", room.Room, err))
		}

		state = payloadReq.State
	}

	that.broadcast(room.Room, "", ActionGameEnd, state)

	log.Info("Game ended", "room", room.Room)

	return nil
}

// confirmOwner resolves the connection's room and rejects lifecycle
// signals from anyone but the owner.
func (that *Server) confirmOwner(c *conn, msg *Message) (*entity.Room, error) {
	log := that.logger.With("method", "confirmOwner")

	room, err := that.rooms.Room(c.room)
	if err != nil {
		log.Error("failed to find room", "room", c.room, "error", err)

		if sendErr := that.sendErrorResponse(c, msg.Action, "room doesn't exist"); sendErr != nil {
			return nil, sendErr
		}

		return nil, apperror.ErrRoomNotFound
	}

	owner := room.Owner()
	if owner == nil || owner.ID != c.playerID {
		log.Info("lifecycle signal rejected", "room", c.room, "playerID", c.playerID)

		if sendErr := that.sendErrorResponse(c, msg.Action, apperror.ErrNotRoomOwner.Error()); sendErr != nil {
			return nil, sendErr
		}

		return nil, apperror.ErrNotRoomOwner
	}

	return room, nil
}

// handleDisconnect reclaims the dropped player's roster entry and
// ownership, then tells the rest of the room.
func (that *Server) handleDisconnect(ctx context.Context, c *conn) {
	log := that.logger.With("method", "handleDisconnect")

	if c.room == "" {
		return
	}

	that.leaveRoom(ctx, c, log)
}

func (that *Server) leaveRoom(ctx context.Context, c *conn, log *slog.Logger) {
	roomName, playerID := c.room, c.playerID

	that.unregister(c)

	result, err := that.rooms.Leave(ctx, roomName, playerID)
	if err != nil {
		log.Error("failed to leave room", "room", roomName, "playerID", playerID, "error", err)
		return
	}

	if result.RoomRemoved {
		log.Info("room removed after last player left", "room", roomName)
		return
	}

	that.broadcast(roomName, playerID, ActionPlayerLeave, playerPayload{Player: result.Player})

	if result.NewOwner != nil {
		that.broadcast(roomName, playerID, ActionSetOwner, playerPayload{Player: result.NewOwner})
	}

	log.Info("player left room", "room", roomName, "playerID", playerID)
}
