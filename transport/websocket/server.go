package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/othellohq/othello-backend/internal/entity"
	"github.com/othellohq/othello-backend/internal/registry"
)

type roomRegistry interface {
	Join(ctx context.Context, roomName string, player *entity.Player, config *registry.JoinConfig) (*registry.JoinResult, error)
	Leave(ctx context.Context, roomName, playerID string) (*registry.LeaveResult, error)
	Room(roomName string) (*entity.Room, error)
	SyncState(ctx context.Context, roomName string, state *entity.GameState) error
	ResetGame(ctx context.Context, roomName string) (*entity.GameState, error)
}

type Server struct {
	logger *slog.Logger
	rooms  roomRegistry

	upgrader websocket.Upgrader

	// members holds the broadcast group per room, keyed by player id.
	membersMutex sync.RWMutex
	members      map[string]map[string]*conn

	handlers map[string]func(ctx context.Context, c *conn, message *Message) error
}

func New(logger *slog.Logger, rooms roomRegistry) *Server {
	server := &Server{
		logger: logger,
		rooms:  rooms,

		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// CORS policy belongs to the bootstrap layer; the relay
			// accepts any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},

		members: make(map[string]map[string]*conn),

		handlers: make(map[string]func(context.Context, *conn, *Message) error),
	}

	server.handlers[ActionRoomJoin] = server.handleRoomJoin
	server.handlers[ActionRoomLeave] = server.handleRoomLeave
	server.handlers[ActionPlayerMove] = server.handlePlayerMove
	server.handlers[ActionSyncGame] = server.handleSyncGame
	server.handlers[ActionStartGame] = server.handleStartGame
	server.handlers[ActionRestartGame] = server.handleRestartGame
	server.handlers[ActionGameEnd] = server.handleGameEnd

	return server
}

// Handler exposes the upgrade endpoint for embedding in tests or another
// mux.
func (that *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", that.upgrade)

	return mux
}

// Start - starts WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     that.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// upgrade - upgrades the connection to WebSocket and runs its read loop.
func (that *Server) upgrade(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgrade")

	ws, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	log.Info("WebSocket connection established")

	c := newConn(ws)
	defer func() {
		that.handleDisconnect(req.Context(), c)

		if closeErr := c.close(); closeErr != nil {
			log.Debug("failed to close connection", "error", closeErr)
		}
	}()

	that.handleMessages(req.Context(), c)
}

// handleMessages - processes messages from the client until the socket
// drops. Events arrive and are handled in wire order, one at a time per
// connection.
func (that *Server) handleMessages(ctx context.Context, c *conn) {
	log := that.logger.With("method", "handleMessages")

	for {
		_, reqBody, err := c.ws.ReadMessage()
		if err != nil {
			log.Info("connection read loop finished", "error", err)
			return
		}

		var message Message
		if err = json.Unmarshal(reqBody, &message); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Error("unrecognized action", "action", message.Action)
			continue
		}

		if err = handler(ctx, c, &message); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

// register adds the socket to the room's broadcast group.
func (that *Server) register(c *conn, roomName, playerID string) {
	that.membersMutex.Lock()
	defer that.membersMutex.Unlock()

	group, ok := that.members[roomName]
	if !ok {
		group = make(map[string]*conn)
		that.members[roomName] = group
	}

	group[playerID] = c

	c.room = roomName
	c.playerID = playerID
}

func (that *Server) unregister(c *conn) {
	that.membersMutex.Lock()
	defer that.membersMutex.Unlock()

	group, ok := that.members[c.room]
	if ok {
		delete(group, c.playerID)

		if len(group) == 0 {
			delete(that.members, c.room)
		}
	}

	c.room = ""
	c.playerID = ""
}

// broadcast fans a message out to every socket in the room except the
// one identified by exceptID. Pass an empty exceptID to reach everyone.
func (that *Server) broadcast(roomName, exceptID, action string, payload any) {
	log := that.logger.With("method", "broadcast", "room", roomName, "action", action)

	that.membersMutex.RLock()
	group := make([]*conn, 0, len(that.members[roomName]))
	for playerID, member := range that.members[roomName] {
		if playerID == exceptID {
			continue
		}
		group = append(group, member)
	}
	that.membersMutex.RUnlock()

	for _, member := range group {
		if err := member.send(action, payload); err != nil {
			log.Error("failed to send message", "player", member.playerID, "error", err)
		}
	}
}

func (that *Server) sendErrorResponse(c *conn, action, errorMsg string) error {
	if err := c.send(action, errorPayload{Error: errorMsg}); err != nil {
		return fmt.Errorf("failed to send error response: %w", err)
	}

	return nil
}
