package multiplayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/othellohq/othello-backend/internal/apperror"
	"github.com/othellohq/othello-backend/internal/entity"
)

const eventBuffer = 64

var (
	ErrRoomRequired   = errors.New("room is required")
	ErrPlayerRequired = errors.New("player is required")
	ErrURLRequired    = errors.New("server url is required")
)

// wsConn is the slice of *websocket.Conn the client uses, split out so
// reconciliation can be driven by a fake transport in tests.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	Close() error
}

type message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type joinRequest struct {
	Room   string         `json:"room"`
	Player *entity.Player `json:"player"`
	Config *joinConfig    `json:"config,omitempty"`
}

type joinConfig struct {
	Game       string            `json:"game,omitempty"`
	MaxPlayers int               `json:"max_players,omitempty"`
	MinPlayers int               `json:"min_players,omitempty"`
	GameState  *entity.GameState `json:"game_state,omitempty"`
}

type roomNotice struct {
	Room     string       `json:"room"`
	Snapshot *entity.Room `json:"snapshot"`
}

type playerNotice struct {
	Player *entity.Player `json:"player"`
	Room   *entity.Room   `json:"room,omitempty"`
}

type syncRequest struct {
	Room  string            `json:"room"`
	State *entity.GameState `json:"state,omitempty"`
}

type Config struct {
	URL        string
	Room       string
	Game       string
	MaxPlayers int
	MinPlayers int
	Player     *entity.Player
	GameState  *entity.GameState
	Logger     *slog.Logger
}

// Client represents one player's membership in one room. It translates
// inbound transport events into typed Events and sends outbound
// join/move requests. All sends are fire-and-forget: there is no
// acknowledgment, retry or reconnection.
type Client struct {
	logger *slog.Logger
	config Config

	writeMutex sync.Mutex
	conn       wsConn

	mu        sync.Mutex
	player    *entity.Player
	players   map[string]*entity.Player
	gameState *entity.GameState

	events   chan Event
	handlers map[string]func(payload json.RawMessage) error

	closeOnce sync.Once
	done      chan struct{}
}

func New(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, ErrURLRequired
	}

	if config.Room == "" {
		return nil, ErrRoomRequired
	}

	if config.Player == nil || config.Player.ID == "" {
		return nil, ErrPlayerRequired
	}

	if config.MaxPlayers < 1 {
		config.MaxPlayers = entity.DefaultMaxPlayers
	}

	if config.MinPlayers < 1 {
		config.MinPlayers = entity.DefaultMaxPlayers
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	client := &Client{
		logger: config.Logger.With("component", "multiplayer", "room", config.Room),
		config: config,

		player:    config.Player,
		players:   make(map[string]*entity.Player),
		gameState: config.GameState,

		events:   make(chan Event, eventBuffer),
		handlers: make(map[string]func(json.RawMessage) error),

		done: make(chan struct{}),
	}

	client.handlers["room_joined"] = client.onRoomJoined
	client.handlers["room_full"] = client.onRoomFull
	client.handlers["player_join"] = client.onPlayerJoin
	client.handlers["player_leave"] = client.onPlayerLeave
	client.handlers["set_owner"] = client.onSetOwner
	client.handlers["player_move"] = client.onPlayerMove
	client.handlers["sync_game"] = client.onSyncGame
	client.handlers["start_game"] = client.onStartGame
	client.handlers["game_end"] = client.onGameEnd

	return client, nil
}

// Connect dials the relay and immediately emits the join request for the
// configured room. A dropped join message produces a silently un-joined
// client; the caller learns about membership from the RoomJoined event.
func (that *Client) Connect(ctx context.Context) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, that.config.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", that.config.URL, err)
	}

	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	that.writeMutex.Lock()
	that.conn = conn
	that.writeMutex.Unlock()

	if err = that.joinRoom(); err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	go that.readLoop()

	return nil
}

func (that *Client) Close() error {
	var err error

	that.closeOnce.Do(func() {
		close(that.done)

		that.writeMutex.Lock()
		conn := that.conn
		that.writeMutex.Unlock()

		if conn != nil {
			err = conn.Close()
		}
	})

	return err
}

// Events returns the session's notification stream. Slow consumers lose
// events rather than stall the socket read loop.
func (that *Client) Events() <-chan Event {
	return that.events
}

func (that *Client) Player() *entity.Player {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.player.Clone()
}

// Players returns the cached roster of remote players.
func (that *Client) Players() []*entity.Player {
	that.mu.Lock()
	defer that.mu.Unlock()

	roster := make([]*entity.Player, 0, len(that.players))
	for _, player := range that.players {
		roster = append(roster, player.Clone())
	}

	return roster
}

func (that *Client) GameState() *entity.GameState {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.gameState.Clone()
}

// UpdatePlayerState replaces the local player's game-specific payload;
// it rides along on every subsequent outbound Movement.
func (that *Client) UpdatePlayerState(state json.RawMessage) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.player.GameState = state
}

// PlayerMove constructs the Movement record (client-assigned id and
// timestamp), hands it to the transport and returns it for optimistic
// local history tracking. The move is "sent", not acknowledged.
func (that *Client) PlayerMove(movement json.RawMessage) (*entity.Movement, error) {
	that.mu.Lock()
	player := that.player.Clone()
	that.mu.Unlock()

	record := entity.NewMovement(that.config.Room, player, movement)

	if err := that.send("player_move", record); err != nil {
		return nil, fmt.Errorf("failed to send movement: %w", err)
	}

	return record, nil
}

// SyncGame pushes a wholesale state replacement to the rest of the room.
func (that *Client) SyncGame(state *entity.GameState) error {
	if !state.Validate() {
		return apperror.ErrMalformedState
	}

	that.mu.Lock()
	that.gameState = state
	that.mu.Unlock()

	if err := that.send("sync_game", syncRequest{Room: that.config.Room, State: state}); err != nil {
		return fmt.Errorf("failed to send game state: %w", err)
	}

	return nil
}

// StartGame requests the game start; only the room owner may do so.
func (that *Client) StartGame() error {
	return that.sendLifecycle("start_game", nil)
}

// RestartGame requests a fresh game state; only the room owner may do so.
func (that *Client) RestartGame() error {
	return that.sendLifecycle("restart_game", nil)
}

// EndGame announces the terminal state; only the room owner may do so.
func (that *Client) EndGame(state *entity.GameState) error {
	return that.sendLifecycle("game_end", state)
}

func (that *Client) sendLifecycle(action string, state *entity.GameState) error {
	that.mu.Lock()
	isOwner := that.player.IsOwner
	that.mu.Unlock()

	if !isOwner {
		return apperror.ErrNotRoomOwner
	}

	if err := that.send(action, syncRequest{Room: that.config.Room, State: state}); err != nil {
		return fmt.Errorf("failed to send %s: %w", action, err)
	}

	return nil
}

func (that *Client) joinRoom() error {
	that.mu.Lock()
	player := that.player.Clone()
	that.mu.Unlock()

	request := joinRequest{
		Room:   that.config.Room,
		Player: player,
		Config: &joinConfig{
			Game:       that.config.Game,
			MaxPlayers: that.config.MaxPlayers,
			MinPlayers: that.config.MinPlayers,
			GameState:  that.config.GameState,
		},
	}

	if err := that.send("room_join", request); err != nil {
		return err
	}

	return nil
}

func (that *Client) send(action string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	that.writeMutex.Lock()
	defer that.writeMutex.Unlock()

	if that.conn == nil {
		return apperror.ErrNotConnected
	}

	if err = that.conn.WriteJSON(message{Action: action, Payload: raw}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// readLoop pulls messages off the wire in arrival order; there is no
// reordering or batching across callbacks.
func (that *Client) readLoop() {
	log := that.logger.With("method", "readLoop")

	for {
		that.writeMutex.Lock()
		conn := that.conn
		that.writeMutex.Unlock()

		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-that.done:
			default:
				log.Error("connection read failed", "error", err)
			}
			return
		}

		var msg message
		if err = json.Unmarshal(raw, &msg); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			continue
		}

		if err = that.handleMessage(&msg); err != nil {
			log.Error("failed to handle message", "action", msg.Action, "error", err)
		}
	}
}

// handleMessage dispatches one inbound envelope. Unrecognized actions
// are rejected at this boundary.
func (that *Client) handleMessage(msg *message) error {
	handler, ok := that.handlers[msg.Action]
	if !ok {
		return fmt.Errorf("unrecognized action %q", msg.Action)
	}

	return handler(msg.Payload)
}

func (that *Client) onRoomJoined(payload json.RawMessage) error {
	var notice roomNotice

	if err := json.Unmarshal(payload, &notice); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if notice.Snapshot == nil {
		return apperror.ErrMalformedState
	}

	that.mu.Lock()
	for _, player := range notice.Snapshot.Players {
		if player.ID == that.player.ID {
			continue
		}
		that.players[player.ID] = player
	}

	if notice.Snapshot.GameState.Validate() {
		that.gameState = notice.Snapshot.GameState
	}
	that.mu.Unlock()

	that.emit(RoomJoined{Room: notice.Snapshot})

	return nil
}

func (that *Client) onRoomFull(payload json.RawMessage) error {
	var notice roomNotice

	if err := json.Unmarshal(payload, &notice); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	that.emit(RoomFull{Room: notice.Snapshot})

	return nil
}

// onPlayerJoin adds the player to the local roster. The event is
// suppressed when it refers to the local player itself.
func (that *Client) onPlayerJoin(payload json.RawMessage) error {
	var notice playerNotice

	if err := json.Unmarshal(payload, &notice); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if notice.Player == nil || notice.Player.ID == "" {
		return apperror.ErrMalformedState
	}

	that.mu.Lock()
	if notice.Player.ID == that.player.ID {
		that.mu.Unlock()
		return nil
	}

	that.players[notice.Player.ID] = notice.Player
	that.mu.Unlock()

	that.emit(PlayerJoined{Player: notice.Player})

	return nil
}

func (that *Client) onPlayerLeave(payload json.RawMessage) error {
	var notice playerNotice

	if err := json.Unmarshal(payload, &notice); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if notice.Player == nil || notice.Player.ID == "" {
		return apperror.ErrMalformedState
	}

	that.mu.Lock()
	delete(that.players, notice.Player.ID)
	that.mu.Unlock()

	that.emit(PlayerLeft{Player: notice.Player})

	return nil
}

// onSetOwner reconciles the announced canonical owner: the local flag
// and the cached roster entry are mutually exclusive.
func (that *Client) onSetOwner(payload json.RawMessage) error {
	var notice playerNotice

	if err := json.Unmarshal(payload, &notice); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if notice.Player == nil || notice.Player.ID == "" {
		return apperror.ErrMalformedState
	}

	that.mu.Lock()
	isSelf := notice.Player.ID == that.player.ID
	that.player.IsOwner = isSelf

	for id, player := range that.players {
		player.IsOwner = !isSelf && id == notice.Player.ID
	}
	that.mu.Unlock()

	that.emit(OwnerChanged{Owner: notice.Player, IsSelf: isSelf})

	return nil
}

func (that *Client) onPlayerMove(payload json.RawMessage) error {
	var movement entity.Movement

	if err := json.Unmarshal(payload, &movement); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if movement.Player == nil || len(movement.Movement) == 0 {
		return apperror.ErrMalformedState
	}

	that.emit(MoveReceived{Movement: &movement})

	return nil
}

// onSyncGame validates the inbound payload's shape before it replaces
// the local state wholesale, so a malformed sync can never leave the
// session in a partially assigned condition.
func (that *Client) onSyncGame(payload json.RawMessage) error {
	state, err := that.decodeState(payload)
	if err != nil {
		return err
	}

	that.emit(StateSynced{State: state})

	return nil
}

func (that *Client) onStartGame(payload json.RawMessage) error {
	state, err := that.decodeState(payload)
	if err != nil {
		return err
	}

	that.emit(GameStarted{State: state})

	return nil
}

func (that *Client) onGameEnd(payload json.RawMessage) error {
	state, err := that.decodeState(payload)
	if err != nil {
		return err
	}

	that.emit(GameEnded{State: state})

	return nil
}

func (that *Client) decodeState(payload json.RawMessage) (*entity.GameState, error) {
	var state entity.GameState

	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrMalformedState, err)
	}

	if !state.Validate() {
		return nil, apperror.ErrMalformedState
	}

	that.mu.Lock()
	that.gameState = &state
	that.mu.Unlock()

	return &state, nil
}

func (that *Client) emit(event Event) {
	select {
	case that.events <- event:
	default:
		that.logger.Warn("event dropped, consumer is too slow", "event", fmt.Sprintf("%T", event))
	}
}
