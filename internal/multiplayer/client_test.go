package multiplayer

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/othellohq/othello-backend/internal/apperror"
	"github.com/othellohq/othello-backend/internal/entity"
)

// fakeConn records outbound frames and feeds inbound ones from a
// channel, standing in for the gorilla connection.
type fakeConn struct {
	mu      sync.Mutex
	written []message
	inbound chan []byte
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16)}
}

func (that *fakeConn) ReadMessage() (int, []byte, error) {
	raw, ok := <-that.inbound
	if !ok {
		return 0, nil, io.EOF
	}

	return websocket.TextMessage, raw, nil
}

func (that *fakeConn) WriteJSON(v any) error {
	msg, ok := v.(message)
	if !ok {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if err = json.Unmarshal(raw, &msg); err != nil {
			return err
		}
	}

	that.mu.Lock()
	defer that.mu.Unlock()
	that.written = append(that.written, msg)

	return nil
}

func (that *fakeConn) Close() error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if !that.closed {
		that.closed = true
		close(that.inbound)
	}

	return nil
}

func (that *fakeConn) sent() []message {
	that.mu.Lock()
	defer that.mu.Unlock()

	return append([]message(nil), that.written...)
}

func newTestClient(t *testing.T) (*Client, *fakeConn) {
	t.Helper()

	client, err := New(Config{
		URL:    "ws://relay.test/ws",
		Room:   "r1",
		Player: &entity.Player{ID: "self", Nickname: "Self"},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	conn := newFakeConn()
	client.conn = conn

	return client, conn
}

func dispatch(t *testing.T, client *Client, action string, payload any) error {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	return client.handleMessage(&message{Action: action, Payload: raw})
}

func nextEvent(t *testing.T, client *Client) Event {
	t.Helper()

	select {
	case event := <-client.Events():
		return event
	case <-time.After(time.Second):
		t.Fatal("no event emitted")
		return nil
	}
}

func requireNoEvent(t *testing.T, client *Client) {
	t.Helper()

	select {
	case event := <-client.Events():
		t.Fatalf("unexpected event %T", event)
	default:
	}
}

func TestNew(t *testing.T) {
	t.Run("Rejects a config without a url", func(t *testing.T) {
		_, err := New(Config{Room: "r1", Player: &entity.Player{ID: "p"}})
		require.ErrorIs(t, err, ErrURLRequired)
	})

	t.Run("Rejects a config without a room", func(t *testing.T) {
		_, err := New(Config{URL: "ws://relay.test/ws", Player: &entity.Player{ID: "p"}})
		require.ErrorIs(t, err, ErrRoomRequired)
	})

	t.Run("Rejects a config without a player identity", func(t *testing.T) {
		_, err := New(Config{URL: "ws://relay.test/ws", Room: "r1", Player: &entity.Player{}})
		require.ErrorIs(t, err, ErrPlayerRequired)
	})
}

func TestClient_RoomJoined(t *testing.T) {
	t.Run("Adopts the snapshot roster and game state", func(t *testing.T) {
		// Given: a connected client
		client, _ := newTestClient(t)

		state := entity.NewGameState("othello", []byte(`{"turn":2}`))
		snapshot := &entity.Room{
			Room: "r1",
			Players: []*entity.Player{
				{ID: "self", IsOwner: true},
				{ID: "other"},
			},
			GameState: state,
		}

		// When: the relay confirms the join
		err := dispatch(t, client, "room_joined", roomNotice{Room: "r1", Snapshot: snapshot})
		require.NoError(t, err)

		// Then: the roster holds the remote player but not the local one
		roster := client.Players()
		require.Len(t, roster, 1)
		assert.Equal(t, "other", roster[0].ID)

		// And: the room's state replaced the local one
		require.NotNil(t, client.GameState())
		assert.Equal(t, state.ID, client.GameState().ID)

		event := nextEvent(t, client)
		joined, ok := event.(RoomJoined)
		require.True(t, ok, "expected RoomJoined, got %T", event)
		assert.Equal(t, "r1", joined.Room.Room)
	})

	t.Run("Keeps the local state when the snapshot carries none", func(t *testing.T) {
		// Given: a client without a snapshot state on offer
		client, _ := newTestClient(t)

		// When: the relay confirms the join with no game state
		err := dispatch(t, client, "room_joined", roomNotice{
			Room:     "r1",
			Snapshot: &entity.Room{Room: "r1", Players: []*entity.Player{{ID: "self"}}},
		})
		require.NoError(t, err)

		// Then: the local state is untouched
		assert.Nil(t, client.GameState())
	})

	t.Run("Rejects a confirmation without a snapshot", func(t *testing.T) {
		client, _ := newTestClient(t)

		err := dispatch(t, client, "room_joined", roomNotice{Room: "r1"})
		require.ErrorIs(t, err, apperror.ErrMalformedState)
	})
}

func TestClient_RosterReconciliation(t *testing.T) {
	t.Run("Remote join extends the roster", func(t *testing.T) {
		// Given: a connected client
		client, _ := newTestClient(t)

		// When: another player joins
		err := dispatch(t, client, "player_join", playerNotice{Player: &entity.Player{ID: "other"}})
		require.NoError(t, err)

		// Then: the roster grew and the event fired
		require.Len(t, client.Players(), 1)

		event := nextEvent(t, client)
		joined, ok := event.(PlayerJoined)
		require.True(t, ok, "expected PlayerJoined, got %T", event)
		assert.Equal(t, "other", joined.Player.ID)
	})

	t.Run("Echo of the local player's own join is suppressed", func(t *testing.T) {
		// Given: a connected client
		client, _ := newTestClient(t)

		// When: the relay echoes the client's own join back
		err := dispatch(t, client, "player_join", playerNotice{Player: &entity.Player{ID: "self"}})
		require.NoError(t, err)

		// Then: no roster entry and no event
		assert.Empty(t, client.Players())
		requireNoEvent(t, client)
	})

	t.Run("Remote leave shrinks the roster", func(t *testing.T) {
		// Given: a roster with one remote player
		client, _ := newTestClient(t)
		require.NoError(t, dispatch(t, client, "player_join", playerNotice{Player: &entity.Player{ID: "other"}}))
		<-client.Events()

		// When: that player leaves
		err := dispatch(t, client, "player_leave", playerNotice{Player: &entity.Player{ID: "other"}})
		require.NoError(t, err)

		// Then: the roster is empty again
		assert.Empty(t, client.Players())

		event := nextEvent(t, client)
		_, ok := event.(PlayerLeft)
		require.True(t, ok, "expected PlayerLeft, got %T", event)
	})
}

func TestClient_SetOwner(t *testing.T) {
	t.Run("Announced self ownership flips the local flag", func(t *testing.T) {
		// Given: a non-owner client with one remote player
		client, _ := newTestClient(t)
		require.NoError(t, dispatch(t, client, "player_join", playerNotice{Player: &entity.Player{ID: "other", IsOwner: true}}))
		<-client.Events()

		// When: the relay hands ownership to the local player
		err := dispatch(t, client, "set_owner", playerNotice{Player: &entity.Player{ID: "self"}})
		require.NoError(t, err)

		// Then: the local player owns the room and nobody else does
		assert.True(t, client.Player().IsOwner)
		require.Len(t, client.Players(), 1)
		assert.False(t, client.Players()[0].IsOwner)

		event := nextEvent(t, client)
		changed, ok := event.(OwnerChanged)
		require.True(t, ok, "expected OwnerChanged, got %T", event)
		assert.True(t, changed.IsSelf)
	})

	t.Run("Announced remote ownership clears the local flag", func(t *testing.T) {
		// Given: a client that currently believes it owns the room
		client, _ := newTestClient(t)
		client.player.IsOwner = true
		require.NoError(t, dispatch(t, client, "player_join", playerNotice{Player: &entity.Player{ID: "other"}}))
		<-client.Events()

		// When: the relay names the remote player owner
		err := dispatch(t, client, "set_owner", playerNotice{Player: &entity.Player{ID: "other"}})
		require.NoError(t, err)

		// Then: the flags swapped
		assert.False(t, client.Player().IsOwner)
		require.Len(t, client.Players(), 1)
		assert.True(t, client.Players()[0].IsOwner)

		event := nextEvent(t, client)
		changed, ok := event.(OwnerChanged)
		require.True(t, ok, "expected OwnerChanged, got %T", event)
		assert.False(t, changed.IsSelf)
	})
}

func TestClient_StateReconciliation(t *testing.T) {
	t.Run("Valid sync replaces the state wholesale", func(t *testing.T) {
		// Given: a connected client
		client, _ := newTestClient(t)
		state := entity.NewGameState("othello", []byte(`{"moves":5}`))

		// When: a peer syncs its state
		err := dispatch(t, client, "sync_game", state)
		require.NoError(t, err)

		// Then: the local state is the synced one
		assert.Equal(t, state.ID, client.GameState().ID)

		event := nextEvent(t, client)
		synced, ok := event.(StateSynced)
		require.True(t, ok, "expected StateSynced, got %T", event)
		assert.Equal(t, state.ID, synced.State.ID)
	})

	t.Run("Malformed sync never touches the local state", func(t *testing.T) {
		// Given: a client with an adopted state
		client, _ := newTestClient(t)
		state := entity.NewGameState("othello", []byte(`{"moves":5}`))
		require.NoError(t, dispatch(t, client, "sync_game", state))
		<-client.Events()

		// When: a shape-invalid state arrives
		err := dispatch(t, client, "sync_game", &entity.GameState{ID: "x", State: []byte(`{}`)})

		// Then: the sync is rejected and the old state survives
		require.ErrorIs(t, err, apperror.ErrMalformedState)
		assert.Equal(t, state.ID, client.GameState().ID)
		requireNoEvent(t, client)
	})

	t.Run("Start announcement carries the fresh state", func(t *testing.T) {
		client, _ := newTestClient(t)
		state := entity.NewGameState("othello", []byte(`{"moves":0}`))

		require.NoError(t, dispatch(t, client, "start_game", state))

		event := nextEvent(t, client)
		started, ok := event.(GameStarted)
		require.True(t, ok, "expected GameStarted, got %T", event)
		assert.Equal(t, state.ID, started.State.ID)
	})
}

func TestClient_PlayerMove(t *testing.T) {
	t.Run("Builds the movement record and sends it", func(t *testing.T) {
		// Given: a connected client
		client, conn := newTestClient(t)

		// When: the client announces a move
		record, err := client.PlayerMove([]byte(`[[2,3]]`))
		require.NoError(t, err)

		// Then: the record carries a fresh identity and the room context
		assert.NotEmpty(t, record.ID)
		assert.Equal(t, "r1", record.Room)
		assert.Equal(t, "self", record.Player.ID)
		assert.NotZero(t, record.Timestamp)

		// And: exactly one player_move frame went out
		frames := conn.sent()
		require.Len(t, frames, 1)
		assert.Equal(t, "player_move", frames[0].Action)

		var sent entity.Movement
		require.NoError(t, json.Unmarshal(frames[0].Payload, &sent))
		assert.Equal(t, record.ID, sent.ID)
		assert.JSONEq(t, `[[2,3]]`, string(sent.Movement))
	})

	t.Run("Fails when the client never connected", func(t *testing.T) {
		client, err := New(Config{
			URL:    "ws://relay.test/ws",
			Room:   "r1",
			Player: &entity.Player{ID: "self"},
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		require.NoError(t, err)

		_, err = client.PlayerMove([]byte(`[[2,3]]`))
		require.ErrorIs(t, err, apperror.ErrNotConnected)
	})

	t.Run("Inbound move surfaces as an event", func(t *testing.T) {
		// Given: a connected client
		client, _ := newTestClient(t)
		movement := entity.NewMovement("r1", &entity.Player{ID: "other"}, []byte(`[[2,3],[3,3]]`))

		// When: a peer's move arrives
		require.NoError(t, dispatch(t, client, "player_move", movement))

		// Then: the move is surfaced untouched
		event := nextEvent(t, client)
		received, ok := event.(MoveReceived)
		require.True(t, ok, "expected MoveReceived, got %T", event)
		assert.Equal(t, movement.ID, received.Movement.ID)
		assert.Equal(t, "other", received.Movement.Player.ID)
	})
}

func TestClient_Lifecycle(t *testing.T) {
	t.Run("Only the owner may start the game", func(t *testing.T) {
		// Given: a non-owner client
		client, conn := newTestClient(t)

		// When: it tries to start the game
		err := client.StartGame()

		// Then: the request is refused locally, nothing is sent
		require.ErrorIs(t, err, apperror.ErrNotRoomOwner)
		assert.Empty(t, conn.sent())
	})

	t.Run("Owner start and restart are transmitted", func(t *testing.T) {
		// Given: a client that owns the room
		client, conn := newTestClient(t)
		client.player.IsOwner = true

		// When: it starts and later restarts the game
		require.NoError(t, client.StartGame())
		require.NoError(t, client.RestartGame())

		// Then: both requests went over the wire
		frames := conn.sent()
		require.Len(t, frames, 2)
		assert.Equal(t, "start_game", frames[0].Action)
		assert.Equal(t, "restart_game", frames[1].Action)
	})

	t.Run("Owner end carries the final state", func(t *testing.T) {
		// Given: a client that owns the room
		client, conn := newTestClient(t)
		client.player.IsOwner = true
		state := entity.NewGameState("othello", []byte(`{"status":"finished"}`))

		// When: it ends the game
		require.NoError(t, client.EndGame(state))

		// Then: the end announcement includes the state
		frames := conn.sent()
		require.Len(t, frames, 1)
		assert.Equal(t, "game_end", frames[0].Action)

		var request syncRequest
		require.NoError(t, json.Unmarshal(frames[0].Payload, &request))
		require.NotNil(t, request.State)
		assert.Equal(t, state.ID, request.State.ID)
	})
}

func TestClient_HandleMessage(t *testing.T) {
	t.Run("Rejects an unrecognized action", func(t *testing.T) {
		client, _ := newTestClient(t)

		err := client.handleMessage(&message{Action: "teleport"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "teleport")
	})
}
