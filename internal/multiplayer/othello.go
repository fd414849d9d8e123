package multiplayer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/othellohq/othello-backend/internal/apperror"
	"github.com/othellohq/othello-backend/internal/entity"
	"github.com/othellohq/othello-backend/internal/othello"
)

const notificationBuffer = 16

// Notification is the engine's local stream: applied moves, turn
// transitions and the terminal state.
type Notification interface {
	isNotification()
}

type MoveApplied struct {
	Move  othello.Coordinate
	Flips []othello.Coordinate
	By    othello.Chip
}

type TurnChanged struct {
	Turn othello.Chip
}

// TurnKept reports an implicit pass: the opponent had no legal
// destination, so the same color moves again.
type TurnKept struct {
	Turn othello.Chip
}

type GameOver struct {
	Winner othello.Chip
}

func (MoveApplied) isNotification() {}
func (TurnChanged) isNotification() {}
func (TurnKept) isNotification()    {}
func (GameOver) isNotification()    {}

// session is the slice of Client the game binding needs; narrowed for
// tests.
type session interface {
	Player() *entity.Player
	GameState() *entity.GameState
	Events() <-chan Event
	PlayerMove(movement json.RawMessage) (*entity.Movement, error)
	UpdatePlayerState(state json.RawMessage)
}

// OthelloGame binds the rules engine to a multiplayer session: local
// moves are validated and applied first, then forwarded fire-and-forget;
// inbound moves are applied through the same engine. Each client mirror
// is authoritative for itself only.
type OthelloGame struct {
	logger *slog.Logger
	client session

	mu      sync.Mutex
	state   *othello.State
	chip    othello.Chip
	history []*entity.Movement

	notifications chan Notification
}

// NewOthelloGame builds the local mirror. The room owner plays black,
// the opponent white.
func NewOthelloGame(logger *slog.Logger, client session) (*OthelloGame, error) {
	player := client.Player()

	state := othello.NewState()
	if remote := client.GameState(); remote != nil {
		parsed, err := othello.ParseState(remote)
		if err != nil {
			return nil, fmt.Errorf("failed to parse game state: %w", err)
		}

		state = parsed
	}

	chip := othello.ChipWhite
	if player.IsOwner {
		chip = othello.ChipBlack
	}

	game := &OthelloGame{
		logger: logger.With("component", "othello", "chip", chip.String()),
		client: client,

		state: state,
		chip:  chip,

		notifications: make(chan Notification, notificationBuffer),
	}

	game.publishPlayerState()

	return game, nil
}

// Notifications returns the engine's local stream.
func (that *OthelloGame) Notifications() <-chan Notification {
	return that.notifications
}

func (that *OthelloGame) Chip() othello.Chip {
	return that.chip
}

// Board returns a copy of the current board.
func (that *OthelloGame) Board() othello.Board {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.state.Board
}

func (that *OthelloGame) Turn() othello.Chip {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.state.Turn
}

// History returns the moves this client sent, in send order.
func (that *OthelloGame) History() []*entity.Movement {
	that.mu.Lock()
	defer that.mu.Unlock()

	history := make([]*entity.Movement, len(that.history))
	copy(history, that.history)

	return history
}

// MakeMove validates and applies the local player's move, then forwards
// it through the session. The movement payload carries the placed cell
// first, followed by every flipped cell.
func (that *OthelloGame) MakeMove(c othello.Coordinate) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.state.Turn != that.chip {
		return apperror.ErrNotYourTurn
	}

	previousTurn := that.state.Turn

	flips, err := that.state.ApplyMove(c)
	if err != nil {
		return fmt.Errorf("failed to apply move: %w", err)
	}

	that.publishPlayerState()

	payload, err := json.Marshal(append([]othello.Coordinate{c}, flips...))
	if err != nil {
		return fmt.Errorf("failed to marshal movement: %w", err)
	}

	movement, err := that.client.PlayerMove(payload)
	if err != nil {
		return fmt.Errorf("failed to forward movement: %w", err)
	}

	that.history = append(that.history, movement)

	that.notify(c, flips, previousTurn)

	return nil
}

// Run consumes session events until the context is done. Inbound moves
// reconcile the local mirror; state syncs replace it wholesale.
func (that *OthelloGame) Run(ctx context.Context) {
	log := that.logger.With("method", "Run")

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-that.client.Events():
			if !ok {
				return
			}

			switch ev := event.(type) {
			case MoveReceived:
				if err := that.applyRemote(ev.Movement); err != nil {
					log.Error("failed to apply remote move", "error", err)
				}
			case StateSynced:
				that.replaceState(ev.State, log)
			case GameStarted:
				that.replaceState(ev.State, log)
			case GameEnded:
				that.replaceState(ev.State, log)
			}
		}
	}
}

// applyRemote applies an opponent's relayed move. A movement whose
// player doesn't hold the current turn is ignored, which also drops the
// echo of the local player's own moves.
func (that *OthelloGame) applyRemote(movement *entity.Movement) error {
	var coords []othello.Coordinate

	if err := json.Unmarshal(movement.Movement, &coords); err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrMalformedState, err)
	}

	if len(coords) == 0 {
		return apperror.ErrMalformedState
	}

	var moverState othello.PlayerState
	if movement.Player == nil || movement.Player.GameState == nil {
		return apperror.ErrMalformedState
	}

	if err := json.Unmarshal(movement.Player.GameState, &moverState); err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrMalformedState, err)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if moverState.Chip != that.state.Turn {
		return nil
	}

	previousTurn := that.state.Turn

	flips, err := that.state.ApplyMove(coords[0])
	if err != nil {
		return fmt.Errorf("failed to apply move: %w", err)
	}

	that.publishPlayerState()

	that.notify(coords[0], flips, previousTurn)

	return nil
}

func (that *OthelloGame) replaceState(remote *entity.GameState, log *slog.Logger) {
	parsed, err := othello.ParseState(remote)
	if err != nil {
		log.Error("failed to parse synced state", "error", err)
		return
	}

	that.mu.Lock()
	that.state = parsed
	that.publishPlayerState()
	that.mu.Unlock()
}

// publishPlayerState mirrors the derived per-player payload onto the
// session so outbound movements carry the mover's chip. Callers hold the
// game mutex.
func (that *OthelloGame) publishPlayerState() {
	payload, err := json.Marshal(that.state.PlayerState(that.chip))
	if err != nil {
		return
	}

	that.client.UpdatePlayerState(payload)
}

func (that *OthelloGame) notify(move othello.Coordinate, flips []othello.Coordinate, previousTurn othello.Chip) {
	that.push(MoveApplied{Move: move, Flips: flips, By: previousTurn})

	switch {
	case that.state.IsFinished():
		that.push(GameOver{Winner: that.state.Winner})
	case that.state.Turn == previousTurn:
		that.push(TurnKept{Turn: that.state.Turn})
	default:
		that.push(TurnChanged{Turn: that.state.Turn})
	}
}

func (that *OthelloGame) push(notification Notification) {
	select {
	case that.notifications <- notification:
	default:
		that.logger.Warn("notification dropped, consumer is too slow", "notification", fmt.Sprintf("%T", notification))
	}
}
