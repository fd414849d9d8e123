package othello

import (
	"encoding/json"
	"fmt"

	"github.com/othellohq/othello-backend/internal/apperror"
	"github.com/othellohq/othello-backend/internal/entity"
)

const GameTag = "othello"

const (
	StatusWaiting  = "waiting"
	StatusOngoing  = "ongoing"
	StatusFinished = "finished"
)

// directions are the 8 compass neighbors walked during flip detection.
var directions = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// State is the Othello payload carried inside entity.GameState.
type State struct {
	Board   Board            `json:"board"`
	Turn    Chip             `json:"turn"`
	Status  string           `json:"status"`
	Winner  Chip             `json:"winner"`
	Moves   []Coordinate     `json:"moves,omitempty"`
	Players []*entity.Player `json:"players,omitempty"`
}

// PlayerState is the per-player game payload kept on entity.Player.
type PlayerState struct {
	Chip       Chip `json:"chip"`
	TotalChips int  `json:"total_chips"`
	Winner     bool `json:"winner"`
}

func NewState() *State {
	return &State{
		Board:  NewBoard(),
		Turn:   ChipBlack,
		Status: StatusWaiting,
	}
}

// NewGameState wraps a fresh State into a protocol snapshot.
func NewGameState() (*entity.GameState, error) {
	payload, err := json.Marshal(NewState())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal othello state: %w", err)
	}

	return entity.NewGameState(GameTag, payload), nil
}

// ParseState decodes the othello payload of a protocol snapshot; the
// shape is validated before it may replace any local state.
func ParseState(gameState *entity.GameState) (*State, error) {
	if !gameState.Validate() {
		return nil, apperror.ErrMalformedState
	}

	if gameState.Game != GameTag {
		return nil, fmt.Errorf("%w: %q", apperror.ErrInvalidGameTag, gameState.Game)
	}

	var state State
	if err := json.Unmarshal(gameState.State, &state); err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrMalformedState, err)
	}

	return &state, nil
}

func (that *State) Start() {
	if that.Status == StatusWaiting {
		that.Status = StatusOngoing
	}
}

func (that *State) IsFinished() bool {
	return that.Status == StatusFinished
}

// FlipCandidates walks outward from the candidate cell in all 8
// directions and collects every opponent chip enclosed between the cell
// and a same-color terminator. An empty result means the move is illegal.
func (that *State) FlipCandidates(c Coordinate, side Chip) []Coordinate {
	var result []Coordinate

	if that.Board.At(c) != ChipEmpty {
		return result
	}

	for _, dir := range directions {
		dx, dy := dir[0], dir[1]
		foundOpponent := false

		i, j := c[0]+dx, c[1]+dy
		for inBounds(i, j) {
			value := that.Board[i][j]

			if value == ChipEmpty {
				break
			}

			if value == side {
				if foundOpponent {
					for {
						i -= dx
						j -= dy

						if i == c[0] && j == c[1] {
							break
						}

						result = append(result, Coordinate{i, j})
					}
				}
				break
			}

			foundOpponent = true
			i += dx
			j += dy
		}
	}

	return result
}

// ValidateMove reports whether placing side's chip at c flips at least
// one opponent chip.
func (that *State) ValidateMove(c Coordinate, side Chip) bool {
	return len(that.FlipCandidates(c, side)) > 0
}

// ApplyMove places the current turn holder's chip at c, flips every
// enclosed opponent chip and arbitrates the next turn. A move changing
// fewer than 2 cells is rejected with the board left untouched, which
// guards against applying a move whose legality check was bypassed.
func (that *State) ApplyMove(c Coordinate) ([]Coordinate, error) {
	if that.IsFinished() {
		return nil, apperror.ErrGameFinished
	}

	if !inBounds(c[0], c[1]) {
		return nil, fmt.Errorf("%w: out of bounds %v", apperror.ErrIllegalMove, c)
	}

	if that.Board.At(c) != ChipEmpty {
		return nil, apperror.ErrCellOccupied
	}

	flips := that.FlipCandidates(c, that.Turn)
	if len(flips) == 0 {
		return nil, apperror.ErrIllegalMove
	}

	that.Board.Set(c, that.Turn)
	for _, flip := range flips {
		that.Board.Set(flip, that.Turn)
	}

	that.Moves = append(that.Moves, c)
	that.Status = StatusOngoing
	that.advanceTurn()

	return flips, nil
}

// advanceTurn passes the turn to the opponent only when the opponent has
// at least one legal destination. When the mover keeps the turn the pass
// is implicit; when neither color can move the game is over.
func (that *State) advanceTurn() {
	next := that.Turn.Opponent()

	if that.HasValidMoves(next) {
		that.Turn = next
		return
	}

	if that.HasValidMoves(that.Turn) {
		return
	}

	that.finish()
}

// HasValidMoves scans the full board for at least one legal destination
// of the given color.
func (that *State) HasValidMoves(side Chip) bool {
	for i := 0; i < BoardSize; i++ {
		for j := 0; j < BoardSize; j++ {
			if that.Board[i][j] == ChipEmpty && that.ValidateMove(Coordinate{i, j}, side) {
				return true
			}
		}
	}

	return false
}

// finish declares the color with more chips the winner; a tie leaves the
// winner unset.
func (that *State) finish() {
	that.Status = StatusFinished

	white := that.Board.Count(ChipWhite)
	black := that.Board.Count(ChipBlack)

	switch {
	case black > white:
		that.Winner = ChipBlack
	case white > black:
		that.Winner = ChipWhite
	default:
		that.Winner = ChipEmpty
	}
}

// PlayerState derives the per-player payload for one color.
func (that *State) PlayerState(side Chip) PlayerState {
	return PlayerState{
		Chip:       side,
		TotalChips: that.Board.Count(side),
		Winner:     that.IsFinished() && that.Winner == side,
	}
}
