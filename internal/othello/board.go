package othello

// Chip is a board cell's occupancy: empty, or one of the two colors.
type Chip int

const (
	ChipEmpty Chip = iota
	ChipWhite
	ChipBlack
)

func (that Chip) Opponent() Chip {
	switch that {
	case ChipWhite:
		return ChipBlack
	case ChipBlack:
		return ChipWhite
	default:
		return ChipEmpty
	}
}

func (that Chip) String() string {
	switch that {
	case ChipWhite:
		return "white"
	case ChipBlack:
		return "black"
	default:
		return "empty"
	}
}

const BoardSize = 8

// Coordinate is a board position as [x, y].
type Coordinate [2]int

type Board [BoardSize][BoardSize]Chip

// NewBoard returns a board holding the canonical starting pattern in the
// four center cells.
func NewBoard() Board {
	var board Board

	board[3][3] = ChipWhite
	board[3][4] = ChipBlack
	board[4][3] = ChipBlack
	board[4][4] = ChipWhite

	return board
}

func (that *Board) At(c Coordinate) Chip {
	return that[c[0]][c[1]]
}

func (that *Board) Set(c Coordinate, chip Chip) {
	that[c[0]][c[1]] = chip
}

// Count returns how many cells hold the given chip.
func (that *Board) Count(chip Chip) int {
	total := 0

	for i := range that {
		for j := range that[i] {
			if that[i][j] == chip {
				total++
			}
		}
	}

	return total
}

func inBounds(x, y int) bool {
	return x >= 0 && x < BoardSize && y >= 0 && y < BoardSize
}
