package gtp

import (
	"errors"
	"fmt"
	"strings"
)

// Color is the state of a board point, or the side making a move.
type Color int

const (
	Empty Color = iota
	Black
	White
)

// String returns the GTP color name.
func (c Color) String() string {
	switch c {
	case Black:
		return "black"
	case White:
		return "white"
	default:
		return "empty"
	}
}

// GTP returns the short color argument used in commands ("b" or "w").
func (c Color) GTP() string {
	switch c {
	case Black:
		return "b"
	case White:
		return "w"
	default:
		return ""
	}
}

// Opponent returns the other side. Empty has no opponent.
func (c Color) Opponent() Color {
	switch c {
	case Black:
		return White
	case White:
		return Black
	default:
		return Empty
	}
}

// ColorToMove returns the side to play after n alternating moves starting
// with black.
func ColorToMove(n int) Color {
	if n%2 == 0 {
		return Black
	}
	return White
}

// Move is a stone placement or a pass by one side.
type Move struct {
	Color Color
	Point Point
	Pass  bool
}

// Vertex returns the GTP vertex for the move on a size x size board.
func (m Move) Vertex(size int) (string, error) {
	if m.Pass {
		return "pass", nil
	}
	return Encode(m.Point, size)
}

var (
	// ErrOccupied is returned when a stone is played on a non-empty point.
	ErrOccupied = errors.New("point is occupied")

	// ErrSuicide is returned when a move leaves its own group without liberties.
	ErrSuicide = errors.New("suicide is not allowed")

	// ErrNoColor is returned for moves without a side.
	ErrNoColor = errors.New("move has no color")
)

// Board tracks stones locally so obviously illegal moves are rejected before
// they reach the engine. Ko is left to the engine.
type Board struct {
	size    int
	cells   []Color
	stones  int
	suicide bool
}

// NewBoard returns an empty size x size board.
func NewBoard(size int) (*Board, error) {
	if !ValidBoardSize(size) {
		return nil, fmt.Errorf("unsupported board size %d", size)
	}
	return &Board{size: size, cells: make([]Color, size*size)}, nil
}

// Size returns the board dimension.
func (b *Board) Size() int { return b.size }

// StoneCount returns the number of stones on the board.
func (b *Board) StoneCount() int { return b.stones }

// At returns the color at p, or Empty if p is off the board.
func (b *Board) At(p Point) Color {
	if !p.InBounds(b.size) {
		return Empty
	}
	return b.cells[p.Y*b.size+p.X]
}

// Clear removes every stone.
func (b *Board) Clear() {
	for i := range b.cells {
		b.cells[i] = Empty
	}
	b.stones = 0
}

// AllowSuicide makes multi-stone suicide legal, as under Tromp-Taylor and
// New Zealand rules. The suicided group is removed from the board. A lone
// stone without liberties is still rejected.
func (b *Board) AllowSuicide(allow bool) {
	b.suicide = allow
}

// Play applies m, removing any opponent groups left without liberties, and
// returns the number of opponent stones captured. The board is unchanged on
// error.
func (b *Board) Play(m Move) (int, error) {
	if m.Color != Black && m.Color != White {
		return 0, ErrNoColor
	}
	if m.Pass {
		return 0, nil
	}
	if !m.Point.InBounds(b.size) {
		return 0, &DecodeError{Vertex: fmt.Sprintf("(%d,%d)", m.Point.X, m.Point.Y), Size: b.size, Kind: ErrOutOfRange}
	}
	if b.At(m.Point) != Empty {
		return 0, ErrOccupied
	}

	b.set(m.Point, m.Color)

	captured := 0
	opponent := m.Color.Opponent()
	for _, n := range b.neighbors(m.Point) {
		if b.At(n) != opponent {
			continue
		}
		group, libs := b.group(n)
		if libs == 0 {
			for _, p := range group {
				b.set(p, Empty)
			}
			captured += len(group)
		}
	}

	if group, libs := b.group(m.Point); libs == 0 {
		if b.suicide && len(group) > 1 {
			for _, p := range group {
				b.set(p, Empty)
			}
			return captured, nil
		}
		b.set(m.Point, Empty)
		return 0, ErrSuicide
	}
	return captured, nil
}

func (b *Board) set(p Point, c Color) {
	i := p.Y*b.size + p.X
	switch {
	case b.cells[i] == Empty && c != Empty:
		b.stones++
	case b.cells[i] != Empty && c == Empty:
		b.stones--
	}
	b.cells[i] = c
}

func (b *Board) neighbors(p Point) []Point {
	out := make([]Point, 0, 4)
	for _, d := range [4][2]int{{0, 1}, {1, 0}, {0, -1}, {-1, 0}} {
		n := Point{X: p.X + d[0], Y: p.Y + d[1]}
		if n.InBounds(b.size) {
			out = append(out, n)
		}
	}
	return out
}

// group returns the chain containing p and its liberty count.
func (b *Board) group(p Point) ([]Point, int) {
	color := b.At(p)
	if color == Empty {
		return nil, 0
	}

	visited := make([]bool, len(b.cells))
	liberties := make(map[Point]struct{})
	stack := []Point{p}
	visited[p.Y*b.size+p.X] = true
	var chain []Point

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		chain = append(chain, cur)

		for _, n := range b.neighbors(cur) {
			switch b.At(n) {
			case Empty:
				liberties[n] = struct{}{}
			case color:
				if i := n.Y*b.size + n.X; !visited[i] {
					visited[i] = true
					stack = append(stack, n)
				}
			}
		}
	}
	return chain, len(liberties)
}

// String renders the board with GTP coordinates, black as X and white as O.
func (b *Board) String() string {
	var sb strings.Builder
	header := "   " + strings.Join(strings.Split(columnLetters[:b.size], ""), " ") + "\n"
	sb.WriteString(header)
	for y := 0; y < b.size; y++ {
		fmt.Fprintf(&sb, "%2d", b.size-y)
		for x := 0; x < b.size; x++ {
			switch b.At(Point{X: x, Y: y}) {
			case Black:
				sb.WriteString(" X")
			case White:
				sb.WriteString(" O")
			default:
				sb.WriteString(" .")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
