package gtp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// columnLetters is the GTP column alphabet. "I" is skipped to avoid
// confusion with "J" and "1".
const columnLetters = "ABCDEFGHJKLMNOPQRSTUVWXYZ"

const (
	// MinBoardSize and MaxBoardSize bound the sizes the codec can express.
	MinBoardSize = 2
	MaxBoardSize = len(columnLetters)
)

var (
	// ErrMalformed marks a vertex that is not letter+digits.
	ErrMalformed = errors.New("malformed vertex")

	// ErrOutOfRange marks a vertex outside the board.
	ErrOutOfRange = errors.New("vertex out of range")
)

// Point is a zero-based board coordinate. Y=0 is the top row of the array,
// which is the highest-numbered row in GTP notation.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// DecodeError describes why a vertex string could not be decoded.
type DecodeError struct {
	Vertex string
	Size   int
	Kind   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: %q on %dx%d board", e.Kind, e.Vertex, e.Size, e.Size)
}

func (e *DecodeError) Unwrap() error { return e.Kind }

// ValidBoardSize reports whether size can be expressed in GTP coordinates.
func ValidBoardSize(size int) bool {
	return size >= MinBoardSize && size <= MaxBoardSize
}

// InBounds reports whether p lies on a size x size board.
func (p Point) InBounds(size int) bool {
	return p.X >= 0 && p.X < size && p.Y >= 0 && p.Y < size
}

// Encode converts p to a GTP vertex such as "D16". The row number is
// size-Y: array row 0 is board row size.
func Encode(p Point, size int) (string, error) {
	if !ValidBoardSize(size) {
		return "", fmt.Errorf("unsupported board size %d", size)
	}
	if !p.InBounds(size) {
		return "", &DecodeError{Vertex: fmt.Sprintf("(%d,%d)", p.X, p.Y), Size: size, Kind: ErrOutOfRange}
	}
	return string(columnLetters[p.X]) + strconv.Itoa(size-p.Y), nil
}

// Decode is the inverse of Encode. Letters are case-insensitive.
func Decode(vertex string, size int) (Point, error) {
	v := strings.ToUpper(strings.TrimSpace(vertex))
	if len(v) < 2 {
		return Point{}, &DecodeError{Vertex: vertex, Size: size, Kind: ErrMalformed}
	}

	x := strings.IndexByte(columnLetters, v[0])
	if x < 0 {
		return Point{}, &DecodeError{Vertex: vertex, Size: size, Kind: ErrMalformed}
	}

	digits := v[1:]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return Point{}, &DecodeError{Vertex: vertex, Size: size, Kind: ErrMalformed}
		}
	}
	row, err := strconv.Atoi(digits)
	if err != nil {
		return Point{}, &DecodeError{Vertex: vertex, Size: size, Kind: ErrMalformed}
	}

	p := Point{X: x, Y: size - row}
	if row < 1 || !p.InBounds(size) {
		return Point{}, &DecodeError{Vertex: vertex, Size: size, Kind: ErrOutOfRange}
	}
	return p, nil
}

// Vertex is a decoded engine move: a point, a pass or a resignation.
type Vertex struct {
	Point  Point
	Pass   bool
	Resign bool
}

// ParseVertex decodes an engine move reply, accepting "pass" and "resign".
func ParseVertex(s string, size int) (Vertex, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pass":
		return Vertex{Pass: true}, nil
	case "resign":
		return Vertex{Resign: true}, nil
	}
	p, err := Decode(s, size)
	if err != nil {
		return Vertex{}, err
	}
	return Vertex{Point: p}, nil
}
