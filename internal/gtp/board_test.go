package gtp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dmmcquay/katago-web/internal/gtp"
)

func play(t *testing.T, b *gtp.Board, c gtp.Color, vertex string) int {
	t.Helper()
	p, err := gtp.Decode(vertex, b.Size())
	require.NoError(t, err)
	n, err := b.Play(gtp.Move{Color: c, Point: p})
	require.NoError(t, err, "play %s %s", c, vertex)
	return n
}

func TestNewBoard(t *testing.T) {
	_, err := gtp.NewBoard(1)
	assert.Error(t, err)
	_, err = gtp.NewBoard(26)
	assert.Error(t, err)

	b, err := gtp.NewBoard(19)
	require.NoError(t, err)
	assert.Equal(t, 19, b.Size())
	assert.Zero(t, b.StoneCount())
}

func TestBoardCapture(t *testing.T) {
	b, err := gtp.NewBoard(9)
	require.NoError(t, err)

	// White stone at E5 surrounded by black.
	play(t, b, gtp.White, "E5")
	play(t, b, gtp.Black, "D5")
	play(t, b, gtp.Black, "F5")
	play(t, b, gtp.Black, "E6")
	captured := play(t, b, gtp.Black, "E4")

	assert.Equal(t, 1, captured)
	assert.Equal(t, 4, b.StoneCount())
	p, _ := gtp.Decode("E5", 9)
	assert.Equal(t, gtp.Empty, b.At(p))
}

func TestBoardCornerGroupCapture(t *testing.T) {
	b, err := gtp.NewBoard(9)
	require.NoError(t, err)

	play(t, b, gtp.White, "A1")
	play(t, b, gtp.White, "B1")
	play(t, b, gtp.Black, "A2")
	play(t, b, gtp.Black, "B2")
	captured := play(t, b, gtp.Black, "C1")

	assert.Equal(t, 2, captured)
	assert.Equal(t, 3, b.StoneCount())
}

func TestBoardRejectsOccupied(t *testing.T) {
	b, err := gtp.NewBoard(9)
	require.NoError(t, err)
	play(t, b, gtp.Black, "C3")

	p, _ := gtp.Decode("C3", 9)
	_, err = b.Play(gtp.Move{Color: gtp.White, Point: p})
	assert.ErrorIs(t, err, gtp.ErrOccupied)
	assert.Equal(t, 1, b.StoneCount())
}

func TestBoardRejectsSuicide(t *testing.T) {
	b, err := gtp.NewBoard(9)
	require.NoError(t, err)
	play(t, b, gtp.Black, "A2")
	play(t, b, gtp.Black, "B1")

	p, _ := gtp.Decode("A1", 9)
	_, err = b.Play(gtp.Move{Color: gtp.White, Point: p})
	assert.ErrorIs(t, err, gtp.ErrSuicide)
	assert.Equal(t, gtp.Empty, b.At(p))
	assert.Equal(t, 2, b.StoneCount())
}

func TestBoardAllowSuicide(t *testing.T) {
	setup := func(t *testing.T, allow bool) *gtp.Board {
		b, err := gtp.NewBoard(9)
		require.NoError(t, err)
		b.AllowSuicide(allow)
		play(t, b, gtp.White, "A3")
		play(t, b, gtp.White, "B2")
		play(t, b, gtp.White, "C1")
		play(t, b, gtp.Black, "A1")
		play(t, b, gtp.Black, "A2")
		return b
	}
	b1, _ := gtp.Decode("B1", 9)

	t.Run("rejected by default", func(t *testing.T) {
		b := setup(t, false)
		_, err := b.Play(gtp.Move{Color: gtp.Black, Point: b1})
		assert.ErrorIs(t, err, gtp.ErrSuicide)
		assert.Equal(t, 5, b.StoneCount())
	})

	t.Run("group removed when allowed", func(t *testing.T) {
		b := setup(t, true)
		captured, err := b.Play(gtp.Move{Color: gtp.Black, Point: b1})
		require.NoError(t, err)
		assert.Zero(t, captured)
		assert.Equal(t, 3, b.StoneCount())
		for _, v := range []string{"A1", "A2", "B1"} {
			p, _ := gtp.Decode(v, 9)
			assert.Equal(t, gtp.Empty, b.At(p), v)
		}
	})

	t.Run("single stone still rejected", func(t *testing.T) {
		b, err := gtp.NewBoard(9)
		require.NoError(t, err)
		b.AllowSuicide(true)
		play(t, b, gtp.Black, "A2")
		play(t, b, gtp.Black, "B1")

		a1, _ := gtp.Decode("A1", 9)
		_, err = b.Play(gtp.Move{Color: gtp.White, Point: a1})
		assert.ErrorIs(t, err, gtp.ErrSuicide)
		assert.Equal(t, 2, b.StoneCount())
	})
}

func TestBoardCaptureIsNotSuicide(t *testing.T) {
	b, err := gtp.NewBoard(9)
	require.NoError(t, err)

	// Black A1 has a single liberty at B1; white B1 fills its own last
	// liberty but captures first.
	play(t, b, gtp.Black, "A1")
	play(t, b, gtp.White, "A2")
	play(t, b, gtp.Black, "C1")
	play(t, b, gtp.White, "B2")
	captured := play(t, b, gtp.White, "B1")
	assert.Equal(t, 1, captured)
}

func TestBoardPassAndClear(t *testing.T) {
	b, err := gtp.NewBoard(9)
	require.NoError(t, err)

	n, err := b.Play(gtp.Move{Color: gtp.Black, Pass: true})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = b.Play(gtp.Move{Pass: true})
	assert.ErrorIs(t, err, gtp.ErrNoColor)

	play(t, b, gtp.Black, "E5")
	play(t, b, gtp.White, "D5")
	b.Clear()
	assert.Zero(t, b.StoneCount())
}

func TestBoardString(t *testing.T) {
	b, err := gtp.NewBoard(3)
	require.NoError(t, err)
	play(t, b, gtp.Black, "A3")
	play(t, b, gtp.White, "C1")

	assert.Equal(t, "   A B C\n 3 X . .\n 2 . . .\n 1 . . O\n", b.String())
}

func TestColorToMove(t *testing.T) {
	assert.Equal(t, gtp.Black, gtp.ColorToMove(0))
	assert.Equal(t, gtp.White, gtp.ColorToMove(1))
	assert.Equal(t, gtp.Black, gtp.ColorToMove(2))
	assert.Equal(t, "b", gtp.Black.GTP())
	assert.Equal(t, "w", gtp.White.GTP())
	assert.Equal(t, gtp.Black, gtp.White.Opponent())
}

func TestMoveVertex(t *testing.T) {
	v, err := gtp.Move{Color: gtp.Black, Pass: true}.Vertex(19)
	require.NoError(t, err)
	assert.Equal(t, "pass", v)

	v, err = gtp.Move{Color: gtp.White, Point: gtp.Point{X: 3, Y: 15}}.Vertex(19)
	require.NoError(t, err)
	assert.Equal(t, "D4", v)
}

func TestBoardInvariantsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(2, 9).Draw(t, "size")
		b, err := gtp.NewBoard(size)
		if err != nil {
			t.Fatal(err)
		}

		n := rapid.IntRange(0, 120).Draw(t, "moves")
		applied := 0
		for i := 0; i < n; i++ {
			p := gtp.Point{
				X: rapid.IntRange(0, size-1).Draw(t, "x"),
				Y: rapid.IntRange(0, size-1).Draw(t, "y"),
			}
			color := gtp.ColorToMove(applied)
			before := b.StoneCount()
			captured, err := b.Play(gtp.Move{Color: color, Point: p})
			if err != nil {
				if b.StoneCount() != before {
					t.Fatalf("rejected move changed stone count %d -> %d", before, b.StoneCount())
				}
				continue
			}
			applied++
			if b.StoneCount() != before+1-captured {
				t.Fatalf("stone count %d after %d-capture move from %d", b.StoneCount(), captured, before)
			}
			if b.StoneCount() > size*size {
				t.Fatalf("stone count %d exceeds %d", b.StoneCount(), size*size)
			}
			if b.At(p) != color {
				t.Fatalf("played point %v is %v, want %v", p, b.At(p), color)
			}
		}

		if got, want := gtp.ColorToMove(applied), gtp.Black; applied%2 == 0 && got != want {
			t.Fatalf("after %d moves got %v", applied, got)
		}
		if applied%2 == 1 && gtp.ColorToMove(applied) != gtp.White {
			t.Fatalf("after %d moves expected white", applied)
		}
	})
}
