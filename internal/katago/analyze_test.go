package katago

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dmmcquay/katago-web/internal/gtp"
)

var testDefaults = Defaults{BoardSize: 19, Komi: 6.5, MaxVisits: 400, AnalyzeDepth: 10}

func TestNormalizeDefaults(t *testing.T) {
	pos, err := (&AnalysisRequest{}).Normalize(testDefaults)
	require.NoError(t, err)

	assert.Equal(t, 19, pos.BoardSize)
	assert.Equal(t, 6.5, pos.Komi)
	assert.Equal(t, 400, pos.MaxVisits)
	assert.Equal(t, 10, pos.AnalyzeDepth)
	assert.Empty(t, pos.Moves)
	assert.Equal(t, gtp.Black, pos.ToMove())
}

func TestNormalizeMoves(t *testing.T) {
	req := &AnalysisRequest{
		BoardSize: 13,
		Komi:      floatPtr(0.5),
		Moves:     []MoveSpec{At(3, 3), PassMove(), At(9, 9)},
	}
	pos, err := req.Normalize(testDefaults)
	require.NoError(t, err)

	assert.Equal(t, 0.5, pos.Komi)
	require.Len(t, pos.Moves, 3)
	assert.Equal(t, gtp.Move{Color: gtp.Black, Point: gtp.Point{X: 3, Y: 3}}, pos.Moves[0])
	assert.Equal(t, gtp.Move{Color: gtp.White, Pass: true}, pos.Moves[1])
	assert.Equal(t, gtp.Black, pos.Moves[2].Color)
	assert.Equal(t, gtp.White, pos.ToMove())
}

func TestNormalizeSGF(t *testing.T) {
	req := &AnalysisRequest{SGF: `(;SZ[9]KM[5.5]RU[Japanese];B[cc];W[gg])`}
	pos, err := req.Normalize(testDefaults)
	require.NoError(t, err)

	assert.Equal(t, 9, pos.BoardSize)
	assert.Equal(t, 5.5, pos.Komi)
	assert.Equal(t, "japanese", pos.Rules)
	require.Len(t, pos.Moves, 2)
	assert.Equal(t, gtp.Point{X: 2, Y: 2}, pos.Moves[0].Point)

	override := -3.0
	req.Komi = &override
	pos, err = req.Normalize(testDefaults)
	require.NoError(t, err)
	assert.Equal(t, -3.0, pos.Komi, "request komi wins over the record")

	req.MoveNumber = 1
	pos, err = req.Normalize(testDefaults)
	require.NoError(t, err)
	require.Len(t, pos.Moves, 1)
	assert.Equal(t, gtp.White, pos.ToMove())
}

func TestNormalizeRejects(t *testing.T) {
	x := 4
	tests := map[string]*AnalysisRequest{
		"board too small":      {BoardSize: 1},
		"board too large":      {BoardSize: 26},
		"negative visits":      {MaxVisits: -1},
		"too many visits":      {MaxVisits: MaxVisitsLimit + 1},
		"negative depth":       {AnalyzeDepth: -2},
		"depth too large":      {AnalyzeDepth: MaxAnalyzeDepth + 1},
		"komi out of range":    {Komi: floatPtr(1000)},
		"missing y":            {Moves: []MoveSpec{{X: &x}}},
		"off board":            {BoardSize: 9, Moves: []MoveSpec{At(9, 0)}},
		"negative coordinate":  {Moves: []MoveSpec{At(-1, 0)}},
		"bad sgf":              {SGF: "(;B[aa]"},
		"sgf size mismatch":    {BoardSize: 19, SGF: "(;SZ[9];B[aa])"},
		"sgf and moves":        {SGF: "(;SZ[19];B[aa])", Moves: []MoveSpec{At(0, 0)}},
		"move number past end": {SGF: "(;SZ[19];B[aa])", MoveNumber: 2},
		"move number no sgf":   {MoveNumber: 1},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := req.Normalize(testDefaults)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestNormalizeAlternatesColours(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(2, 25).Draw(t, "size")
		n := rapid.IntRange(0, 40).Draw(t, "moves")
		moves := make([]MoveSpec, n)
		for i := range moves {
			if rapid.Bool().Draw(t, "pass") {
				moves[i] = PassMove()
				continue
			}
			moves[i] = At(rapid.IntRange(0, size-1).Draw(t, "x"), rapid.IntRange(0, size-1).Draw(t, "y"))
		}

		pos, err := (&AnalysisRequest{BoardSize: size, Moves: moves}).Normalize(testDefaults)
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		for i, m := range pos.Moves {
			want := gtp.Black
			if i%2 == 1 {
				want = gtp.White
			}
			if m.Color != want {
				t.Fatalf("move %d has color %v", i, m.Color)
			}
		}
		if pos.ToMove() != gtp.ColorToMove(n) {
			t.Fatalf("ToMove = %v after %d moves", pos.ToMove(), n)
		}
	})
}

func TestBuildResultWithoutAnalysis(t *testing.T) {
	pos := &Position{BoardSize: 19, AnalyzeDepth: 5}
	rec := gtp.Move{Color: gtp.Black, Point: gtp.Point{X: 3, Y: 15}}

	res := buildResult(pos, rec, "D4", nil)
	assert.False(t, res.EvaluationAvailable)
	assert.Nil(t, res.WinProbability)
	assert.Nil(t, res.Root)
	require.Len(t, res.MoveInfos, 1)
	assert.Equal(t, "D4", res.MoveInfos[0].Move)
	assert.Nil(t, res.MoveInfos[0].Visits)
}

func TestBuildResultOrdering(t *testing.T) {
	lead := 2.5
	a := &gtp.Analysis{Candidates: []gtp.Candidate{
		{Move: "Q16", Point: gtp.Point{X: 15, Y: 3}, Visits: 80, Winrate: 0.6, ScoreLead: &lead, Order: 0},
		{Move: "D4", Point: gtp.Point{X: 3, Y: 15}, Visits: 50, Winrate: 0.55, Order: 1},
		{Move: "Q4", Point: gtp.Point{X: 15, Y: 15}, Visits: 20, Winrate: 0.5, Order: 2},
		{Move: "D16", Point: gtp.Point{X: 3, Y: 3}, Visits: 10, Winrate: 0.45, Order: 3},
	}}

	t.Run("recommendation matches a later candidate", func(t *testing.T) {
		pos := &Position{BoardSize: 19, AnalyzeDepth: 3}
		rec := gtp.Move{Color: gtp.Black, Point: gtp.Point{X: 3, Y: 15}}

		res := buildResult(pos, rec, "D4", a)
		require.Len(t, res.MoveInfos, 3)
		assert.Equal(t, []string{"D4", "Q16", "Q4"}, []string{res.MoveInfos[0].Move, res.MoveInfos[1].Move, res.MoveInfos[2].Move})
		assert.Equal(t, 50, res.Visits)
		assert.InDelta(t, 0.55, *res.WinProbability, 1e-9)
		assert.Nil(t, res.ScoreMargin)
		for i, mi := range res.MoveInfos {
			assert.Equal(t, i, mi.Order)
		}
	})

	t.Run("unmatched recommendation uses the root", func(t *testing.T) {
		pos := &Position{BoardSize: 19, AnalyzeDepth: 10}
		rec := gtp.Move{Color: gtp.Black, Pass: true}

		res := buildResult(pos, rec, "pass", a)
		require.Len(t, res.MoveInfos, 5)
		assert.Equal(t, "pass", res.MoveInfos[0].Move)
		assert.True(t, res.MoveInfos[0].Pass)
		require.NotNil(t, res.Root)
		assert.Equal(t, 160, res.Root.Visits)
		assert.Equal(t, 160, res.Visits)
		assert.InDelta(t, 0.6, *res.WinProbability, 1e-9)
	})
}

func TestReachedVisits(t *testing.T) {
	line := "info move Q16 visits 60 winrate 0.54 order 0 pv Q16"
	assert.True(t, reachedVisits(line, 19, gtp.DialectKata, 50))
	assert.False(t, reachedVisits(line, 19, gtp.DialectKata, 100))
	assert.True(t, reachedVisits(line+" rootInfo visits 120 winrate 0.5", 19, gtp.DialectKata, 100))
	assert.False(t, reachedVisits("garbage", 19, gtp.DialectKata, 1))
}

func TestFormatKomi(t *testing.T) {
	assert.Equal(t, "6.5", formatKomi(6.5))
	assert.Equal(t, "7", formatKomi(7))
	assert.Equal(t, "0", formatKomi(0))
	assert.Equal(t, "-0.5", formatKomi(-0.5))
	assert.Equal(t, "0.25", formatKomi(0.25))
}
