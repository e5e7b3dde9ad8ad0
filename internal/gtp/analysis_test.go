package gtp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcquay/katago-web/internal/gtp"
)

func TestParseAnalysisLineKata(t *testing.T) {
	line := "info move D4 visits 35 edgeVisits 35 utility 0.02 winrate 0.52 scoreMean 0.7 scoreStdev 20.1 " +
		"scoreLead 0.6 scoreSelfplay 0.8 prior 0.22 lcb 0.49 utilityLcb -0.1 weight 35.0 order 1 pv D4 Q16 " +
		"info move Q16 visits 60 winrate 0.54 scoreMean 1.3 scoreLead 1.1 prior 0.31 lcb 0.52 order 0 pv Q16 D4 D16 pvVisits 60 20 4 " +
		"rootInfo visits 100 winrate 0.535 scoreLead 0.95 scoreMean 1.0 " +
		"ownership 0.1 -0.2 0.3"

	a, err := gtp.ParseAnalysisLine(line, 19, gtp.DialectKata)
	require.NoError(t, err)
	require.Len(t, a.Candidates, 2)

	best := a.Candidates[0]
	assert.Equal(t, "Q16", best.Move)
	assert.Equal(t, gtp.Point{X: 15, Y: 3}, best.Point)
	assert.Equal(t, 60, best.Visits)
	assert.InDelta(t, 0.54, best.Winrate, 1e-9)
	require.NotNil(t, best.ScoreLead)
	assert.InDelta(t, 1.1, *best.ScoreLead, 1e-9)
	require.NotNil(t, best.ScoreMean)
	assert.InDelta(t, 1.3, *best.ScoreMean, 1e-9)
	assert.Equal(t, []string{"Q16", "D4", "D16"}, best.PV)
	assert.Equal(t, 0, best.Order)

	assert.Equal(t, "D4", a.Candidates[1].Move)
	assert.Equal(t, []string{"D4", "Q16"}, a.Candidates[1].PV)

	require.NotNil(t, a.Root)
	assert.Equal(t, 100, a.Root.Visits)
	assert.InDelta(t, 0.535, a.Root.Winrate, 1e-9)
	assert.Equal(t, 95, a.TotalVisits())
}

func TestParseAnalysisLineLeela(t *testing.T) {
	line := "info move C3 visits 20 winrate 5432 prior 1200 lcb 5000 order 0 pv C3 C5 info move pass visits 2 winrate 4100 order 1 pv pass"

	a, err := gtp.ParseAnalysisLine(line, 9, gtp.DialectLeela)
	require.NoError(t, err)
	require.Len(t, a.Candidates, 2)

	assert.InDelta(t, 0.5432, a.Candidates[0].Winrate, 1e-9)
	assert.InDelta(t, 0.12, a.Candidates[0].Prior, 1e-9)
	assert.Nil(t, a.Candidates[0].ScoreLead)
	assert.True(t, a.Candidates[1].Pass)
	assert.Nil(t, a.Root)
}

func TestParseAnalysisLineOrdersByVisitsWithoutOrder(t *testing.T) {
	a, err := gtp.ParseAnalysisLine("info move D4 visits 3 winrate 0.4 info move C3 visits 9 winrate 0.6", 19, gtp.DialectKata)
	require.NoError(t, err)
	best, ok := a.Best()
	require.True(t, ok)
	assert.Equal(t, "C3", best.Move)
}

func TestParseAnalysisLineMalformed(t *testing.T) {
	tests := []string{
		"info move Z30 visits 3",
		"info move D4 visits many",
		"info move D4 winrate",
	}
	for _, line := range tests {
		t.Run(line, func(t *testing.T) {
			_, err := gtp.ParseAnalysisLine(line, 19, gtp.DialectKata)
			assert.Error(t, err)
		})
	}
}

func TestParseAnalysisTakesLastSnapshot(t *testing.T) {
	lines := []string{
		"info move D4 visits 5 winrate 0.5 order 0 pv D4",
		"info move Q16 visits 50 winrate 0.55 order 0 pv Q16",
		"some unrelated text",
	}
	a, err := gtp.ParseAnalysis(lines, 19, gtp.DialectKata)
	require.NoError(t, err)
	best, ok := a.Best()
	require.True(t, ok)
	assert.Equal(t, "Q16", best.Move)
	assert.Equal(t, 50, best.Visits)
}

func TestParseAnalysisEmpty(t *testing.T) {
	a, err := gtp.ParseAnalysis(nil, 19, gtp.DialectKata)
	require.NoError(t, err)
	_, ok := a.Best()
	assert.False(t, ok)

	_, err = gtp.ParseAnalysis([]string{"info move I9 visits 1"}, 19, gtp.DialectKata)
	assert.ErrorIs(t, err, gtp.ErrMalformedReply)
}
