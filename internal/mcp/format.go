package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmmcquay/katago-web/internal/katago"
)

const maxPVShown = 10

// FormatAnalysisResult renders a result as the plain-text tool answer.
func FormatAnalysisResult(result *katago.AnalysisResult) string {
	var sb strings.Builder

	sb.WriteString("=== Position Analysis ===\n")
	sb.WriteString(fmt.Sprintf("Board: %dx%d, %s to move\n", result.BoardSize, result.BoardSize, result.ToMove))
	sb.WriteString(fmt.Sprintf("Engine move: %s\n", result.EngineMove))
	if !result.EvaluationAvailable {
		sb.WriteString("Evaluation: unavailable\n")
	} else {
		sb.WriteString(fmt.Sprintf("Visits: %d\n", result.Visits))
		if result.WinProbability != nil {
			sb.WriteString(fmt.Sprintf("Win rate: %.1f%%\n", *result.WinProbability*100))
		}
		if result.ScoreMargin != nil {
			sb.WriteString(fmt.Sprintf("Score lead: %+.1f\n", *result.ScoreMargin))
		}
		if result.Root != nil {
			sb.WriteString(fmt.Sprintf("Position: %d visits, win rate %.1f%%\n", result.Root.Visits, result.Root.Winrate*100))
		}
	}
	sb.WriteString("\n")

	sb.WriteString("=== Top Moves ===\n")
	for i, move := range result.MoveInfos {
		sb.WriteString(fmt.Sprintf("%2d. %-4s", i+1, move.Move))
		if move.Visits != nil {
			sb.WriteString(fmt.Sprintf(" visits:%6d", *move.Visits))
		}
		if move.Winrate != nil {
			sb.WriteString(fmt.Sprintf(" win:%.1f%%", *move.Winrate*100))
		}
		if move.ScoreLead != nil {
			sb.WriteString(fmt.Sprintf(" score:%+.1f", *move.ScoreLead))
		}
		if len(move.PV) > 0 {
			pv := move.PV
			if len(pv) > maxPVShown {
				pv = pv[:maxPVShown]
			}
			sb.WriteString(" pv: " + strings.Join(pv, " "))
			if len(move.PV) > maxPVShown {
				sb.WriteString("...")
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatStatus renders the engine status.
func FormatStatus(st katago.Status) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("KataGo engine status: %s\n", st.State))
	if st.EngineVersion != "" {
		sb.WriteString(fmt.Sprintf("Version: %s %s\n", st.EngineName, st.EngineVersion))
	}
	if st.AnalysisCommand != "" {
		sb.WriteString(fmt.Sprintf("Analysis command: %s\n", st.AnalysisCommand))
	}
	if st.Pid != 0 {
		sb.WriteString(fmt.Sprintf("PID: %d\n", st.Pid))
	}
	if !st.Since.IsZero() {
		sb.WriteString(fmt.Sprintf("Since: %s\n", st.Since.Format(time.RFC3339)))
	}
	sb.WriteString(fmt.Sprintf("Queued analyses: %d\n", st.QueueDepth))
	if st.LastError != "" {
		sb.WriteString(fmt.Sprintf("Last error: %s\n", st.LastError))
	}
	return sb.String()
}
