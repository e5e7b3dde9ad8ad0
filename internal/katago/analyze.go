package katago

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmmcquay/katago-web/internal/gtp"
)

// Analyze validates req and runs one analysis.
func (s *Session) Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResult, error) {
	pos, err := req.Normalize(s.defaults)
	if err != nil {
		return nil, err
	}
	return s.AnalyzePosition(ctx, pos)
}

// AnalyzePosition resets the engine board, replays the moves, asks for the
// best move and then for the engine's evaluation of the position.
//
// Every call rebuilds the position from scratch, so a failed call leaves
// nothing behind that the next one depends on.
func (s *Session) AnalyzePosition(ctx context.Context, pos *Position) (*AnalysisResult, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	start := time.Now()
	if s.State() != StateReady {
		if err := s.Start(ctx); err != nil {
			return nil, unavailable(err)
		}
	}

	s.mu.RLock()
	r := &run{s: s, gen: s.gen, info: s.info, proc: s.proc, pos: pos}
	ready := s.state == StateReady
	s.mu.RUnlock()
	if !ready || r.proc == nil {
		return nil, fmt.Errorf("%w: state %s", ErrEngineUnavailable, s.State())
	}

	if err := r.setup(ctx); err != nil {
		return nil, err
	}
	if err := r.playMoves(ctx); err != nil {
		return nil, err
	}
	rec, engineMove, err := r.genmove(ctx)
	if err != nil {
		return nil, err
	}
	analysis, err := r.evaluate(ctx)
	if err != nil {
		return nil, err
	}

	result := buildResult(pos, rec, engineMove, analysis)
	result.Duration = time.Since(start)
	s.logger.Debug("Analysis complete",
		"moves", len(pos.Moves),
		"toMove", result.ToMove,
		"engineMove", engineMove,
		"evaluation", result.EvaluationAvailable,
		"duration", result.Duration.String(),
	)
	return result, nil
}

// run is one analysis sequence against a single engine generation.
type run struct {
	s    *Session
	gen  int
	info engineInfo
	proc *gtp.Process
	pos  *Position
}

func (r *run) send(ctx context.Context, cmd string) (*gtp.Reply, error) {
	return r.s.command(ctx, r.gen, cmd)
}

// setup resets the engine board. Any failing step aborts the analysis.
func (r *run) setup(ctx context.Context) error {
	steps := []string{
		"clear_board",
		fmt.Sprintf("boardsize %d", r.pos.BoardSize),
		"komi " + formatKomi(r.pos.Komi),
	}
	if r.pos.Rules != "" && r.info.setRules {
		steps = append(steps, "kata-set-rules "+r.pos.Rules)
	}
	if r.info.setParam {
		steps = append(steps, fmt.Sprintf("kata-set-param maxVisits %d", r.pos.MaxVisits))
	}

	for _, cmd := range steps {
		reply, err := r.send(ctx, cmd)
		if err != nil {
			return &SetupError{Step: gtp.CommandName(cmd), Err: err}
		}
		if err := reply.Err(cmd); err != nil {
			return &SetupError{Step: gtp.CommandName(cmd), Err: err}
		}
	}
	return nil
}

// playMoves replays the request moves. The local board catches occupied
// points and suicide; the engine has the final say on everything else.
func (r *run) playMoves(ctx context.Context) error {
	board, err := gtp.NewBoard(r.pos.BoardSize)
	if err != nil {
		return &SetupError{Step: "boardsize", Err: err}
	}
	board.AllowSuicide(suicideLegal(r.pos.Rules))
	for i, m := range r.pos.Moves {
		vertex, err := m.Vertex(r.pos.BoardSize)
		if err != nil {
			return &IllegalMoveError{Index: i, Err: err}
		}
		if _, err := board.Play(m); err != nil {
			return &IllegalMoveError{Index: i, Move: vertex, Err: err}
		}
		cmd := fmt.Sprintf("play %s %s", m.Color.GTP(), vertex)
		reply, err := r.send(ctx, cmd)
		if err != nil {
			return fmt.Errorf("move %d: %w", i, err)
		}
		if err := reply.Err(cmd); err != nil {
			return &IllegalMoveError{Index: i, Move: vertex, Err: err}
		}
	}
	return nil
}

// genmove asks for the best move and takes it back so the evaluation runs
// on the requested position.
func (r *run) genmove(ctx context.Context) (gtp.Move, string, error) {
	color := r.pos.ToMove()
	cmd := "genmove " + color.GTP()
	reply, err := r.send(ctx, cmd)
	if err != nil {
		return gtp.Move{}, "", err
	}
	if err := reply.Err(cmd); err != nil {
		return gtp.Move{}, "", err
	}

	v, err := gtp.ParseVertex(reply.Text, r.pos.BoardSize)
	if err != nil {
		return gtp.Move{}, "", fmt.Errorf("%w: genmove answered %q: %v", gtp.ErrMalformedReply, reply.Text, err)
	}

	rec := gtp.Move{Color: color, Point: v.Point, Pass: v.Pass || v.Resign}
	engineMove := strings.ToLower(reply.Text)
	if !v.Pass && !v.Resign {
		engineMove, _ = rec.Vertex(r.pos.BoardSize)
	}

	if !v.Resign {
		undo, err := r.send(ctx, "undo")
		if err != nil {
			return gtp.Move{}, "", err
		}
		if err := undo.Err("undo"); err != nil {
			r.s.logger.Warn("Engine refused to take back genmove", "error", err)
		}
	}
	return rec, engineMove, nil
}

// evaluate runs the analysis command. It returns a nil analysis when the
// engine has no analysis command or gives no usable output in time.
func (r *run) evaluate(ctx context.Context) (*gtp.Analysis, error) {
	if r.info.analyzeCmd == "" {
		return nil, nil
	}

	cfg := r.s.cfg
	color := r.pos.ToMove().GTP()
	var cmd string
	if r.info.dialect == gtp.DialectKata {
		cmd = fmt.Sprintf("%s %s interval %d maxmoves %d", r.info.analyzeCmd, color, cfg.AnalysisInterval, r.pos.AnalyzeDepth)
	} else {
		cmd = fmt.Sprintf("%s %s %d", r.info.analyzeCmd, color, cfg.AnalysisInterval)
	}

	size, dialect, target := r.pos.BoardSize, r.info.dialect, r.pos.MaxVisits
	window := cfg.AnalysisWindow()
	reply, err := r.s.channel.SendStream(ctx, cmd, window+cfg.CommandTimeoutDuration(), gtp.StreamOptions{
		Window: window,
		StopWhen: func(lines []string) bool {
			return reachedVisits(lines[len(lines)-1], size, dialect, target)
		},
	})
	if err != nil {
		err = r.s.commandErr(r.gen, err)
		if gtp.IsIOError(err) || errors.Is(err, ErrEngineUnavailable) || ctx.Err() != nil {
			return nil, err
		}
		r.s.logger.Warn("Engine analysis unavailable", "command", cmd, "error", err)
		return nil, nil
	}
	if reply.Closed {
		ioErr := &gtp.IOError{Op: "read", Err: errors.New("engine exited during analysis")}
		r.s.markFailed(r.gen, ioErr)
		return nil, ioErr
	}
	if !reply.Success {
		r.s.logger.Warn("Engine rejected analysis command", "command", cmd, "reply", reply.Text)
		return nil, nil
	}

	a, err := gtp.ParseAnalysis(reply.Lines, size, dialect)
	if err != nil {
		r.s.logger.Warn("Could not parse engine analysis", "error", err)
		return nil, nil
	}
	if len(a.Candidates) == 0 {
		return nil, nil
	}
	return a, nil
}

// reachedVisits reports whether an analysis line shows the search has
// reached target visits.
func reachedVisits(line string, size int, dialect gtp.Dialect, target int) bool {
	if !strings.HasPrefix(strings.TrimSpace(line), "info") {
		return false
	}
	a, err := gtp.ParseAnalysisLine(line, size, dialect)
	if err != nil {
		return false
	}
	if a.Root != nil && a.Root.Visits >= target {
		return true
	}
	best, ok := a.Best()
	return ok && best.Visits >= target
}

// buildResult assembles the response. The recommendation comes first and
// takes its statistics from the matching candidate when there is one.
func buildResult(pos *Position, rec gtp.Move, engineMove string, a *gtp.Analysis) *AnalysisResult {
	res := &AnalysisResult{
		Recommended: rec,
		EngineMove:  engineMove,
		ToMove:      rec.Color.String(),
		BoardSize:   pos.BoardSize,
	}

	top := moveInfo(rec, pos.BoardSize)
	if a == nil {
		res.MoveInfos = []MoveInfo{top}
		return res
	}

	res.EvaluationAvailable = true
	res.Root = rootInfo(a)

	matched := -1
	for i, c := range a.Candidates {
		if sameMove(c, rec) {
			matched = i
			break
		}
	}
	switch {
	case matched >= 0:
		fillStats(&top, a.Candidates[matched])
	default:
		visits := res.Root.Visits
		winrate := res.Root.Winrate
		top.Visits = &visits
		top.Winrate = &winrate
		top.ScoreLead = res.Root.ScoreLead
		top.ScoreMean = res.Root.ScoreMean
	}
	res.Visits = *top.Visits
	res.WinProbability = top.Winrate
	res.ScoreMargin = top.ScoreLead
	res.ScoreMean = top.ScoreMean

	res.MoveInfos = append(res.MoveInfos, top)
	for i, c := range a.Candidates {
		if len(res.MoveInfos) >= pos.AnalyzeDepth {
			break
		}
		if i == matched {
			continue
		}
		info := moveInfo(gtp.Move{Point: c.Point, Pass: c.Pass}, pos.BoardSize)
		fillStats(&info, c)
		info.Order = len(res.MoveInfos)
		res.MoveInfos = append(res.MoveInfos, info)
	}
	return res
}

func moveInfo(m gtp.Move, size int) MoveInfo {
	vertex, err := m.Vertex(size)
	if err != nil {
		vertex = "pass"
	}
	info := MoveInfo{Move: vertex, Pass: m.Pass}
	if !m.Pass {
		x, y := m.Point.X, m.Point.Y
		info.X, info.Y = &x, &y
	}
	return info
}

func fillStats(info *MoveInfo, c gtp.Candidate) {
	visits := c.Visits
	winrate := c.Winrate
	info.Visits = &visits
	info.Winrate = &winrate
	info.ScoreLead = c.ScoreLead
	info.ScoreMean = c.ScoreMean
	if len(c.PV) > 0 {
		info.PV = append([]string(nil), c.PV...)
	}
}

// rootInfo returns the root summary, deriving it from the top candidate
// for engines that do not report one.
func rootInfo(a *gtp.Analysis) *RootInfo {
	if a.Root != nil {
		return &RootInfo{
			Visits:    a.Root.Visits,
			Winrate:   a.Root.Winrate,
			ScoreLead: a.Root.ScoreLead,
			ScoreMean: a.Root.ScoreMean,
		}
	}
	best, _ := a.Best()
	return &RootInfo{
		Visits:    a.TotalVisits(),
		Winrate:   best.Winrate,
		ScoreLead: best.ScoreLead,
		ScoreMean: best.ScoreMean,
	}
}

func sameMove(c gtp.Candidate, m gtp.Move) bool {
	if c.Pass || m.Pass {
		return c.Pass && m.Pass
	}
	return c.Point == m.Point
}

func formatKomi(k float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", k), "0"), ".")
}
