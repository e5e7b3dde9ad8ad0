package katago

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/dmmcquay/katago-web/internal/config"
	"github.com/dmmcquay/katago-web/internal/gtp"
)

const (
	// DefaultBoardSize is used when a request leaves boardSize unset.
	DefaultBoardSize = 19
	// MaxAnalyzeDepth caps the number of candidates a request may ask for.
	MaxAnalyzeDepth = 50
	// MaxVisitsLimit caps per-request visits.
	MaxVisitsLimit = 100000
	maxKomi        = 150
)

// MoveSpec is a request move: a point or a pass.
type MoveSpec struct {
	X    *int `json:"x,omitempty"`
	Y    *int `json:"y,omitempty"`
	Pass bool `json:"pass,omitempty"`
}

// At returns the MoveSpec for a point.
func At(x, y int) MoveSpec {
	return MoveSpec{X: &x, Y: &y}
}

// PassMove returns a pass MoveSpec.
func PassMove() MoveSpec {
	return MoveSpec{Pass: true}
}

// AnalysisRequest is the body accepted by the analyze endpoints and the
// analyzePosition tool. Zero values take the configured defaults.
type AnalysisRequest struct {
	BoardSize    int        `json:"boardSize"`
	MaxVisits    int        `json:"maxVisits"`
	AnalyzeDepth int        `json:"analyzeDepth"`
	Komi         *float64   `json:"komi,omitempty"`
	Moves        []MoveSpec `json:"moves"`
	SGF          string     `json:"sgf,omitempty"`

	// MoveNumber, with SGF, analyzes the position after that many moves.
	// Zero means the final position.
	MoveNumber int `json:"moveNumber,omitempty"`
}

// Defaults are the values applied to unset request fields.
type Defaults struct {
	BoardSize    int
	Komi         float64
	MaxVisits    int
	AnalyzeDepth int
}

// DefaultsFromConfig returns the request defaults of cfg.
func DefaultsFromConfig(cfg *config.EngineConfig) Defaults {
	return Defaults{
		BoardSize:    DefaultBoardSize,
		Komi:         cfg.Komi,
		MaxVisits:    cfg.MaxVisits,
		AnalyzeDepth: cfg.AnalyzeDepth,
	}
}

// Position is a validated request: everything needed to drive one analysis.
// It is also the cache key, so it holds no presentation fields.
type Position struct {
	BoardSize    int        `json:"boardSize"`
	Komi         float64    `json:"komi"`
	Rules        string     `json:"rules,omitempty"`
	MaxVisits    int        `json:"maxVisits"`
	AnalyzeDepth int        `json:"analyzeDepth"`
	Moves        []gtp.Move `json:"moves"`
}

// ToMove returns the color of the side to play next.
func (p *Position) ToMove() gtp.Color {
	return gtp.ColorToMove(len(p.Moves))
}

// Normalize applies defaults, imports the SGF record if present and
// validates the result. Stone legality is checked later against the board.
func (r *AnalysisRequest) Normalize(d Defaults) (*Position, error) {
	size := r.BoardSize
	komi := d.Komi
	if r.Komi != nil {
		komi = *r.Komi
	}
	moves := r.Moves
	rules := ""

	if strings.TrimSpace(r.SGF) != "" {
		game, err := ParseSGF(r.SGF)
		if err != nil {
			return nil, invalidf("sgf: %v", err)
		}
		if size != 0 && size != game.BoardSize {
			return nil, invalidf("boardSize %d does not match sgf size %d", size, game.BoardSize)
		}
		if len(r.Moves) > 0 {
			return nil, invalidf("moves and sgf are mutually exclusive")
		}
		size = game.BoardSize
		if r.Komi == nil && game.Komi != nil {
			komi = *game.Komi
		}
		moves = game.Moves
		rules = game.Rules
		if r.MoveNumber < 0 || r.MoveNumber > len(moves) {
			return nil, invalidf("moveNumber %d out of range (game has %d moves)", r.MoveNumber, len(moves))
		}
		if r.MoveNumber > 0 {
			moves = moves[:r.MoveNumber]
		}
	} else if r.MoveNumber != 0 {
		return nil, invalidf("moveNumber requires sgf")
	}

	if size == 0 {
		size = d.BoardSize
	}
	if !gtp.ValidBoardSize(size) {
		return nil, invalidf("boardSize %d out of range", size)
	}
	if math.IsNaN(komi) || math.IsInf(komi, 0) || math.Abs(komi) > maxKomi {
		return nil, invalidf("komi %v out of range", komi)
	}

	visits := r.MaxVisits
	if visits == 0 {
		visits = d.MaxVisits
	}
	if visits < 1 || visits > MaxVisitsLimit {
		return nil, invalidf("maxVisits %d out of range", r.MaxVisits)
	}

	depth := r.AnalyzeDepth
	if depth == 0 {
		depth = d.AnalyzeDepth
	}
	if depth < 1 || depth > MaxAnalyzeDepth {
		return nil, invalidf("analyzeDepth %d out of range", r.AnalyzeDepth)
	}

	pos := &Position{
		BoardSize:    size,
		Komi:         komi,
		Rules:        rules,
		MaxVisits:    visits,
		AnalyzeDepth: depth,
		Moves:        make([]gtp.Move, 0, len(moves)),
	}
	for i, m := range moves {
		move := gtp.Move{Color: gtp.ColorToMove(i), Pass: m.Pass}
		if !m.Pass {
			if m.X == nil || m.Y == nil {
				return nil, invalidf("move %d needs x and y or pass", i)
			}
			move.Point = gtp.Point{X: *m.X, Y: *m.Y}
			if !move.Point.InBounds(size) {
				return nil, invalidf("move %d (%d,%d) is off the %dx%d board", i, *m.X, *m.Y, size, size)
			}
		}
		pos.Moves = append(pos.Moves, move)
	}
	return pos, nil
}

// MoveInfo is one ranked move of an analysis result. The statistics are nil
// when the engine did not report them.
type MoveInfo struct {
	Move      string   `json:"move"`
	X         *int     `json:"x,omitempty"`
	Y         *int     `json:"y,omitempty"`
	Pass      bool     `json:"pass,omitempty"`
	Visits    *int     `json:"visits"`
	Winrate   *float64 `json:"winrate"`
	ScoreLead *float64 `json:"scoreLead"`
	ScoreMean *float64 `json:"scoreMean"`
	Order     int      `json:"order"`
	PV        []string `json:"pv,omitempty"`
}

// RootInfo summarises the searched position.
type RootInfo struct {
	Visits    int      `json:"visits"`
	Winrate   float64  `json:"winrate"`
	ScoreLead *float64 `json:"scoreLead"`
	ScoreMean *float64 `json:"scoreMean,omitempty"`
}

// AnalysisResult is the outcome of one analysis. Results may be shared
// through the cache and must not be modified.
type AnalysisResult struct {
	// Recommended is the engine's genmove answer. A resignation is reported
	// as a pass with EngineMove "resign".
	Recommended gtp.Move `json:"-"`
	EngineMove  string   `json:"engineMove"`
	ToMove      string   `json:"toMove"`

	// Visits, WinProbability and ScoreMargin describe the recommended move.
	// WinProbability is from the point of view of the side to move.
	Visits         int      `json:"visits"`
	WinProbability *float64 `json:"winProbability"`
	ScoreMargin    *float64 `json:"scoreMargin"`
	ScoreMean      *float64 `json:"scoreMean"`

	EvaluationAvailable bool `json:"evaluationAvailable"`

	// MoveInfos starts with the recommendation, followed by the other
	// candidates in engine order.
	MoveInfos []MoveInfo `json:"moveInfos"`
	Root      *RootInfo  `json:"rootInfo,omitempty"`

	BoardSize int           `json:"boardSize"`
	Duration  time.Duration `json:"-"`
}

// State is the engine session lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateStarting
	StateReady
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Status is a snapshot of the engine session.
type Status struct {
	State           State     `json:"state"`
	EngineName      string    `json:"engine,omitempty"`
	EngineVersion   string    `json:"version,omitempty"`
	AnalysisCommand string    `json:"analysisCommand,omitempty"`
	LastError       string    `json:"lastError,omitempty"`
	Pid             int       `json:"pid,omitempty"`
	Since           time.Time `json:"since"`
	QueueDepth      int       `json:"queueDepth"`
}
