package gtp

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Dialect selects how analysis values are scaled.
type Dialect int

const (
	// DialectKata is kata-analyze output: probabilities in [0,1] plus score fields.
	DialectKata Dialect = iota

	// DialectLeela is lz-analyze output: probabilities scaled to 0..10000, no score.
	DialectLeela
)

// Candidate is one "info" record of an analysis line.
type Candidate struct {
	Move      string
	Point     Point
	Pass      bool
	Visits    int
	Winrate   float64
	ScoreLead *float64
	ScoreMean *float64
	Prior     float64
	LCB       float64
	Order     int
	PV        []string
}

// RootInfo is the root-node summary some engines append to analysis lines.
type RootInfo struct {
	Visits    int
	Winrate   float64
	ScoreLead *float64
	ScoreMean *float64
}

// Analysis is one decoded batch of analysis output.
type Analysis struct {
	Candidates []Candidate
	Root       *RootInfo
}

// Best returns the engine's top-ranked candidate.
func (a *Analysis) Best() (Candidate, bool) {
	if len(a.Candidates) == 0 {
		return Candidate{}, false
	}
	return a.Candidates[0], true
}

// TotalVisits sums visits over all candidates.
func (a *Analysis) TotalVisits() int {
	total := 0
	for _, c := range a.Candidates {
		total += c.Visits
	}
	return total
}

var (
	// skipSections are trailing arrays that are not decoded.
	skipSections = map[string]bool{
		"ownership":           true,
		"ownershipStdev":      true,
		"movesOwnership":      true,
		"movesOwnershipStdev": true,
	}

	listKeys = map[string]bool{
		"pv":           true,
		"pvVisits":     true,
		"pvEdgeVisits": true,
	}
)

func isKeyword(tok string) bool {
	return tok == "info" || tok == "rootInfo" || skipSections[tok] || listKeys[tok]
}

// ParseAnalysisLine decodes every record on a single analysis line.
func ParseAnalysisLine(line string, size int, dialect Dialect) (*Analysis, error) {
	fields := strings.Fields(line)
	out := &Analysis{}

	var cur *Candidate
	var root *RootInfo
	skipping := false

	flush := func() {
		if cur != nil {
			out.Candidates = append(out.Candidates, *cur)
			cur = nil
		}
		if root != nil {
			out.Root = root
			root = nil
		}
	}

	for i := 0; i < len(fields); {
		tok := fields[i]
		switch {
		case tok == "info":
			flush()
			cur = &Candidate{Order: -1}
			skipping = false
			i++
			continue
		case tok == "rootInfo":
			flush()
			root = &RootInfo{}
			skipping = false
			i++
			continue
		case skipSections[tok]:
			flush()
			skipping = true
			i++
			continue
		}
		if skipping || (cur == nil && root == nil) {
			i++
			continue
		}

		if listKeys[tok] {
			j := i + 1
			for j < len(fields) && !isKeyword(fields[j]) {
				j++
			}
			if tok == "pv" && cur != nil {
				cur.PV = append([]string(nil), fields[i+1:j]...)
			}
			i = j
			continue
		}

		if i+1 >= len(fields) {
			return nil, fmt.Errorf("%w: key %q without value", ErrMalformedReply, tok)
		}
		val := fields[i+1]
		var err error
		if cur != nil {
			err = setCandidateField(cur, tok, val, size, dialect)
		} else {
			err = setRootField(root, tok, val, dialect)
		}
		if err != nil {
			return nil, err
		}
		i += 2
	}
	flush()

	sortCandidates(out.Candidates)
	return out, nil
}

// ParseAnalysis returns the last batch in lines that carries candidates.
// Each analysis line is a complete snapshot; later ones have more visits.
func ParseAnalysis(lines []string, size int, dialect Dialect) (*Analysis, error) {
	var last *Analysis
	var firstErr error
	for _, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), "info") {
			continue
		}
		a, err := ParseAnalysisLine(line, size, dialect)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(a.Candidates) > 0 {
			last = a
		}
	}
	if last == nil {
		if firstErr != nil {
			return nil, firstErr
		}
		return &Analysis{}, nil
	}
	return last, nil
}

func setCandidateField(c *Candidate, key, val string, size int, dialect Dialect) error {
	var err error
	switch key {
	case "move":
		var v Vertex
		v, err = ParseVertex(val, size)
		if err == nil {
			c.Move = strings.ToUpper(val)
			c.Point = v.Point
			c.Pass = v.Pass || v.Resign
		}
	case "visits":
		c.Visits, err = strconv.Atoi(val)
	case "winrate":
		c.Winrate, err = parseProbability(val, dialect)
	case "prior":
		c.Prior, err = parseProbability(val, dialect)
	case "lcb":
		c.LCB, err = parseProbability(val, dialect)
	case "scoreLead":
		c.ScoreLead, err = parseOptional(val)
	case "scoreMean":
		c.ScoreMean, err = parseOptional(val)
	case "order":
		c.Order, err = strconv.Atoi(val)
	}
	if err != nil {
		return fmt.Errorf("%w: %s %q: %v", ErrMalformedReply, key, val, err)
	}
	return nil
}

func setRootField(r *RootInfo, key, val string, dialect Dialect) error {
	var err error
	switch key {
	case "visits":
		r.Visits, err = strconv.Atoi(val)
	case "winrate":
		r.Winrate, err = parseProbability(val, dialect)
	case "scoreLead":
		r.ScoreLead, err = parseOptional(val)
	case "scoreMean":
		r.ScoreMean, err = parseOptional(val)
	}
	if err != nil {
		return fmt.Errorf("%w: rootInfo %s %q: %v", ErrMalformedReply, key, val, err)
	}
	return nil
}

func parseProbability(val string, dialect Dialect) (float64, error) {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, err
	}
	if dialect == DialectLeela {
		f /= 10000
	}
	return f, nil
}

func parseOptional(val string) (*float64, error) {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// sortCandidates orders by the engine's ranking, falling back to visits.
func sortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Order >= 0 && b.Order >= 0 {
			return a.Order < b.Order
		}
		return a.Visits > b.Visits
	})
}
