package katago

import (
	"fmt"
	"strconv"
	"strings"
)

// Game is the main line of an SGF record.
type Game struct {
	BoardSize int
	Komi      *float64
	Rules     string
	Moves     []MoveSpec
}

// ParseSGF reads the main line of an SGF game. Variations are skipped.
// Setup stones (AB/AW) are rejected because positions are rebuilt from
// alternating moves.
func ParseSGF(content string) (*Game, error) {
	p := newSGFParser(content)
	return p.parse()
}

// sgfParser is a small recursive-descent reader over the SGF text.
type sgfParser struct {
	content string
	index   int
}

func newSGFParser(content string) *sgfParser {
	return &sgfParser{content: strings.TrimSpace(content)}
}

func (p *sgfParser) parse() (*Game, error) {
	if !p.skipTo('(') {
		return nil, fmt.Errorf("no opening parenthesis")
	}
	p.index++

	game := &Game{BoardSize: DefaultBoardSize}
	var coords []string

	for p.index < len(p.content) {
		p.skipWhitespace()
		if p.index >= len(p.content) {
			break
		}

		switch p.content[p.index] {
		case ')':
			return game, p.resolve(game, coords)
		case ';':
			p.index++
			if err := p.parseNode(game, &coords); err != nil {
				return nil, err
			}
		case '(':
			// Descend into the first variation only.
			p.index++
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d", p.content[p.index], p.index)
		}
	}
	return nil, fmt.Errorf("unterminated game tree")
}

// resolve converts the collected move coordinates once SZ is known.
func (p *sgfParser) resolve(game *Game, coords []string) error {
	for i, c := range coords {
		m, err := sgfMove(c, game.BoardSize)
		if err != nil {
			return fmt.Errorf("move %d: %w", i, err)
		}
		game.Moves = append(game.Moves, m)
	}
	return nil
}

func (p *sgfParser) parseNode(game *Game, coords *[]string) error {
	for p.index < len(p.content) {
		p.skipWhitespace()
		if p.index >= len(p.content) {
			break
		}
		if c := p.content[p.index]; c == ';' || c == ')' || c == '(' {
			break
		}

		prop, values, err := p.parseProperty()
		if err != nil {
			return err
		}

		switch prop {
		case "B", "W":
			want := "B"
			if len(*coords)%2 == 1 {
				want = "W"
			}
			if prop != want {
				return fmt.Errorf("move %d is %s, moves must alternate starting with black", len(*coords), prop)
			}
			*coords = append(*coords, values[0])

		case "AB", "AW", "AE":
			return fmt.Errorf("setup property %s is not supported", prop)

		case "SZ":
			size, err := strconv.Atoi(strings.TrimSpace(values[0]))
			if err != nil {
				return fmt.Errorf("invalid board size %q", values[0])
			}
			game.BoardSize = size

		case "KM":
			komi, err := strconv.ParseFloat(strings.TrimSpace(values[0]), 64)
			if err != nil {
				return fmt.Errorf("invalid komi %q", values[0])
			}
			game.Komi = &komi

		case "RU":
			game.Rules = normalizeRules(values[0])
		}
	}
	return nil
}

// parseProperty reads an identifier and its bracketed values.
func (p *sgfParser) parseProperty() (string, []string, error) {
	start := p.index
	for p.index < len(p.content) && p.content[p.index] >= 'A' && p.content[p.index] <= 'Z' {
		p.index++
	}
	if p.index == start {
		return "", nil, fmt.Errorf("expected property name at offset %d", p.index)
	}
	prop := p.content[start:p.index]

	var values []string
	for p.index < len(p.content) {
		p.skipWhitespace()
		if p.index >= len(p.content) || p.content[p.index] != '[' {
			break
		}
		p.index++

		var b strings.Builder
		closed := false
		for p.index < len(p.content) {
			c := p.content[p.index]
			p.index++
			if c == '\\' && p.index < len(p.content) {
				b.WriteByte(p.content[p.index])
				p.index++
				continue
			}
			if c == ']' {
				closed = true
				break
			}
			b.WriteByte(c)
		}
		if !closed {
			return "", nil, fmt.Errorf("unclosed value for property %s", prop)
		}
		values = append(values, b.String())
	}

	if len(values) == 0 {
		return "", nil, fmt.Errorf("property %s has no value", prop)
	}
	return prop, values, nil
}

// sgfMove converts an SGF point ("aa" is the top-left corner) to a MoveSpec.
// An empty value, or "tt" on boards up to 19x19, is a pass.
func sgfMove(coord string, size int) (MoveSpec, error) {
	coord = strings.TrimSpace(coord)
	if coord == "" || (coord == "tt" && size <= 19) {
		return PassMove(), nil
	}
	if len(coord) != 2 {
		return MoveSpec{}, fmt.Errorf("invalid point %q", coord)
	}
	x := int(coord[0]) - 'a'
	y := int(coord[1]) - 'a'
	if x < 0 || y < 0 || x >= size || y >= size {
		return MoveSpec{}, fmt.Errorf("point %q is off the %dx%d board", coord, size, size)
	}
	return At(x, y), nil
}

// normalizeRules maps an RU value onto a kata-set-rules name, or "" when the
// rule set is unknown and the engine default should stand.
func normalizeRules(ru string) string {
	rules := strings.ToLower(strings.TrimSpace(ru))
	switch {
	case strings.Contains(rules, "japan"):
		return "japanese"
	case strings.Contains(rules, "korea"):
		return "korean"
	case strings.Contains(rules, "aga"):
		return "aga"
	case strings.Contains(rules, "new zealand"), rules == "nz":
		return "new-zealand"
	case strings.Contains(rules, "chin"):
		return "chinese"
	case strings.Contains(rules, "tromp"):
		return "tromp-taylor"
	}
	return ""
}

func (p *sgfParser) skipWhitespace() {
	for p.index < len(p.content) {
		switch p.content[p.index] {
		case ' ', '\t', '\n', '\r':
			p.index++
		default:
			return
		}
	}
}

func (p *sgfParser) skipTo(ch byte) bool {
	for p.index < len(p.content) {
		if p.content[p.index] == ch {
			return true
		}
		p.index++
	}
	return false
}

// suicideLegal reports whether a kata-set-rules name permits multi-stone
// suicide.
func suicideLegal(rules string) bool {
	return rules == "tromp-taylor" || rules == "new-zealand"
}
