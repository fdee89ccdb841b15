// Package mml parses Music Macro Language text into note tracks. It covers
// the subset useful for authoring trigger fixtures: notes, rests, lengths,
// octave, tempo, volume, gate, channel and loops.
package mml

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cbegin/stemfx-go/internal/analysis"
)

var noteOffsets = map[byte]int{
	'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11,
}

type Parser struct{ cfg ParserConfig }

func NewParser(cfg ParserConfig) *Parser { return &Parser{cfg: cfg} }

// Parse reads tracks separated by ';'. Tempo commands in any track change
// the tempo for all of them.
func Parse(input string) (*Score, error) {
	return NewParser(DefaultParserConfig()).Parse(input)
}

func (p *Parser) Parse(input string) (*Score, error) {
	score := &Score{Resolution: p.cfg.Resolution, InitialBPM: p.cfg.DefaultBPM}
	for n, part := range strings.Split(stripComments(input), ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		tr, tempo, err := p.parseTrack(part)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", n, err)
		}
		score.Tracks = append(score.Tracks, tr)
		score.Tempo = append(score.Tempo, tempo...)
	}
	sortTempo(score.Tempo)
	return score, nil
}

// ParseNotes parses input and converts it to note tracks in seconds.
func ParseNotes(input string) ([]analysis.NoteTrack, []analysis.TempoChange, error) {
	score, err := Parse(input)
	if err != nil {
		return nil, nil, err
	}
	return score.NoteTracks(), score.TempoChanges(), nil
}

type parseState struct {
	resolution int
	tick       int
	octave     int
	minOctave  int
	maxOctave  int
	defaultLen int
	volume     int
	quant      int
	channel    int
}

func newState(cfg ParserConfig) parseState {
	return parseState{
		resolution: cfg.Resolution,
		octave:     cfg.DefaultOctave,
		minOctave:  cfg.MinOctave,
		maxOctave:  cfg.MaxOctave,
		defaultLen: cfg.Resolution / cfg.DefaultLValue,
		volume:     cfg.DefaultVolume,
		quant:      cfg.DefaultQuant,
	}
}

func (p *Parser) parseTrack(input string) (Track, []Tempo, error) {
	expanded, err := expandLoops(input)
	if err != nil {
		return Track{}, nil, err
	}
	st := newState(p.cfg)
	var tr Track
	var tempo []Tempo
	i := 0
	for i < len(expanded) {
		ch := lower(expanded[i])
		if isSpace(ch) {
			i++
			continue
		}
		switch {
		case ch == 'n' && i+1 < len(expanded) && unicode.IsDigit(rune(expanded[i+1])):
			key, next, e := parseNumberDefault(expanded, i+1, 60)
			if e != nil {
				return Track{}, nil, e
			}
			dur, next, e := parseLengthWithTie(expanded, next, st)
			if e != nil {
				return Track{}, nil, e
			}
			tr.Notes = append(tr.Notes, st.note(key, dur))
			st.tick += dur
			i = next
		case isNote(ch):
			key, next := parsePitch(expanded, i, st)
			dur, next, e := parseLengthWithTie(expanded, next, st)
			if e != nil {
				return Track{}, nil, e
			}
			tr.Notes = append(tr.Notes, st.note(key, dur))
			st.tick += dur
			i = next
		case ch == 'r':
			dur, next, e := parseLengthWithTie(expanded, i+1, st)
			if e != nil {
				return Track{}, nil, e
			}
			st.tick += dur
			i = next
		case ch == 'l':
			dur, next, e := parseLengthToken(expanded, i+1, st)
			if e != nil {
				return Track{}, nil, e
			}
			st.defaultLen = dur
			i = next
		case ch == 'o':
			v, next, e := parseNumberDefault(expanded, i+1, p.cfg.DefaultOctave)
			if e != nil {
				return Track{}, nil, e
			}
			st.octave = clampInt(v, st.minOctave, st.maxOctave)
			i = next
		case ch == '>':
			st.octave = clampInt(st.octave+1, st.minOctave, st.maxOctave)
			i++
		case ch == '<':
			st.octave = clampInt(st.octave-1, st.minOctave, st.maxOctave)
			i++
		case ch == 't':
			bpm, next, e := parseDecimal(expanded, i+1)
			if e != nil {
				return Track{}, nil, e
			}
			if bpm > 0 {
				tempo = append(tempo, Tempo{Tick: st.tick, BPM: bpm})
			}
			i = next
		case ch == 'v':
			v, next, e := parseNumberDefault(expanded, i+1, p.cfg.DefaultVolume)
			if e != nil {
				return Track{}, nil, e
			}
			st.volume = clampInt(v, 0, 16)
			i = next
		case ch == 'q':
			v, next, e := parseNumberDefault(expanded, i+1, p.cfg.DefaultQuant)
			if e != nil {
				return Track{}, nil, e
			}
			st.quant = clampInt(v, 0, 8)
			i = next
		case ch == '@':
			v, next, e := parseNumberDefault(expanded, i+1, 0)
			if e != nil {
				return Track{}, nil, e
			}
			st.channel = clampInt(v, 0, 15)
			i = next
		default:
			return Track{}, nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, expanded[i], i)
		}
	}
	tr.EndTick = st.tick
	return tr, tempo, nil
}

// note builds a note at the current tick, gated by the q setting.
func (st parseState) note(key, dur int) Note {
	return Note{
		Tick:     st.tick,
		Length:   parseGateDuration(dur, st.quant),
		Key:      clampInt(key, 0, 127),
		Velocity: (st.volume*127 + 8) / 16,
		Channel:  st.channel,
	}
}

func parsePitch(s string, at int, st parseState) (int, int) {
	key := st.octave*12 + noteOffsets[lower(s[at])]
	i := at + 1
	for i < len(s) {
		switch s[i] {
		case '#', '+':
			key++
		case '-':
			key--
		default:
			return key, i
		}
		i++
	}
	return key, i
}

func parseLengthWithTie(s string, at int, st parseState) (int, int, error) {
	dur, i, err := parseLengthToken(s, at, st)
	if err != nil {
		return 0, at, err
	}
	for i < len(s) && s[i] == '^' {
		extra, next, e := parseLengthToken(s, i+1, st)
		if e != nil {
			return 0, at, e
		}
		dur += extra
		i = next
	}
	return dur, i, nil
}

func parseLengthToken(s string, at int, st parseState) (int, int, error) {
	val, i, err := parseNumberOptional(s, at)
	if err != nil {
		return 0, at, err
	}
	base := st.defaultLen
	if val > 0 {
		base = st.resolution / val
	}
	dots := 0
	for i < len(s) && s[i] == '.' {
		dots++
		i++
	}
	dur, term := base, base
	for k := 0; k < dots; k++ {
		term >>= 1
		dur += term
	}
	return dur, i, nil
}

func parseNumberDefault(s string, at int, def int) (int, int, error) {
	v, i, err := parseNumberOptional(s, at)
	if err != nil {
		return 0, at, err
	}
	if v == -1 {
		return def, i, nil
	}
	return v, i, nil
}

func parseNumberOptional(s string, at int) (int, int, error) {
	i := at
	for i < len(s) && unicode.IsDigit(rune(s[i])) {
		i++
	}
	if i == at {
		return -1, i, nil
	}
	n, err := strconv.Atoi(s[at:i])
	if err != nil {
		return 0, at, err
	}
	return n, i, nil
}

func parseDecimal(s string, at int) (float64, int, error) {
	i := at
	for i < len(s) && (unicode.IsDigit(rune(s[i])) || s[i] == '.') {
		i++
	}
	if i == at {
		return 0, at, fmt.Errorf("%w: tempo without value at %d", ErrSyntax, at)
	}
	v, err := strconv.ParseFloat(s[at:i], 64)
	if err != nil {
		return 0, at, fmt.Errorf("%w: tempo %q: %v", ErrSyntax, s[at:i], err)
	}
	return v, i, nil
}

// parseGateDuration shortens dur to quant eighths, keeping at least one tick.
func parseGateDuration(dur int, quant int) int {
	if quant <= 0 {
		return 0
	}
	gated := dur * quant / 8
	if gated <= 0 && dur > 0 {
		return 1
	}
	return gated
}

func stripComments(src string) string {
	var out strings.Builder
	out.Grow(len(src))
	for i := 0; i < len(src); i++ {
		if i+1 < len(src) && src[i] == '/' && src[i+1] == '*' {
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				break
			}
			i += end + 3
			continue
		}
		if i+1 < len(src) && src[i] == '/' && src[i+1] == '/' {
			nl := strings.IndexByte(src[i:], '\n')
			if nl < 0 {
				break
			}
			i += nl - 1
			continue
		}
		out.WriteByte(src[i])
	}
	return out.String()
}

// expandLoops flattens [body]n and [body|tail]n. The tail after '|' is
// played on every pass except the last.
func expandLoops(src string) (string, error) {
	out, i, err := parseExpanded(src, 0, 0)
	if err != nil {
		return "", err
	}
	if i != len(src) {
		return "", fmt.Errorf("%w: unmatched ']' at %d", ErrSyntax, i)
	}
	return out, nil
}

func parseExpanded(src string, at, depth int) (string, int, error) {
	var out strings.Builder
	for at < len(src) {
		switch src[at] {
		case ']':
			return out.String(), at, nil
		case '[':
			body, next, err := parseLoopBody(src, at+1, depth+1)
			if err != nil {
				return "", at, err
			}
			out.WriteString(body)
			at = next
		default:
			out.WriteByte(src[at])
			at++
		}
	}
	return out.String(), at, nil
}

func parseLoopBody(src string, at, depth int) (string, int, error) {
	var head, tail strings.Builder
	cur := &head
	for at < len(src) {
		switch ch := src[at]; ch {
		case '[':
			body, next, err := parseLoopBody(src, at+1, depth+1)
			if err != nil {
				return "", at, err
			}
			cur.WriteString(body)
			at = next
		case '|':
			cur = &tail
			at++
		case ']':
			repeat, next, err := parseNumberDefault(src, at+1, 2)
			if err != nil {
				return "", at, err
			}
			repeat = max(repeat, 1)
			h, t := head.String(), tail.String()
			var out strings.Builder
			for k := 0; k < repeat; k++ {
				out.WriteString(h)
				if k < repeat-1 {
					out.WriteString(t)
				}
			}
			return out.String(), next, nil
		default:
			cur.WriteByte(ch)
			at++
		}
	}
	return "", at, fmt.Errorf("%w: unclosed loop block", ErrSyntax)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 32
	}
	return b
}

func isSpace(b byte) bool { return b == ' ' || b == '\n' || b == '\r' || b == '\t' }
func isNote(b byte) bool  { _, ok := noteOffsets[b]; return ok }
