package trigger

import (
	"math"

	"github.com/cbegin/stemfx-go/internal/analysis"
)

// BeatTolerance is how close to a division boundary the current time must be.
const BeatTolerance = 0.05

// Evaluate is the reference evaluator: it inspects only the window
// (prev, cur] by scanning analyses directly and keeps no state.
func Evaluate(c Condition, analyses []analysis.StemAnalysis, cur, prev float64) (Match, bool) {
	switch c.Kind {
	case KindNoteOn, KindVelocityThreshold:
		var m Match
		found := false
		analysis.ForEachNote(analyses, func(n analysis.NoteEvent) bool {
			if n.Start > prev && n.Start <= cur && c.acceptsNote(n) {
				m, found = Match{Velocity: n.Velocity, HasVelocity: true}, true
				return false
			}
			return true
		})
		return m, found
	case KindBeat:
		bpm := analysis.TempoAt(analysis.MergeTempo(analyses), cur, analysis.DefaultBPM)
		return Match{}, OnBeat(cur, bpm, c.Division)
	case KindChordChange:
		a := analysis.PitchClassesAt(analyses, prev)
		b := analysis.PitchClassesAt(analyses, cur)
		return Match{}, a.Distance(b) > c.Tolerance
	}
	return Match{}, false
}

// acceptsNote applies the note, channel and velocity filters.
func (c Condition) acceptsNote(n analysis.NoteEvent) bool {
	if c.Note != nil && n.Note != *c.Note {
		return false
	}
	if c.Channel != nil && n.Channel != *c.Channel {
		return false
	}
	if c.Kind == KindVelocityThreshold && n.Velocity < c.Threshold {
		return false
	}
	return true
}

// OnBeat reports whether t lies within BeatTolerance of a multiple of the
// division interval at bpm. The phase is absolute time, not time since
// playback start, so a tempo change shifts the grid.
func OnBeat(t, bpm, division float64) bool {
	if bpm <= 0 {
		bpm = analysis.DefaultBPM
	}
	if division <= 0 {
		division = 1
	}
	interval := 60 / bpm / division
	m := math.Mod(t, interval)
	if m < 0 {
		m += interval
	}
	return m < BeatTolerance || interval-m < BeatTolerance
}
