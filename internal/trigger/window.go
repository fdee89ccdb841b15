package trigger

import (
	"github.com/cbegin/stemfx-go/internal/analysis"
	"github.com/cbegin/stemfx-go/internal/correlate"
)

// Timeline indexes loaded analyses for windowed evaluation.
type Timeline struct {
	analyses []analysis.StemAnalysis
	notes    analysis.NoteIndex
	tempo    []analysis.TempoChange
}

func NewTimeline(analyses []analysis.StemAnalysis) *Timeline {
	return &Timeline{
		analyses: analyses,
		notes:    analysis.NewNoteIndex(analyses),
		tempo:    analysis.MergeTempo(analyses),
	}
}

// Window is the analysis shared by every trigger in one evaluation pass.
// It is read-only once built.
type Window struct {
	Prev, Current float64
	Onsets        []analysis.IndexedNote // start in (Prev, Current], scan order
	Tempo         float64
	PrevPitch     analysis.PitchSet
	CurPitch      analysis.PitchSet
}

// Window snapshots (prev, cur]. Only the parts needed by kinds are computed.
// corr may be nil.
func (tl *Timeline) Window(prev, cur float64, corr *correlate.Cache, need map[Kind]bool) *Window {
	w := &Window{Prev: prev, Current: cur, Tempo: analysis.DefaultBPM}
	if need[KindNoteOn] || need[KindVelocityThreshold] {
		w.Onsets = tl.notes.StartingIn(prev, cur)
	}
	if need[KindBeat] {
		if corr != nil {
			w.Tempo = corr.Tempo(cur)
		} else {
			w.Tempo = analysis.TempoAt(tl.tempo, cur, analysis.DefaultBPM)
		}
	}
	if need[KindChordChange] {
		if corr != nil {
			w.PrevPitch, w.CurPitch = corr.PitchClasses(prev), corr.PitchClasses(cur)
		} else {
			w.PrevPitch = analysis.PitchClassesAt(tl.analyses, prev)
			w.CurPitch = analysis.PitchClassesAt(tl.analyses, cur)
		}
	}
	return w
}

// Match evaluates c against the snapshot. It agrees with Evaluate over the
// same analyses and window.
func (w *Window) Match(c Condition) (Match, bool) {
	switch c.Kind {
	case KindNoteOn, KindVelocityThreshold:
		for _, n := range w.Onsets {
			if c.acceptsNote(n.NoteEvent) {
				return Match{Velocity: n.Velocity, HasVelocity: true}, true
			}
		}
	case KindBeat:
		return Match{}, OnBeat(w.Current, w.Tempo, c.Division)
	case KindChordChange:
		return Match{}, w.PrevPitch.Distance(w.CurPitch) > c.Tolerance
	}
	return Match{}, false
}
