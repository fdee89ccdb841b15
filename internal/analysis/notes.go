package analysis

import (
	"math/bits"
	"sort"

	"github.com/cbegin/stemfx-go/internal/series"
)

// DefaultBPM applies before the first tempo change.
const DefaultBPM = 120.0

// PitchSet is a set of pitch classes (bit i set means pitch class i).
type PitchSet uint16

func (p PitchSet) Add(note int) PitchSet {
	pc := note % 12
	if pc < 0 {
		pc += 12
	}
	return p | 1<<uint(pc)
}

func (p PitchSet) Has(pc int) bool { return pc >= 0 && pc < 12 && p&(1<<uint(pc)) != 0 }

func (p PitchSet) Len() int { return bits.OnesCount16(uint16(p)) }

// Distance is the Jaccard distance 1 - |p∩q|/|p∪q|. Two empty sets are 0 apart.
func (p PitchSet) Distance(q PitchSet) float64 {
	union := (p | q).Len()
	if union == 0 {
		return 0
	}
	return 1 - float64((p&q).Len())/float64(union)
}

// ForEachNote visits every note of every track of every analysis in input
// order. Returning false stops the walk.
func ForEachNote(analyses []StemAnalysis, fn func(n NoteEvent) bool) {
	for i := range analyses {
		for _, tr := range analyses[i].Tracks {
			for _, n := range tr.Notes {
				if !fn(n) {
					return
				}
			}
		}
	}
}

// ActiveNotes scans all note spans and returns those sounding at t.
func ActiveNotes(analyses []StemAnalysis, t float64) []NoteEvent {
	var out []NoteEvent
	ForEachNote(analyses, func(n NoteEvent) bool {
		if n.ActiveAt(t) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// PitchClassesAt scans all note spans and returns the pitch classes sounding at t.
func PitchClassesAt(analyses []StemAnalysis, t float64) PitchSet {
	var set PitchSet
	ForEachNote(analyses, func(n NoteEvent) bool {
		if n.ActiveAt(t) {
			set = set.Add(n.Note)
		}
		return true
	})
	return set
}

// MergeTempo collects the tempo changes of all analyses, ordered by time.
// Changes at the same instant keep input order.
func MergeTempo(analyses []StemAnalysis) []TempoChange {
	var out []TempoChange
	for i := range analyses {
		out = append(out, analyses[i].TempoChanges...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// TempoAt returns the BPM of the latest change at or before t in a sorted
// tempo map, or def when none applies.
func TempoAt(changes []TempoChange, t, def float64) float64 {
	i := series.Latest(changes, t, func(c TempoChange) float64 { return c.Time })
	if i < 0 || changes[i].BPM <= 0 {
		return def
	}
	return changes[i].BPM
}

// MergeChroma collects the chroma events of all analyses, ordered by time.
func MergeChroma(analyses []StemAnalysis) []ChromaEvent {
	var out []ChromaEvent
	for i := range analyses {
		out = append(out, analyses[i].Chroma...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// IndexedNote is a note tagged with its position in ForEachNote order.
type IndexedNote struct {
	NoteEvent
	Order int
}

// NoteIndex holds every note of a set of analyses sorted by start time.
// Notes starting together keep scan order.
type NoteIndex struct {
	Notes       []IndexedNote
	MaxDuration float64
}

func NewNoteIndex(analyses []StemAnalysis) NoteIndex {
	var idx NoteIndex
	ForEachNote(analyses, func(n NoteEvent) bool {
		idx.Notes = append(idx.Notes, IndexedNote{NoteEvent: n, Order: len(idx.Notes)})
		if n.Duration > idx.MaxDuration {
			idx.MaxDuration = n.Duration
		}
		return true
	})
	sort.SliceStable(idx.Notes, func(i, j int) bool { return idx.Notes[i].Start < idx.Notes[j].Start })
	return idx
}

// StartingIn returns the notes with start in the half-open window
// (prev, cur], in scan order.
func (x NoteIndex) StartingIn(prev, cur float64) []IndexedNote {
	if cur <= prev {
		return nil
	}
	lo := series.After(x.Notes, prev, noteStart)
	hi := series.After(x.Notes, cur, noteStart)
	if lo >= hi {
		return nil
	}
	out := append([]IndexedNote(nil), x.Notes[lo:hi]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Overlapping returns the notes whose span intersects [lo, hi), in scan order.
func (x NoteIndex) Overlapping(lo, hi float64) []IndexedNote {
	first := series.After(x.Notes, lo-x.MaxDuration-1e-9, noteStart)
	var out []IndexedNote
	for _, n := range x.Notes[first:] {
		if n.Start >= hi {
			break
		}
		if n.End() > lo {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func noteStart(n IndexedNote) float64 { return n.Start }
