package mml

import (
	"sort"

	"github.com/cbegin/stemfx-go/internal/analysis"
)

// Note is one sounding note in ticks.
type Note struct {
	Tick     int
	Length   int
	Key      int
	Velocity int
	Channel  int
}

type Track struct {
	Notes   []Note
	EndTick int
}

// Tempo is a tempo change. Tempo changes apply to every track.
type Tempo struct {
	Tick int
	BPM  float64
}

type Score struct {
	Resolution int
	InitialBPM float64
	Tracks     []Track
	Tempo      []Tempo // sorted by tick
}

type ParserConfig struct {
	Resolution    int // ticks per whole note
	DefaultBPM    float64
	DefaultLValue int
	DefaultOctave int
	MinOctave     int
	MaxOctave     int
	DefaultVolume int // 0..16
	DefaultQuant  int // 0..8
}

func DefaultParserConfig() ParserConfig {
	return ParserConfig{
		Resolution:    1920,
		DefaultBPM:    analysis.DefaultBPM,
		DefaultLValue: 4,
		DefaultOctave: 5,
		MinOctave:     0,
		MaxOctave:     9,
		DefaultVolume: 16,
		DefaultQuant:  6,
	}
}

// Seconds converts a tick position to seconds through the tempo map.
func (s *Score) Seconds(tick int) float64 {
	bpm := s.InitialBPM
	if bpm <= 0 {
		bpm = analysis.DefaultBPM
	}
	secs, at := 0.0, 0
	for _, tc := range s.Tempo {
		if tc.Tick >= tick {
			break
		}
		secs += s.tickSeconds(tc.Tick-at, bpm)
		at, bpm = tc.Tick, tc.BPM
	}
	return secs + s.tickSeconds(tick-at, bpm)
}

func (s *Score) tickSeconds(ticks int, bpm float64) float64 {
	quarter := float64(s.Resolution) / 4
	return float64(ticks) / quarter * 60 / bpm
}

// NoteTracks converts the score into note spans in seconds.
func (s *Score) NoteTracks() []analysis.NoteTrack {
	out := make([]analysis.NoteTrack, 0, len(s.Tracks))
	for _, tr := range s.Tracks {
		notes := make([]analysis.NoteEvent, 0, len(tr.Notes))
		for _, n := range tr.Notes {
			start := s.Seconds(n.Tick)
			notes = append(notes, analysis.NoteEvent{
				Start:    start,
				Duration: s.Seconds(n.Tick+n.Length) - start,
				Note:     n.Key,
				Velocity: n.Velocity,
				Channel:  n.Channel,
			})
		}
		out = append(out, analysis.NoteTrack{Notes: notes})
	}
	return out
}

// TempoChanges converts the tempo map into seconds.
func (s *Score) TempoChanges() []analysis.TempoChange {
	out := make([]analysis.TempoChange, 0, len(s.Tempo))
	for _, tc := range s.Tempo {
		out = append(out, analysis.TempoChange{Time: s.Seconds(tc.Tick), BPM: tc.BPM})
	}
	return out
}

func sortTempo(tempo []Tempo) {
	sort.SliceStable(tempo, func(i, j int) bool { return tempo[i].Tick < tempo[j].Tick })
}
