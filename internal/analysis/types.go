package analysis

import "strings"

// Stem names an isolated audio source.
type Stem string

const (
	StemMaster Stem = "master"
	StemDrums  Stem = "drums"
	StemBass   Stem = "bass"
	StemVocals Stem = "vocals"
	StemOther  Stem = "other"
)

// ParseStem reports whether name (case-insensitive) is a recognized stem.
func ParseStem(name string) (Stem, bool) {
	switch Stem(strings.ToLower(name)) {
	case StemMaster:
		return StemMaster, true
	case StemDrums:
		return StemDrums, true
	case StemBass:
		return StemBass, true
	case StemVocals:
		return StemVocals, true
	case StemOther:
		return StemOther, true
	}
	return "", false
}

// Series is one continuous feature: Values[i] was observed at FrameTimes[i].
type Series struct {
	FrameTimes []float64
	Values     []float64
}

// Transient is a detected onset. Amplitude is 0..1.
type Transient struct {
	Time       float64 `json:"time"`
	Amplitude  float64 `json:"amplitude"`
	Frequency  float64 `json:"frequency"`
	Duration   float64 `json:"duration"`
	Confidence float64 `json:"confidence"`
}

// ChromaEvent is a 12-bin pitch-class energy snapshot.
type ChromaEvent struct {
	Time       float64     `json:"time"`
	Chroma     [12]float64 `json:"chroma"`
	RootNote   int         `json:"rootNote"`
	Confidence float64     `json:"confidence"`
}

// NoteEvent is a note span in seconds.
type NoteEvent struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Note     int     `json:"note"`
	Velocity int     `json:"velocity"`
	Channel  int     `json:"channel"`
}

// End returns the exclusive end time of the note.
func (n NoteEvent) End() float64 { return n.Start + n.Duration }

// ActiveAt reports whether the note sounds at t (start inclusive, end exclusive).
func (n NoteEvent) ActiveAt(t float64) bool {
	return t >= n.Start && t < n.Start+n.Duration
}

type NoteTrack struct {
	Name  string      `json:"name,omitempty"`
	Notes []NoteEvent `json:"notes"`
}

type TempoChange struct {
	Time float64 `json:"time"`
	BPM  float64 `json:"bpm"`
}

// StemAnalysis is the read-only analysis of one stem of one file. Every
// feature series shares FrameTimes. Features is keyed by CanonicalName.
type StemAnalysis struct {
	FileID       string
	Stem         Stem
	FrameTimes   []float64
	Features     map[string][]float64
	Transients   []Transient
	Chroma       []ChromaEvent
	Tracks       []NoteTrack
	TempoChanges []TempoChange
}

// Series returns the named feature paired with the shared frame times.
func (s *StemAnalysis) Series(name string) (Series, bool) {
	values, ok := s.Features[CanonicalName(name)]
	if !ok {
		return Series{}, false
	}
	return Series{FrameTimes: s.FrameTimes, Values: values}, true
}

// CanonicalName lower-cases a feature name and strips hyphens, so
// "spectral-centroid" and "spectralCentroid" name the same series.
func CanonicalName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "-", ""))
}
