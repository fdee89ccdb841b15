package stemfx

import (
	"io"
	"os"

	"github.com/cbegin/stemfx-go/internal/analysis"
	"github.com/cbegin/stemfx-go/internal/mapping"
	"github.com/cbegin/stemfx-go/internal/midi"
	"github.com/cbegin/stemfx-go/internal/mml"
	"github.com/cbegin/stemfx-go/internal/rhythm"
	"github.com/cbegin/stemfx-go/internal/trigger"
)

// LoadAnalysis reads an upstream analysis cache file (JSON array of stems).
func LoadAnalysis(path string) ([]StemAnalysis, error) { return analysis.LoadFile(path) }

func DecodeAnalysis(r io.Reader) ([]StemAnalysis, error) { return analysis.Decode(r) }

// NoteSource is note content read from MIDI or MML.
type NoteSource struct {
	Tracks       []NoteTrack
	TempoChanges []TempoChange
}

// LoadMIDI reads note tracks and the tempo map of a Standard MIDI File.
func LoadMIDI(path string) (NoteSource, error) {
	f, err := midi.LoadFile(path)
	if err != nil {
		return NoteSource{}, err
	}
	return NoteSource{Tracks: f.Tracks, TempoChanges: f.TempoChanges}, nil
}

// WriteMIDI writes note content as a Standard MIDI File.
func WriteMIDI(w io.Writer, src NoteSource) error {
	return midi.Encode(w, midi.File{Tracks: src.Tracks, TempoChanges: src.TempoChanges}, 480)
}

// ParseMML converts MML text into note tracks.
func ParseMML(text string) (NoteSource, error) {
	tracks, tempo, err := mml.ParseNotes(text)
	if err != nil {
		return NoteSource{}, err
	}
	return NoteSource{Tracks: tracks, TempoChanges: tempo}, nil
}

// LoadMML parses an MML file.
func LoadMML(path string) (NoteSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return NoteSource{}, err
	}
	return ParseMML(string(raw))
}

// WithNotes returns analyses plus one analysis of stem carrying src's notes
// and tempo map. The input slice is not modified.
func WithNotes(analyses []StemAnalysis, fileID string, stem Stem, src NoteSource) []StemAnalysis {
	out := make([]StemAnalysis, len(analyses), len(analyses)+1)
	copy(out, analyses)
	return append(out, StemAnalysis{
		FileID:       fileID,
		Stem:         stem,
		Tracks:       src.Tracks,
		TempoChanges: src.TempoChanges,
	})
}

// LoadTriggers reads a JSON array of trigger definitions.
func LoadTriggers(path string) ([]Trigger, error) { return trigger.LoadFile(path) }

// MappingConfig is the JSON form of mappings plus base parameter values.
type MappingConfig = mapping.Config

func LoadMappings(path string) (MappingConfig, error) { return mapping.LoadFile(path) }

// EstimateBPM estimates a global tempo from transients between minBPM and
// maxBPM (zero values use 60 and 200).
func EstimateBPM(transients []Transient, minBPM, maxBPM float64) (float64, error) {
	return rhythm.EstimateBPM(transients, rhythm.Options{MinBPM: minBPM, MaxBPM: maxBPM})
}
