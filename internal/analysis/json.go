package analysis

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

type stemJSON struct {
	FileID       string               `json:"fileId"`
	StemType     string               `json:"stemType"`
	FrameTimes   []float64            `json:"frameTimes"`
	Features     map[string][]float64 `json:"features"`
	Transients   []Transient          `json:"transients"`
	Chroma       []ChromaEvent        `json:"chroma"`
	Tracks       []NoteTrack          `json:"tracks"`
	TempoChanges []TempoChange        `json:"tempoChanges"`
}

// Decode reads the upstream analysis cache: a JSON array of stem analyses.
func Decode(r io.Reader) ([]StemAnalysis, error) {
	var raw []stemJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("analysis: decode: %w", err)
	}
	out := make([]StemAnalysis, 0, len(raw))
	for i, s := range raw {
		stem, ok := ParseStem(s.StemType)
		if !ok {
			return nil, fmt.Errorf("analysis: entry %d: %w: %q", i, ErrUnknownStem, s.StemType)
		}
		sa := StemAnalysis{
			FileID:       s.FileID,
			Stem:         stem,
			FrameTimes:   s.FrameTimes,
			Features:     make(map[string][]float64, len(s.Features)),
			Transients:   s.Transients,
			Chroma:       s.Chroma,
			Tracks:       s.Tracks,
			TempoChanges: s.TempoChanges,
		}
		for name, values := range s.Features {
			sa.Features[CanonicalName(name)] = values
		}
		if err := sa.Validate(); err != nil {
			return nil, fmt.Errorf("analysis: entry %d (%s/%s): %w", i, s.FileID, stem, err)
		}
		sortEvents(&sa)
		out = append(out, sa)
	}
	return out, nil
}

// LoadFile decodes an analysis cache file.
func LoadFile(path string) ([]StemAnalysis, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Validate checks the pairing invariant of every series. Sortedness of
// FrameTimes is the producer's responsibility and is not checked here.
func (s *StemAnalysis) Validate() error {
	for name, values := range s.Features {
		if len(values) != len(s.FrameTimes) {
			return fmt.Errorf("%w: %s has %d values for %d frames", ErrLengthMismatch, name, len(values), len(s.FrameTimes))
		}
	}
	return nil
}

// sortEvents orders the sparse event lists by time. Producers normally emit
// them sorted; stable sorting leaves such input untouched.
func sortEvents(s *StemAnalysis) {
	sort.SliceStable(s.Transients, func(i, j int) bool { return s.Transients[i].Time < s.Transients[j].Time })
	sort.SliceStable(s.Chroma, func(i, j int) bool { return s.Chroma[i].Time < s.Chroma[j].Time })
	sort.SliceStable(s.TempoChanges, func(i, j int) bool { return s.TempoChanges[i].Time < s.TempoChanges[j].Time })
	for k := range s.Tracks {
		notes := s.Tracks[k].Notes
		sort.SliceStable(notes, func(i, j int) bool { return notes[i].Start < notes[j].Start })
	}
}
