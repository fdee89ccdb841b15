package correlate

import (
	"testing"

	"github.com/cbegin/stemfx-go/internal/analysis"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		chroma [12]float64
		want   string
	}{
		{"silence", [12]float64{}, "N"},
		{"C major", [12]float64{0: 1, 4: 1, 7: 1}, "C"},
		{"G major", [12]float64{7: 1, 11: 1, 2: 1}, "G"},
		{"E minor", [12]float64{4: 1, 7: 1, 11: 1}, "Em"},
		{"F# minor with noise", [12]float64{6: 1, 9: 0.9, 1: 0.8, 3: 0.1}, "F#m"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.chroma)
			if got.String() != tc.want {
				t.Fatalf("Classify = %s (%+v), want %s", got, got, tc.want)
			}
			if got.Root >= 0 && (got.Score <= 0 || got.Score > 1+1e-12) {
				t.Fatalf("score %v out of (0,1]", got.Score)
			}
		})
	}
}

func TestChordAtMatchesCache(t *testing.T) {
	analyses := []analysis.StemAnalysis{
		{Stem: analysis.StemOther, Chroma: []analysis.ChromaEvent{
			{Time: 0.5, Chroma: [12]float64{7: 1, 11: 1, 2: 1}},
			{Time: 3, Chroma: [12]float64{4: 1, 7: 1, 11: 1}},
		}},
		{Stem: analysis.StemBass, Chroma: []analysis.ChromaEvent{
			{Time: 1.2, Chroma: [12]float64{0: 1, 4: 1, 7: 1}},
		}},
	}
	c := New(Options{})
	c.Load(analyses)
	want := map[float64]string{0: "N", 0.5: "G", 1.1: "G", 1.2: "C", 2.9: "C", 3: "Em", 10: "Em"}
	for ts, name := range want {
		if got := ChordAt(analyses, ts).String(); got != name {
			t.Fatalf("ChordAt(%v) = %s, want %s", ts, got, name)
		}
		if got := c.Chord(ts).String(); got != name {
			t.Fatalf("Cache.Chord(%v) = %s, want %s", ts, got, name)
		}
	}
}
