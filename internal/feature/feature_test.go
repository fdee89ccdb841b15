package feature

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/cbegin/stemfx-go/internal/analysis"
	"github.com/cbegin/stemfx-go/internal/envelope"
	"github.com/cbegin/stemfx-go/internal/testutil"
)

func fixture() []analysis.StemAnalysis {
	return []analysis.StemAnalysis{
		{
			FileID:     "song",
			Stem:       analysis.StemMaster,
			FrameTimes: []float64{0, 1, 2, 3},
			Features: map[string][]float64{
				"rms":              {0.1, 0.5, 0.9, 0.2},
				"spectralcentroid": {1000, 2000, 4000, 12000},
			},
		},
		{
			FileID:     "song",
			Stem:       analysis.StemDrums,
			FrameTimes: []float64{0, 1},
			Features:   map[string][]float64{"rms": {0.3, 0.6}},
			Transients: []analysis.Transient{{Time: 1, Amplitude: 1}},
		},
		{
			FileID:     "other-song",
			Stem:       analysis.StemBass,
			FrameTimes: []float64{0},
			Features:   map[string][]float64{"bass": {0.42}},
		},
	}
}

func TestResolve(t *testing.T) {
	cases := []struct {
		id       string
		wantStem analysis.Stem
		wantName string
	}{
		{"bass-rms", analysis.StemBass, "rms"},
		{"drums-peaks", analysis.StemDrums, "peaks"},
		{"master-spectral-centroid", analysis.StemMaster, "spectral-centroid"},
		{"spectral-flux", analysis.StemMaster, "spectral-flux"},
		{"rms", analysis.StemMaster, "rms"},
		{"Vocals-treble", analysis.StemVocals, "treble"},
	}
	for _, tc := range cases {
		stem, name := Resolve(tc.id, analysis.StemMaster)
		if stem != tc.wantStem || name != tc.wantName {
			t.Fatalf("Resolve(%q) = (%s, %s), want (%s, %s)", tc.id, stem, name, tc.wantStem, tc.wantName)
		}
	}
}

func TestValueLastObserved(t *testing.T) {
	a := New(Options{Decay: envelope.DefaultDecayTable()})
	if got := a.Value(fixture(), "song", "master-rms", 1.5); got != 0.5 {
		t.Fatalf("master-rms at 1.5 = %v, want 0.5", got)
	}
	if got := a.Value(fixture(), "song", "rms", 2.5); got != 0.9 {
		t.Fatalf("rms at 2.5 = %v, want 0.9", got)
	}
	if got := a.Value(fixture(), "song", "volume", 0); got != 0.1 {
		t.Fatalf("volume alias = %v, want rms 0.1", got)
	}
}

func TestValuePeaksUsesStemDecay(t *testing.T) {
	a := New(Options{Decay: envelope.DefaultDecayTable()})
	got := a.Value(fixture(), "song", "drums-peaks", 1.075)
	testutil.RequireNearlyEqual(t, got, 0.5, 1e-9)
	if got := a.Value(fixture(), "song", "drums-peaks", 1.2); got != 0 {
		t.Fatalf("drums-peaks after decay = %v, want 0", got)
	}
}

func TestValueUnknownFeatureIsZero(t *testing.T) {
	a := New(Options{})
	if got := a.Value(fixture(), "song", "master-shimmer", 1); got != 0 {
		t.Fatalf("unknown feature = %v, want 0", got)
	}
	if got := a.Value(fixture(), "song", "vocals-rms", 1); got != 0 {
		t.Fatalf("missing stem = %v, want 0", got)
	}
	if got := a.Value(nil, "song", "rms", 1); got != 0 {
		t.Fatalf("no analyses = %v, want 0", got)
	}
}

func TestStemFallbackCountedAndLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	a := New(Options{Logger: logger})
	for i := 0; i < 3; i++ {
		if got := a.Value(fixture(), "song", "bass-bass", 0); got != 0.42 {
			t.Fatalf("fallback value = %v, want 0.42", got)
		}
	}
	if got := a.Fallbacks(); got != 3 {
		t.Fatalf("Fallbacks = %d, want 3", got)
	}
	if n := strings.Count(buf.String(), "stem analysis fallback"); n != 1 {
		t.Fatalf("fallback logged %d times, want 1:\n%s", n, buf.String())
	}
}

func TestNormalized(t *testing.T) {
	a := New(Options{})
	testutil.RequireNearlyEqual(t, a.Normalized(fixture(), "song", "spectral-centroid", 1), 0.25, 1e-12)
	if got := a.Normalized(fixture(), "song", "spectralCentroid", 3); got != 1 {
		t.Fatalf("clamped centroid = %v, want 1", got)
	}
	if got := a.Normalized(fixture(), "song", "rms", 2); got != 0.9 {
		t.Fatalf("rms normalized = %v, want 0.9", got)
	}
}

func TestValueIdempotent(t *testing.T) {
	a := New(Options{Decay: envelope.DefaultDecayTable()})
	stems := fixture()
	for _, ts := range []float64{-1, 0.3, 1.01, 2.7, 9} {
		for _, id := range []string{"rms", "drums-peaks", "master-spectralCentroid"} {
			if a.Value(stems, "song", id, ts) != a.Value(stems, "song", id, ts) {
				t.Fatalf("%s at %v differs between calls", id, ts)
			}
		}
	}
}
