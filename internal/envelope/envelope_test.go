package envelope

import (
	"testing"

	"github.com/cbegin/stemfx-go/internal/analysis"
	"github.com/cbegin/stemfx-go/internal/testutil"
)

func TestPeakZeroOutsideWindow(t *testing.T) {
	tr := []analysis.Transient{{Time: 1.0, Amplitude: 0.8}}
	const d = 0.25
	for _, ts := range []float64{0, 0.5, 0.999999, 1.25, 1.2500001, 3} {
		if got := Peak(tr, ts, d); got != 0 {
			t.Fatalf("Peak(%v) = %v, want 0", ts, got)
		}
	}
}

func TestPeakLinearDecay(t *testing.T) {
	tr := []analysis.Transient{{Time: 1.0, Amplitude: 0.8}}
	const d = 0.25
	if got := Peak(tr, 1.0, d); got != 0.8 {
		t.Fatalf("Peak at onset = %v, want amplitude 0.8", got)
	}
	testutil.RequireNearlyEqual(t, Peak(tr, 1.0+d/2, d), 0.4, 1e-12)
	testutil.RequireNearlyEqual(t, Peak(tr, 1.0+d*3/4, d), 0.2, 1e-12)
}

func TestPeakUsesLatestTransient(t *testing.T) {
	tr := []analysis.Transient{
		{Time: 0.0, Amplitude: 1.0},
		{Time: 0.1, Amplitude: 0.2},
	}
	// The second onset replaces the first even though the first would still
	// be louder at this instant.
	testutil.RequireNearlyEqual(t, Peak(tr, 0.1, 0.5), 0.2, 1e-12)
}

func TestPeakEmptyAndNonPositiveDecay(t *testing.T) {
	if got := Peak(nil, 1, 0.5); got != 0 {
		t.Fatalf("empty transients = %v, want 0", got)
	}
	tr := []analysis.Transient{{Time: 0, Amplitude: 1}}
	if got := Peak(tr, 0, 0); got != 0 {
		t.Fatalf("zero decay = %v, want 0", got)
	}
}

func TestDecayTable(t *testing.T) {
	tab := DefaultDecayTable()
	cases := []struct {
		id   string
		want float64
	}{
		{"drums-peaks", 0.15},
		{"Bass-Peaks", 0.4},
		{"vocals-peaks", 0.3},
		{"other-peaks", 0.35},
		{"master-peaks", 0.25},
		{"peaks", 0.25},
		{"cowbell-peaks", DefaultDecay},
	}
	for _, tc := range cases {
		if got := tab.Lookup(tc.id); got != tc.want {
			t.Fatalf("Lookup(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
	var zero DecayTable
	if got := zero.Lookup("drums-peaks"); got != DefaultDecay {
		t.Fatalf("zero table = %v, want %v", got, DefaultDecay)
	}
}

func TestDecayTableWithDoesNotMutate(t *testing.T) {
	base := DefaultDecayTable()
	next := base.With("drums-peaks", 0.05)
	if base.Lookup("drums-peaks") != 0.15 {
		t.Fatalf("With mutated the receiver")
	}
	if next.Lookup("drums-peaks") != 0.05 {
		t.Fatalf("With did not apply override")
	}
}

func TestReconstructorPeak(t *testing.T) {
	r := NewReconstructor(DefaultDecayTable())
	tr := []analysis.Transient{{Time: 2, Amplitude: 1}}
	// drums decay in 0.15s, bass in 0.4s
	if got := r.Peak(tr, "drums-peaks", 2.2); got != 0 {
		t.Fatalf("drums at +0.2s = %v, want 0", got)
	}
	testutil.RequireNearlyEqual(t, r.Peak(tr, "bass-peaks", 2.2), 0.5, 1e-12)
}
