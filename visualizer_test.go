package stemfx

import (
	"errors"
	"testing"
	"time"

	"github.com/cbegin/stemfx-go/internal/testutil"
)

func fixtureAnalyses() []StemAnalysis {
	return []StemAnalysis{
		{
			FileID:     "song",
			Stem:       StemMaster,
			FrameTimes: []float64{0, 1, 2, 3},
			Features: map[string][]float64{
				"rms":              {0.1, 0.5, 0.9, 0.3},
				"spectralcentroid": {2000, 4000, 6000, 8000},
			},
			TempoChanges: []TempoChange{{Time: 0, BPM: 120}},
			Chroma: []ChromaEvent{
				{Time: 1, Chroma: [12]float64{0: 1, 4: 1, 7: 1}},
				{Time: 2, Chroma: [12]float64{9: 1, 0: 1, 4: 1}},
			},
		},
		{
			FileID:     "song",
			Stem:       StemDrums,
			FrameTimes: []float64{0, 1, 2, 3},
			Features:   map[string][]float64{"rms": {0.2, 0.2, 0.2, 0.2}},
			Transients: []Transient{{Time: 0.5, Amplitude: 1}, {Time: 1.5, Amplitude: 0.5}},
		},
		{
			FileID: "song",
			Stem:   StemBass,
			Tracks: []NoteTrack{{Name: "bass", Notes: []NoteEvent{
				{Start: 0.5, Duration: 0.4, Note: 36, Velocity: 100},
				{Start: 1.0, Duration: 0.5, Note: 43, Velocity: 40},
				{Start: 2.0, Duration: 1.0, Note: 41, Velocity: 127},
			}}},
		},
	}
}

func fixtureTriggers() []Trigger {
	return []Trigger{
		{ID: "kick", LayerID: "bg", Enabled: true, Condition: NoteOn(nil, nil),
			Effect: Effect{Kind: "flash", Duration: 0.2, Intensity: 1}, Cooldown: 0.25},
		{ID: "loud", LayerID: "fg", Enabled: true, Condition: VelocityThreshold(nil, nil, 90),
			Effect: Effect{Kind: "shake", Duration: 0.5, Intensity: 0.8, Params: map[string]float64{"amp": 3}}},
		{ID: "beat", LayerID: "fg", Enabled: true, Condition: Beat(1),
			Effect: Effect{Kind: "pulse", Duration: 0.1, Intensity: 0.5}, Cooldown: 0.1},
	}
}

func newFixtureVisualizer(t *testing.T, opts ...Option) *Visualizer {
	t.Helper()
	v := New(fixtureAnalyses(), append([]Option{WithFileID("song")}, opts...)...)
	v.SetMappings(
		Mappings{
			ParamKey("bg", "opacity"): {FeatureID: "master-rms", Amount: 1},
			ParamKey("bg", "x"):       {FeatureID: "spectral-centroid", Amount: 0.25},
			ParamKey("fg", "scale"):   {FeatureID: "drums-peaks", Amount: 0.75},
		},
		Bases{"bg": {"opacity": 0.2, "x": 50}, "fg": {"scale": 0.5}},
	)
	return v
}

type recordingSink struct {
	got map[string]float64
}

func (r *recordingSink) UpdateParameter(layerID, param string, value float64) {
	r.got[ParamKey(layerID, param)] = value
}

func TestParametersAtTime(t *testing.T) {
	v := newFixtureVisualizer(t)
	if got := v.FeatureValue("master-rms", 1.5); got != 0.5 {
		t.Fatalf("master-rms at 1.5 = %v, want 0.5", got)
	}
	updates := v.Parameters(1.5)
	if len(updates) != 3 {
		t.Fatalf("got %d updates, want 3", len(updates))
	}
	// Sorted by layer then param.
	if updates[0].LayerID != "bg" || updates[0].Param != "opacity" || updates[1].Param != "x" || updates[2].LayerID != "fg" {
		t.Fatalf("unexpected order: %+v", updates)
	}
	// knob(1) = +0.5, so opacity = 0.2 + 0.5*0.5.
	testutil.RequireNearlyEqual(t, updates[0].Value, 0.45, 1e-12)
	// centroid 4000Hz normalizes to 0.5; knob(0.25) = -0.5; x = 50 - 0.25*100.
	testutil.RequireNearlyEqual(t, updates[1].Value, 25, 1e-9)
}

func TestParametersPure(t *testing.T) {
	v := newFixtureVisualizer(t)
	a := v.Parameters(2.25)
	v.Parameters(0.1)
	v.Parameters(3.9)
	b := v.Parameters(2.25)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("update %d changed between calls: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestRawFeatureValues(t *testing.T) {
	v := newFixtureVisualizer(t, WithRawFeatureValues())
	updates := v.Parameters(1.5)
	// raw centroid 4000 drives x far past its scale, clamped at 0.
	if updates[1].Value != 0 {
		t.Fatalf("raw x = %v, want 0", updates[1].Value)
	}
}

func TestPublish(t *testing.T) {
	v := newFixtureVisualizer(t)
	sink := &recordingSink{got: map[string]float64{}}
	v.Publish(sink, v.Parameters(1.5))
	if len(sink.got) != 3 {
		t.Fatalf("sink got %d updates, want 3", len(sink.got))
	}
	testutil.RequireNearlyEqual(t, sink.got["bg:opacity"], 0.45, 1e-12)
}

func TestEvaluateFiresAndWatches(t *testing.T) {
	v := newFixtureVisualizer(t, WithThrottle(-1))
	for _, tr := range fixtureTriggers()[:2] {
		v.AddTrigger(tr)
	}
	ch := v.Watch()
	f, err := v.Evaluate(0.5, 0.4)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(f.Updates) != 3 {
		t.Fatalf("frame has %d updates, want 3", len(f.Updates))
	}
	if len(f.Events) != 2 || f.Events[0].TriggerID != "kick" || f.Events[1].TriggerID != "loud" {
		t.Fatalf("events = %+v, want kick and loud", f.Events)
	}
	for range 2 {
		select {
		case ev := <-ch:
			if ev.Time != 0.5 {
				t.Fatalf("watched event time = %v, want 0.5", ev.Time)
			}
		default:
			t.Fatal("event not delivered to Watch channel")
		}
	}
}

func TestEvaluateThrottledKeepsUpdates(t *testing.T) {
	now := time.Unix(100, 0)
	v := newFixtureVisualizer(t, WithThrottle(time.Second), WithClock(func() time.Time { return now }))
	v.AddTrigger(fixtureTriggers()[0])
	if _, err := v.Evaluate(0.5, 0.4); err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	f, err := v.Evaluate(1.0, 0.5)
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("err = %v, want ErrThrottled", err)
	}
	if len(f.Updates) != 3 || len(f.Events) != 0 {
		t.Fatalf("throttled frame = %+v", f)
	}
	if v.Stats().Throttled != 1 {
		t.Fatalf("throttled count = %d, want 1", v.Stats().Throttled)
	}
}

func TestEventSinkOption(t *testing.T) {
	var got []Event
	v := newFixtureVisualizer(t, WithThrottle(-1), WithEventSink(SinkFunc(func(ev Event) { got = append(got, ev) })))
	h := v.AddTrigger(fixtureTriggers()[0])
	if _, err := v.Evaluate(0.5, 0.4); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Handle != h {
		t.Fatalf("sink events = %+v", got)
	}
	v.SetTriggerEnabled(h, false)
	if _, err := v.Evaluate(1.0, 0.9); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("disabled trigger fired: %+v", got)
	}
}

func TestFileFallbackCounted(t *testing.T) {
	v := New(fixtureAnalyses(), WithFileID("missing"))
	if got := v.FeatureValue("master-rms", 1.5); got != 0.5 {
		t.Fatalf("fallback value = %v, want 0.5", got)
	}
	if v.Fallbacks() != 1 {
		t.Fatalf("fallbacks = %d, want 1", v.Fallbacks())
	}
}

func TestChordAndActiveNotes(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []Option
	}{
		{"cached", nil},
		{"scan", []Option{WithoutCorrelationCache()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			v := newFixtureVisualizer(t, tc.opts...)
			for _, c := range []struct {
				t    float64
				want string
			}{{0.5, "N"}, {1, "C"}, {1.99, "C"}, {2.5, "Am"}} {
				if got := v.Chord(c.t).String(); got != c.want {
					t.Fatalf("Chord(%v) = %s, want %s", c.t, got, c.want)
				}
			}
			notes := v.ActiveNotes(1.2)
			if len(notes) != 1 || notes[0].Note != 43 {
				t.Fatalf("ActiveNotes(1.2) = %+v, want note 43", notes)
			}
			if f, _ := v.Evaluate(2.5, 2.4); f.Chord != "Am" {
				t.Fatalf("frame chord = %q, want Am", f.Chord)
			}
		})
	}
}

func TestWatchDropsWhenFull(t *testing.T) {
	v := newFixtureVisualizer(t, WithThrottle(-1))
	v.AddTrigger(Trigger{ID: "every", LayerID: "bg", Enabled: true, Condition: Beat(1),
		Effect: Effect{Kind: "pulse", Duration: 0.1, Intensity: 1}})
	ch := v.Watch()
	// Every evaluation lands on a beat at 120 BPM.
	for i := range 70 {
		ts := float64(i+1) * 0.5
		if _, err := v.Evaluate(ts, ts-0.5); err != nil {
			t.Fatal(err)
		}
	}
	if len(ch) != 64 || v.WatchDropped() != 6 {
		t.Fatalf("buffered %d dropped %d, want 64 and 6", len(ch), v.WatchDropped())
	}
}
