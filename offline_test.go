package stemfx

import (
	"context"
	"testing"

	"github.com/cbegin/stemfx-go/internal/testutil"
)

func TestFrameTimes(t *testing.T) {
	got := FrameTimes(0, 1, 4)
	testutil.RequireSliceNearlyEqual(t, got, []float64{0, 0.25, 0.5, 0.75, 1}, 0)
	if got := FrameTimes(1, 0, 30); got != nil {
		t.Fatalf("reversed range = %v, want nil", got)
	}
	if got := FrameTimes(0, 1, 0); got != nil {
		t.Fatalf("zero fps = %v, want nil", got)
	}
	// 10s at 60fps must not lose the last frame to rounding.
	if n := len(FrameTimes(0, 10, 60)); n != 601 {
		t.Fatalf("frame count = %d, want 601", n)
	}
}

func TestRenderMatchesSequentialEvaluation(t *testing.T) {
	triggers := fixtureTriggers()
	times := FrameTimes(0, 4, 30)

	live := newFixtureVisualizer(t, WithThrottle(-1))
	for _, tr := range triggers {
		live.AddTrigger(tr)
	}
	sequential := make([]Frame, len(times))
	for i, ts := range times {
		f, err := live.Evaluate(ts, previousTime(times, i))
		if err != nil {
			t.Fatalf("evaluate %v: %v", ts, err)
		}
		sequential[i] = f
	}

	offline := newFixtureVisualizer(t)
	frames, err := Render(context.Background(), offline, triggers, times)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got, want := FrameDigest(frames), FrameDigest(sequential); got != want {
		t.Fatalf("offline digest %s != sequential digest %s", got, want)
	}

	again, err := Render(context.Background(), offline, triggers, times)
	if err != nil {
		t.Fatalf("render again: %v", err)
	}
	if FrameDigest(again) != FrameDigest(frames) {
		t.Fatal("two renders of the same job disagree")
	}

	fired := 0
	for _, f := range frames {
		fired += len(f.Events)
	}
	if fired == 0 {
		t.Fatal("fixture triggers never fired")
	}
}

func TestRenderFramesOrderIndependent(t *testing.T) {
	v := newFixtureVisualizer(t)
	times := FrameTimes(0, 3, 10)
	forward, err := RenderFrames(context.Background(), v, times)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for i := len(times) - 1; i >= 0; i-- {
		got := v.Parameters(times[i])
		if len(got) != len(forward[i]) {
			t.Fatalf("frame %d: %d updates, want %d", i, len(got), len(forward[i]))
		}
		for j := range got {
			if got[j] != forward[i][j] {
				t.Fatalf("frame %d update %d = %+v, want %+v", i, j, got[j], forward[i][j])
			}
		}
	}
}

func TestRenderFramesCanceled(t *testing.T) {
	v := newFixtureVisualizer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := RenderFrames(ctx, v, FrameTimes(0, 1, 30)); err == nil {
		t.Fatal("expected context error")
	}
}

func TestEncodeFramesSortsParams(t *testing.T) {
	ev := Event{TriggerID: "a", Effect: Effect{Kind: "flash", Params: map[string]float64{"x": 1, "y": 2, "z": 3}}}
	a := []Frame{{Time: 1, Events: []Event{ev}}}
	first := EncodeFrames(a)
	for range 20 {
		if string(EncodeFrames(a)) != string(first) {
			t.Fatal("encoding depends on map iteration order")
		}
	}
}

func TestRenderAssignsStableTriggerIDs(t *testing.T) {
	triggers := fixtureTriggers()
	for i := range triggers {
		triggers[i].ID = ""
	}
	times := FrameTimes(0, 3, 30)
	v := newFixtureVisualizer(t)
	first, err := Render(context.Background(), v, triggers, times)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	second, err := Render(context.Background(), newFixtureVisualizer(t), triggers, times)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if FrameDigest(first) != FrameDigest(second) {
		t.Fatal("renders of the same id-less triggers disagree")
	}
	for i := range triggers {
		if triggers[i].ID != "" {
			t.Fatal("Render modified the caller's triggers")
		}
	}

	AssignTriggerIDs(triggers)
	live := newFixtureVisualizer(t, WithThrottle(-1))
	for _, tr := range triggers {
		live.AddTrigger(tr)
	}
	sequential := make([]Frame, len(times))
	for i, ts := range times {
		if sequential[i], err = live.Evaluate(ts, previousTime(times, i)); err != nil {
			t.Fatalf("evaluate %v: %v", ts, err)
		}
	}
	if FrameDigest(sequential) != FrameDigest(first) {
		t.Fatal("assigned ids differ from the ids Render derives")
	}
}
