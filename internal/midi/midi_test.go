package midi

import (
	"bytes"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/stemfx-go/internal/analysis"
	"github.com/cbegin/stemfx-go/internal/testutil"
)

func TestEncodeDecode(t *testing.T) {
	in := File{
		Tracks: []analysis.NoteTrack{{
			Name: "lead",
			Notes: []analysis.NoteEvent{
				{Start: 0, Duration: 0.5, Note: 60, Velocity: 100},
				{Start: 0.5, Duration: 0.5, Note: 60, Velocity: 90, Channel: 2},
				{Start: 1.5, Duration: 1, Note: 67, Velocity: 70},
			},
		}},
		TempoChanges: []analysis.TempoChange{{Time: 1, BPM: 60}},
	}
	var buf bytes.Buffer
	if err := Encode(&buf, in, 480); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out.TempoChanges) != 1 || out.TempoChanges[0].BPM != 60 {
		t.Fatalf("tempo = %+v", out.TempoChanges)
	}
	testutil.RequireNearlyEqual(t, out.TempoChanges[0].Time, 1, 1e-9)
	if len(out.Tracks) != 1 || out.Tracks[0].Name != "lead" {
		t.Fatalf("tracks = %+v", out.Tracks)
	}
	got := out.Tracks[0].Notes
	if len(got) != len(in.Tracks[0].Notes) {
		t.Fatalf("got %d notes, want %d", len(got), len(in.Tracks[0].Notes))
	}
	for i, want := range in.Tracks[0].Notes {
		g := got[i]
		if g.Note != want.Note || g.Velocity != want.Velocity || g.Channel != want.Channel {
			t.Fatalf("note %d = %+v, want %+v", i, g, want)
		}
		testutil.RequireNearlyEqual(t, g.Start, want.Start, 1e-9)
		testutil.RequireNearlyEqual(t, g.Duration, want.Duration, 1e-9)
	}
}

func TestDecodeZeroVelocityAndUnterminated(t *testing.T) {
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(96)
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 80))
	tr.Add(0, midi.NoteOn(0, 64, 80))
	tr.Add(96, midi.NoteOn(0, 60, 0)) // velocity 0 ends the note
	tr.Add(96, midi.NoteOff(1, 10))   // no matching start, ignored
	tr.Close(0)
	if err := s.Add(tr); err != nil {
		t.Fatalf("Add: %v", err)
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	f, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	notes := f.Tracks[0].Notes
	if len(notes) != 2 {
		t.Fatalf("got %d notes, want 2", len(notes))
	}
	// 96 ticks per quarter at the default 120 BPM is 0.5s.
	if notes[0].Note != 60 || notes[0].Duration != 0.5 {
		t.Fatalf("first note = %+v", notes[0])
	}
	if notes[1].Note != 64 || notes[1].Duration != 1.0 {
		t.Fatalf("unterminated note should end at track end: %+v", notes[1])
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode(bytes.NewReader([]byte("not a midi file"))); err == nil {
		t.Fatalf("expected error")
	}
}
