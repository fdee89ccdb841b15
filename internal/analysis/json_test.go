package analysis

import (
	"errors"
	"strings"
	"testing"
)

const sample = `[
  {
    "fileId": "song",
    "stemType": "Drums",
    "frameTimes": [0, 0.5, 1],
    "features": {"rms": [0.1, 0.2, 0.3], "spectral-centroid": [100, 200, 300]},
    "transients": [{"time": 0.9, "amplitude": 0.5}, {"time": 0.2, "amplitude": 1}],
    "tracks": [{"name": "kit", "notes": [{"start": 1, "duration": 0.1, "note": 38, "velocity": 90}, {"start": 0, "duration": 0.1, "note": 36, "velocity": 120}]}],
    "tempoChanges": [{"time": 0, "bpm": 128}]
  }
]`

func TestDecode(t *testing.T) {
	got, err := Decode(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d analyses, want 1", len(got))
	}
	s := got[0]
	if s.FileID != "song" || s.Stem != StemDrums {
		t.Fatalf("identity = %s/%s", s.FileID, s.Stem)
	}
	ser, ok := s.Series("spectralCentroid")
	if !ok || ser.Values[1] != 200 {
		t.Fatalf("spectralCentroid series = %+v, %v", ser, ok)
	}
	if s.Transients[0].Time != 0.2 {
		t.Fatalf("transients not sorted: %+v", s.Transients)
	}
	if s.Tracks[0].Notes[0].Note != 36 {
		t.Fatalf("notes not sorted: %+v", s.Tracks[0].Notes)
	}
	if s.TempoChanges[0].BPM != 128 {
		t.Fatalf("tempo = %+v", s.TempoChanges)
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want error
	}{
		{"length mismatch", `[{"fileId":"a","stemType":"bass","frameTimes":[0,1],"features":{"rms":[1]}}]`, ErrLengthMismatch},
		{"unknown stem", `[{"fileId":"a","stemType":"piano"}]`, ErrUnknownStem},
	}
	for _, tc := range cases {
		_, err := Decode(strings.NewReader(tc.in))
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
	if _, err := Decode(strings.NewReader("{")); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
