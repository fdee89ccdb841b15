// Package midi converts Standard MIDI Files to and from note tracks in
// seconds.
package midi

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/stemfx-go/internal/analysis"
)

// File is the note content of a MIDI file.
type File struct {
	Tracks       []analysis.NoteTrack
	TempoChanges []analysis.TempoChange
}

func LoadFile(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer f.Close()
	return Decode(f)
}

type tickTempo struct {
	tick int64
	bpm  float64
}

// tempoMap converts absolute ticks to seconds.
type tempoMap struct {
	ppq     float64
	changes []tickTempo
}

func (m tempoMap) seconds(tick int64) float64 {
	bpm := analysis.DefaultBPM
	secs, at := 0.0, int64(0)
	for _, c := range m.changes {
		if c.tick >= tick {
			break
		}
		secs += float64(c.tick-at) / m.ppq * 60 / bpm
		at, bpm = c.tick, c.bpm
	}
	return secs + float64(tick-at)/m.ppq*60/bpm
}

type openNote struct {
	tick int64
	vel  uint8
}

// Decode reads an SMF. A note-on with velocity 0 ends a note; overlapping
// notes on the same key end first-in first-out, and notes still sounding at
// the end of their track end there.
func Decode(r io.Reader) (File, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return File{}, fmt.Errorf("midi: read: %w", err)
	}
	mt, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok || mt == 0 {
		return File{}, ErrTimeFormat
	}
	tm := tempoMap{ppq: float64(mt)}
	for _, tr := range s.Tracks {
		var abs int64
		for _, ev := range tr {
			abs += int64(ev.Delta)
			var bpm float64
			if ev.Message.GetMetaTempo(&bpm) && bpm > 0 {
				tm.changes = append(tm.changes, tickTempo{tick: abs, bpm: bpm})
			}
		}
	}
	sort.SliceStable(tm.changes, func(i, j int) bool { return tm.changes[i].tick < tm.changes[j].tick })

	var out File
	for _, c := range tm.changes {
		out.TempoChanges = append(out.TempoChanges, analysis.TempoChange{Time: tm.seconds(c.tick), BPM: c.bpm})
	}
	for i, tr := range s.Tracks {
		nt := decodeTrack(tr, tm)
		if len(nt.Notes) == 0 {
			continue
		}
		if nt.Name == "" {
			nt.Name = fmt.Sprintf("track %d", i)
		}
		out.Tracks = append(out.Tracks, nt)
	}
	return out, nil
}

func decodeTrack(tr smf.Track, tm tempoMap) analysis.NoteTrack {
	var nt analysis.NoteTrack
	open := make(map[[2]uint8][]openNote)
	emit := func(ch, key uint8, on openNote, end int64) {
		start := tm.seconds(on.tick)
		nt.Notes = append(nt.Notes, analysis.NoteEvent{
			Start:    start,
			Duration: tm.seconds(end) - start,
			Note:     int(key),
			Velocity: int(on.vel),
			Channel:  int(ch),
		})
	}
	var abs int64
	for _, ev := range tr {
		abs += int64(ev.Delta)
		msg := midi.Message(ev.Message)
		var ch, key, vel uint8
		var name string
		switch {
		case msg.GetNoteStart(&ch, &key, &vel):
			k := [2]uint8{ch, key}
			open[k] = append(open[k], openNote{tick: abs, vel: vel})
		case msg.GetNoteEnd(&ch, &key):
			k := [2]uint8{ch, key}
			if q := open[k]; len(q) > 0 {
				emit(ch, key, q[0], abs)
				open[k] = q[1:]
			}
		case ev.Message.GetMetaTrackName(&name):
			nt.Name = name
		}
	}
	keys := make([][2]uint8, 0, len(open))
	for k := range open {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, k := range keys {
		for _, on := range open[k] {
			emit(k[0], k[1], on, abs)
		}
	}
	sort.SliceStable(nt.Notes, func(i, j int) bool { return nt.Notes[i].Start < nt.Notes[j].Start })
	return nt
}

// Encode writes tracks and tempo changes as a format 1 SMF with ppq ticks
// per quarter note. Times are quantized to the tick grid of the tempo map.
func Encode(w io.Writer, f File, ppq uint16) error {
	if ppq == 0 {
		ppq = 480
	}
	changes := append([]analysis.TempoChange(nil), f.TempoChanges...)
	sort.SliceStable(changes, func(i, j int) bool { return changes[i].Time < changes[j].Time })
	toTick := func(secs float64) int64 {
		bpm, at, atTick := analysis.DefaultBPM, 0.0, 0.0
		for _, c := range changes {
			if c.Time >= secs || c.BPM <= 0 {
				break
			}
			atTick += (c.Time - at) * bpm / 60 * float64(ppq)
			at, bpm = c.Time, c.BPM
		}
		return int64(math.Round(atTick + (secs-at)*bpm/60*float64(ppq)))
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ppq)

	var conductor smf.Track
	var last int64
	for _, c := range changes {
		tick := toTick(c.Time)
		conductor.Add(uint32(tick-last), smf.MetaTempo(c.BPM))
		last = tick
	}
	conductor.Close(0)
	if err := s.Add(conductor); err != nil {
		return fmt.Errorf("midi: encode: %w", err)
	}

	type msgAt struct {
		tick int64
		off  bool
		msg  midi.Message
	}
	for _, nt := range f.Tracks {
		var msgs []msgAt
		for _, n := range nt.Notes {
			ch, key := uint8(n.Channel&0x0f), uint8(n.Note&0x7f)
			vel := uint8(min(max(n.Velocity, 1), 127))
			msgs = append(msgs,
				msgAt{tick: toTick(n.Start), msg: midi.NoteOn(ch, key, vel)},
				msgAt{tick: toTick(n.End()), off: true, msg: midi.NoteOff(ch, key)})
		}
		// Offs sort before ons at the same tick so repeated keys re-strike.
		sort.SliceStable(msgs, func(i, j int) bool {
			if msgs[i].tick != msgs[j].tick {
				return msgs[i].tick < msgs[j].tick
			}
			return msgs[i].off && !msgs[j].off
		})
		var tr smf.Track
		if nt.Name != "" {
			tr.Add(0, smf.MetaTrackSequenceName(nt.Name))
		}
		last = 0
		for _, m := range msgs {
			tr.Add(uint32(m.tick-last), m.msg)
			last = m.tick
		}
		tr.Close(0)
		if err := s.Add(tr); err != nil {
			return fmt.Errorf("midi: encode: %w", err)
		}
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("midi: encode: %w", err)
	}
	return nil
}
