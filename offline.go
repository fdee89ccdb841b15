package stemfx

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"runtime"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/cbegin/stemfx-go/internal/trigger"
)

// FrameTimes returns the frame instants start, start+1/fps, ... up to and
// including end. Each time is computed from its index so no error
// accumulates across frames.
func FrameTimes(start, end, fps float64) []float64 {
	if fps <= 0 || end < start {
		return nil
	}
	n := int(math.Floor((end-start)*fps+1e-9)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)/fps
	}
	return out
}

// RenderFrames computes parameter updates for every time in parallel. The
// result for each frame is independent of all other frames.
func RenderFrames(ctx context.Context, v *Visualizer, times []float64) ([][]Update, error) {
	out := make([][]Update, len(times))
	g, ctx := errgroup.WithContext(ctx)
	workers := runtime.GOMAXPROCS(0)
	chunk := max((len(times)+workers-1)/workers, 1)
	for lo := 0; lo < len(times); lo += chunk {
		hi := min(lo+chunk, len(times))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				out[i] = v.Parameters(times[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReplayTriggers runs triggers sequentially over consecutive windows of
// times, without throttling or result caching, and returns the events of
// each frame. The first window starts one frame step before times[0].
// Triggers without an id get one derived from their definition, so events
// depend only on the inputs.
func ReplayTriggers(analyses []StemAnalysis, triggers []Trigger, times []float64) [][]Event {
	defs := slices.Clone(triggers)
	trigger.AssignStableIDs(defs)
	e := trigger.NewEngine(trigger.Options{MinInterval: -1})
	e.Load(analyses)
	for _, t := range defs {
		e.Add(t)
	}
	out := make([][]Event, len(times))
	for i, cur := range times {
		prev := previousTime(times, i)
		// Throttling is disabled so Evaluate cannot fail.
		out[i], _ = e.Evaluate(cur, prev)
	}
	return out
}

func previousTime(times []float64, i int) float64 {
	if i > 0 {
		return times[i-1]
	}
	step := 1.0 / 60
	if len(times) > 1 {
		step = times[1] - times[0]
	}
	return times[0] - step
}

// Render pre-computes trigger firings sequentially, then renders parameter
// updates in parallel, and joins both into frames.
func Render(ctx context.Context, v *Visualizer, triggers []Trigger, times []float64) ([]Frame, error) {
	events := ReplayTriggers(v.Analyses(), triggers, times)
	updates, err := RenderFrames(ctx, v, times)
	if err != nil {
		return nil, err
	}
	frames := make([]Frame, len(times))
	for i, t := range times {
		frames[i] = Frame{Time: t, Chord: v.Chord(t).String(), Updates: updates[i], Events: events[i]}
	}
	return frames, nil
}

// EncodeFrames serializes frames into a canonical little-endian byte form
// suitable for hashing.
func EncodeFrames(frames []Frame) []byte {
	var buf []byte
	putF := func(v float64) { buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v)) }
	putN := func(n int) { buf = binary.LittleEndian.AppendUint32(buf, uint32(n)) }
	putS := func(s string) {
		putN(len(s))
		buf = append(buf, s...)
	}
	for _, f := range frames {
		putF(f.Time)
		putS(f.Chord)
		putN(len(f.Updates))
		for _, u := range f.Updates {
			putS(u.LayerID)
			putS(u.Param)
			putF(u.Value)
		}
		putN(len(f.Events))
		for _, ev := range f.Events {
			putN(int(ev.Handle))
			putS(ev.TriggerID)
			putS(ev.LayerID)
			putF(ev.Time)
			putS(ev.Effect.Kind)
			putF(ev.Effect.Duration)
			putF(ev.Effect.Intensity)
			putS(ev.Effect.Direction)
			putS(ev.Effect.Easing)
			keys := make([]string, 0, len(ev.Effect.Params))
			for k := range ev.Effect.Params {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			putN(len(keys))
			for _, k := range keys {
				putS(k)
				putF(ev.Effect.Params[k])
			}
		}
	}
	return buf
}

// FrameDigest is the hex SHA-256 of EncodeFrames. Two renders of the same
// job agree on it regardless of where or in which order frames were computed.
func FrameDigest(frames []Frame) string {
	sum := sha256.Sum256(EncodeFrames(frames))
	return hex.EncodeToString(sum[:])
}
