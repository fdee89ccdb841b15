package audio

import (
	"math"
	"sort"

	"github.com/cbegin/stemfx-go/internal/analysis"
)

const (
	clickSeconds   = 0.06
	clickDecay     = 0.012
	clickFrequency = 1000.0
	clickGain      = 0.5
)

type click struct {
	start int64
	amp   float64
	freq  float64
}

// ClickTrack renders a short decaying sine blip at every transient, so the
// preview can be heard in sync with what it shows.
type ClickTrack struct {
	sampleRate float64
	clicks     []click
	blip       int64
	length     int64
	pos        int64
	first      int
	limit      *limiter
}

// NewClickTrack renders transients at sampleRate. The track lasts until
// duration seconds or the end of the last click, whichever is later.
func NewClickTrack(sampleRate int, transients []analysis.Transient, duration float64) *ClickTrack {
	sr := float64(sampleRate)
	c := &ClickTrack{
		sampleRate: sr,
		blip:       int64(clickSeconds * sr),
		limit:      newLimiter(sampleRate, -3, 8, 0.5, 40),
	}
	for _, tr := range transients {
		if tr.Time < 0 {
			continue
		}
		f := tr.Frequency
		if f < 200 || f > 4000 {
			f = clickFrequency
		}
		c.clicks = append(c.clicks, click{start: int64(math.Round(tr.Time * sr)), amp: tr.Amplitude, freq: f})
	}
	sort.SliceStable(c.clicks, func(i, j int) bool { return c.clicks[i].start < c.clicks[j].start })
	c.length = int64(math.Ceil(duration * sr))
	if n := len(c.clicks); n > 0 {
		c.length = max(c.length, c.clicks[n-1].start+c.blip)
	}
	return c
}

func (c *ClickTrack) Process(dst []float32) {
	for i := 0; i+1 < len(dst); i += 2 {
		v := float32(max(-1, min(1, c.limit.process(c.sampleAt(c.pos)))))
		dst[i], dst[i+1] = v, v
		c.pos++
	}
}

func (c *ClickTrack) sampleAt(f int64) float64 {
	for c.first < len(c.clicks) && c.clicks[c.first].start+c.blip <= f {
		c.first++
	}
	sum := 0.0
	for k := c.first; k < len(c.clicks) && c.clicks[k].start <= f; k++ {
		cl := c.clicks[k]
		dt := float64(f-cl.start) / c.sampleRate
		sum += clickGain * cl.amp * math.Exp(-dt/clickDecay) * math.Sin(2*math.Pi*cl.freq*dt)
	}
	return sum
}

func (c *ClickTrack) Finished() bool { return c.pos >= c.length }

func (c *ClickTrack) SeekFrame(frame int64) {
	c.pos = max(frame, 0)
	c.limit.reset()
	c.first = sort.Search(len(c.clicks), func(i int) bool { return c.clicks[i].start+c.blip > c.pos })
}

// Duration reports the track length in seconds.
func (c *ClickTrack) Duration() float64 { return float64(c.length) / c.sampleRate }
