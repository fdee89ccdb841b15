package audio

import "math"

// limiter is a feed-forward envelope limiter. Dense transients make clicks
// overlap; the limiter keeps their sum under threshold without the hard
// clipping a plain clamp would produce.
type limiter struct {
	threshold float64
	ratio     float64
	attack    float64 // coefficient
	release   float64 // coefficient
	env       float64
}

// newLimiter builds a limiter; thresholdDB is typically slightly below 0.
func newLimiter(sampleRate int, thresholdDB, ratio, attackMs, releaseMs float64) *limiter {
	sr := float64(sampleRate)
	return &limiter{
		threshold: math.Pow(10, thresholdDB/20),
		ratio:     ratio,
		attack:    1 - math.Exp(-1/(attackMs*sr/1000)),
		release:   1 - math.Exp(-1/(releaseMs*sr/1000)),
	}
}

func (l *limiter) process(v float64) float64 {
	a := math.Abs(v)
	if a > l.env {
		l.env += l.attack * (a - l.env)
	} else {
		l.env += l.release * (a - l.env)
	}
	if l.env <= l.threshold || l.threshold <= 0 {
		return v
	}
	return v * math.Pow(l.env/l.threshold, 1/l.ratio-1)
}

func (l *limiter) reset() { l.env = 0 }
