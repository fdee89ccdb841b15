package trigger

import "time"

// DefaultMinInterval bounds evaluation to roughly one call per 60 Hz frame.
const DefaultMinInterval = 16 * time.Millisecond

// throttle admits calls at most once per interval of wall time.
type throttle struct {
	interval time.Duration
	last     time.Time
	armed    bool
}

func newThrottle(interval time.Duration) throttle {
	switch {
	case interval == 0:
		interval = DefaultMinInterval
	case interval < 0:
		interval = 0
	}
	return throttle{interval: interval}
}

func (t *throttle) allow(now time.Time) bool {
	if t.interval > 0 && t.armed && now.Sub(t.last) < t.interval {
		return false
	}
	t.last, t.armed = now, true
	return true
}
