package audio

import (
	"math"
	"testing"
)

func TestLimiterPassesQuietSignal(t *testing.T) {
	l := newLimiter(1000, -3, 8, 0.5, 40)
	for i := range 200 {
		v := 0.3 * math.Sin(float64(i))
		if got := l.process(v); got != v {
			t.Fatalf("sample %d: got %v, want unchanged %v", i, got, v)
		}
	}
}

func TestLimiterReducesSustainedPeaks(t *testing.T) {
	l := newLimiter(1000, -3, 8, 0.5, 40)
	var last float64
	for range 500 {
		last = l.process(2)
	}
	if last >= 2 || last <= l.threshold {
		t.Fatalf("limited level = %v, want between threshold %v and input 2", last, l.threshold)
	}
	l.reset()
	if l.env != 0 {
		t.Fatalf("reset left envelope at %v", l.env)
	}
}
