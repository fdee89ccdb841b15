//go:build stemfxdebug

package series

import "testing"

func TestUnsortedFrameTimesPanicInDebugBuilds(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for unsorted frame times")
		}
	}()
	Sample([]float64{0, 2, 1}, []float64{1, 2, 3}, 1.5, 0)
}
