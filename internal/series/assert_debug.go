//go:build stemfxdebug

package series

import "fmt"

func assertSorted(frameTimes []float64) {
	for i := 1; i < len(frameTimes); i++ {
		if frameTimes[i] < frameTimes[i-1] {
			panic(fmt.Sprintf("series: frame times not sorted at %d (%v < %v)", i, frameTimes[i], frameTimes[i-1]))
		}
	}
}
