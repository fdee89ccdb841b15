// Package series samples time-indexed feature arrays with last-observed-value
// semantics. Every function is pure; results depend only on the arguments.
package series

import "sort"

// Index returns the largest i with frameTimes[i] <= t, or -1 when t precedes
// the first frame (or frameTimes is empty). O(log n).
func Index(frameTimes []float64, t float64) int {
	assertSorted(frameTimes)
	return sort.Search(len(frameTimes), func(i int) bool { return frameTimes[i] > t }) - 1
}

// Sample returns values[i] for the largest i with frameTimes[i] <= t.
// Before the first frame it returns values[0]; past the last frame it returns
// the last value. Empty input yields def. Values are never interpolated.
func Sample(frameTimes, values []float64, t, def float64) float64 {
	n := min(len(frameTimes), len(values))
	if n == 0 {
		return def
	}
	i := Index(frameTimes[:n], t)
	if i < 0 {
		return values[0]
	}
	return values[i]
}

// Latest returns the index of the last item whose time is <= t, or -1.
// items must be sorted ascending by time.
func Latest[T any](items []T, t float64, time func(T) float64) int {
	return sort.Search(len(items), func(i int) bool { return time(items[i]) > t }) - 1
}

// After returns the index of the first item whose time is > t.
func After[T any](items []T, t float64, time func(T) float64) int {
	return sort.Search(len(items), func(i int) bool { return time(items[i]) > t })
}
