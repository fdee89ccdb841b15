// Package rhythm estimates a global tempo from detected transients.
package rhythm

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cbegin/stemfx-go/internal/analysis"
)

type Options struct {
	MinBPM    float64 // default 60
	MaxBPM    float64 // default 200
	FrameRate float64 // pulse train resolution in frames per second, default 100
}

func (o Options) withDefaults() Options {
	if o.MinBPM <= 0 {
		o.MinBPM = 60
	}
	if o.MaxBPM <= 0 {
		o.MaxBPM = 200
	}
	if o.FrameRate <= 0 {
		o.FrameRate = 100
	}
	return o
}

// EstimateBPM autocorrelates an amplitude-weighted onset pulse train and
// returns the tempo of the strongest period within [MinBPM, MaxBPM].
func EstimateBPM(transients []analysis.Transient, opts Options) (float64, error) {
	opts = opts.withDefaults()
	if opts.MinBPM >= opts.MaxBPM {
		return 0, fmt.Errorf("%w: %v..%v", ErrBPMRange, opts.MinBPM, opts.MaxBPM)
	}
	if len(transients) < 2 {
		return 0, ErrNoTransients
	}
	pulse := pulseTrain(transients, opts.FrameRate)
	ac, err := autocorrelate(pulse)
	if err != nil {
		return 0, err
	}

	minLag := int(math.Floor(opts.FrameRate * 60 / opts.MaxBPM))
	maxLag := int(math.Ceil(opts.FrameRate * 60 / opts.MinBPM))
	minLag = max(minLag, 1)
	maxLag = min(maxLag, len(pulse)-1)
	if minLag > maxLag {
		return 0, fmt.Errorf("%w: transients span too short for %v BPM", ErrNoTransients, opts.MinBPM)
	}
	best := minLag
	for lag := minLag + 1; lag <= maxLag; lag++ {
		if ac[lag] > ac[best] {
			best = lag
		}
	}
	lag := float64(best)
	if best > minLag && best < maxLag {
		a, b, c := ac[best-1], ac[best], ac[best+1]
		if d := a - 2*b + c; d != 0 {
			lag += 0.5 * (a - c) / d
		}
	}
	return 60 * opts.FrameRate / lag, nil
}

// pulseTrain places each transient's amplitude in its frame and scales the
// train to a peak of 1. Silent input gets unit weights.
func pulseTrain(transients []analysis.Transient, frameRate float64) []float64 {
	last := 0.0
	for _, tr := range transients {
		last = max(last, tr.Time)
	}
	pulse := make([]float64, int(math.Ceil(last*frameRate))+1)
	for _, tr := range transients {
		if tr.Time < 0 {
			continue
		}
		pulse[int(math.Round(tr.Time*frameRate))] += tr.Amplitude
	}
	peak := vecmath.MaxAbs(pulse)
	if peak == 0 {
		for _, tr := range transients {
			if tr.Time >= 0 {
				pulse[int(math.Round(tr.Time*frameRate))] = 1
			}
		}
		return pulse
	}
	vecmath.ScaleBlockInPlace(pulse, 1/peak)
	return pulse
}

// autocorrelate returns the linear autocorrelation of x for lags 0..len(x)-1.
func autocorrelate(x []float64) ([]float64, error) {
	n := nextPow2(2 * len(x))
	plan, err := algofft.NewPlan64(n)
	if err != nil {
		return nil, fmt.Errorf("rhythm: fft plan: %w", err)
	}
	in := make([]complex128, n)
	for i, v := range x {
		in[i] = complex(v, 0)
	}
	spec := make([]complex128, n)
	if err := plan.Forward(spec, in); err != nil {
		return nil, fmt.Errorf("rhythm: forward fft: %w", err)
	}
	re := make([]float64, n)
	im := make([]float64, n)
	for i, v := range spec {
		re[i], im[i] = real(v), imag(v)
	}
	power := make([]float64, n)
	vecmath.Power(power, re, im)
	for i, p := range power {
		in[i] = complex(p, 0)
	}
	if err := plan.Inverse(spec, in); err != nil {
		return nil, fmt.Errorf("rhythm: inverse fft: %w", err)
	}
	ac := make([]float64, len(x))
	for i := range ac {
		ac[i] = real(spec[i])
	}
	return ac, nil
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
