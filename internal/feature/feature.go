// Package feature resolves symbolic feature ids such as "bass-rms" or
// "drums-peaks" against stem analyses and samples them at a point in time.
package feature

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cbegin/stemfx-go/internal/analysis"
	"github.com/cbegin/stemfx-go/internal/envelope"
	"github.com/cbegin/stemfx-go/internal/series"
)

// Canonical feature names understood by the accessor.
const (
	RMS              = "rms"
	Volume           = "volume"
	Loudness         = "loudness"
	SpectralCentroid = "spectralcentroid"
	SpectralRolloff  = "spectralrolloff"
	SpectralFlux     = "spectralflux"
	Bass             = "bass"
	Mid              = "mid"
	Treble           = "treble"
	Peaks            = "peaks"
)

// seriesFor lists the series consulted for each sampled feature, in order.
var seriesFor = map[string][]string{
	RMS:              {RMS},
	Volume:           {Volume, RMS},
	Loudness:         {Loudness, RMS},
	SpectralCentroid: {SpectralCentroid},
	SpectralRolloff:  {SpectralRolloff},
	SpectralFlux:     {SpectralFlux},
	Bass:             {Bass},
	Mid:              {Mid},
	Treble:           {Treble},
}

// Normalize lower-cases name and strips hyphens.
func Normalize(name string) string { return analysis.CanonicalName(name) }

// Resolve splits featureID into a stem and a feature name. The prefix before
// the first hyphen names the stem only when it is a recognized stem;
// otherwise the whole id is the feature name and defaultStem applies.
func Resolve(featureID string, defaultStem analysis.Stem) (analysis.Stem, string) {
	if i := strings.IndexByte(featureID, '-'); i >= 0 {
		if stem, ok := analysis.ParseStem(featureID[:i]); ok {
			return stem, featureID[i+1:]
		}
	}
	return defaultStem, featureID
}

// Range is the raw-unit span mapped onto [0,1] by Normalized.
type Range struct {
	Min, Max float64
}

// DefaultRanges covers the features reported in Hz; all others are 0..1.
func DefaultRanges() map[string]Range {
	return map[string]Range{
		SpectralCentroid: {0, 8000},
		SpectralRolloff:  {0, 16000},
	}
}

type Options struct {
	Decay       envelope.DecayTable
	Ranges      map[string]Range // nil uses DefaultRanges
	DefaultStem analysis.Stem    // empty uses master
	Logger      *slog.Logger     // nil uses slog.Default()
}

// Accessor samples features. It is safe for concurrent use; the only
// shared state is the fallback counter.
type Accessor struct {
	env         envelope.Reconstructor
	ranges      map[string]Range
	defaultStem analysis.Stem
	log         *slog.Logger

	fallbacks atomic.Int64
	warned    sync.Map
}

func New(opts Options) *Accessor {
	a := &Accessor{
		env:         envelope.NewReconstructor(opts.Decay),
		ranges:      DefaultRanges(),
		defaultStem: opts.DefaultStem,
		log:         opts.Logger,
	}
	if opts.Ranges != nil {
		a.ranges = make(map[string]Range, len(opts.Ranges))
		for k, r := range opts.Ranges {
			a.ranges[Normalize(k)] = r
		}
	}
	if a.defaultStem == "" {
		a.defaultStem = analysis.StemMaster
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	return a
}

// Lookup finds the analysis for (fileID, stem). When no exact match exists
// it falls back to the first analysis of that stem, counting and logging the
// fallback. It returns nil when no analysis has the stem.
func (a *Accessor) Lookup(stems []analysis.StemAnalysis, fileID string, stem analysis.Stem) *analysis.StemAnalysis {
	fallback := -1
	for i := range stems {
		if stems[i].Stem != stem {
			continue
		}
		if stems[i].FileID == fileID {
			return &stems[i]
		}
		if fallback < 0 {
			fallback = i
		}
	}
	if fallback < 0 {
		return nil
	}
	a.fallbacks.Add(1)
	key := fileID + "\x00" + string(stem)
	if _, seen := a.warned.LoadOrStore(key, struct{}{}); !seen {
		a.log.Warn("stem analysis fallback",
			"fileID", fileID, "stem", stem, "using", stems[fallback].FileID)
	}
	return &stems[fallback]
}

// Value returns the raw value of featureID at t. Unknown features and
// missing analyses yield 0.
func (a *Accessor) Value(stems []analysis.StemAnalysis, fileID, featureID string, t float64) float64 {
	stem, name := Resolve(featureID, a.defaultStem)
	s := a.Lookup(stems, fileID, stem)
	if s == nil {
		return 0
	}
	name = Normalize(name)
	if name == Peaks {
		return a.env.Peak(s.Transients, featureID, t)
	}
	for _, key := range seriesFor[name] {
		if values, ok := s.Features[key]; ok {
			return series.Sample(s.FrameTimes, values, t, 0)
		}
	}
	return 0
}

// Normalized returns Value mapped through the feature's range and clamped
// to [0,1].
func (a *Accessor) Normalized(stems []analysis.StemAnalysis, fileID, featureID string, t float64) float64 {
	v := a.Value(stems, fileID, featureID, t)
	_, name := Resolve(featureID, a.defaultStem)
	r, ok := a.ranges[Normalize(name)]
	if !ok || r.Max <= r.Min {
		return clamp01(v)
	}
	return clamp01((v - r.Min) / (r.Max - r.Min))
}

// Fallbacks reports how many lookups used the stem-only fallback.
func (a *Accessor) Fallbacks() int64 { return a.fallbacks.Load() }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
