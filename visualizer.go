// Package stemfx drives visual effect parameters and discrete effect
// triggers from pre-computed multi-stem audio analysis.
//
// Parameter values are pure functions of (analyses, time) and can be
// computed for any frame in any order. Triggers carry cooldown state and are
// evaluated over consecutive windows (prevTime, time].
package stemfx

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cbegin/stemfx-go/internal/analysis"
	"github.com/cbegin/stemfx-go/internal/correlate"
	"github.com/cbegin/stemfx-go/internal/envelope"
	"github.com/cbegin/stemfx-go/internal/feature"
	"github.com/cbegin/stemfx-go/internal/mapping"
	"github.com/cbegin/stemfx-go/internal/trigger"
)

type Option func(*config)

type config struct {
	decay       envelope.DecayTable
	ranges      map[string]feature.Range
	defaultStem analysis.Stem
	fileID      string
	logger      *slog.Logger
	minInterval time.Duration
	resultCache bool
	resultTTL   time.Duration
	sink        trigger.Sink
	now         func() time.Time
	correlation *correlate.Options
	parallel    int
	rawFeatures bool
}

func defaultConfig() config {
	return config{
		decay:       envelope.DefaultDecayTable(),
		defaultStem: analysis.StemMaster,
		logger:      slog.Default(),
		correlation: &correlate.Options{},
	}
}

// WithDecayTable replaces the per-feature peak decay times.
func WithDecayTable(d DecayTable) Option {
	return func(cfg *config) { cfg.decay = d }
}

// WithFeatureRanges sets the raw-unit ranges used to normalize features.
func WithFeatureRanges(r map[string]FeatureRange) Option {
	return func(cfg *config) { cfg.ranges = r }
}

// WithDefaultStem sets the stem for feature ids without a stem prefix.
func WithDefaultStem(s Stem) Option {
	return func(cfg *config) { cfg.defaultStem = s }
}

// WithFileID selects which file's analyses features are read from.
func WithFileID(id string) Option {
	return func(cfg *config) { cfg.fileID = id }
}

func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithThrottle sets the minimum wall time between trigger evaluations.
// Negative disables throttling.
func WithThrottle(d time.Duration) Option {
	return func(cfg *config) { cfg.minInterval = d }
}

// WithResultCache replays the events of an already evaluated window for
// ttl instead of evaluating it again.
func WithResultCache(ttl time.Duration) Option {
	return func(cfg *config) {
		cfg.resultCache = true
		cfg.resultTTL = ttl
	}
}

// WithEventSink receives every trigger event in addition to Watch.
func WithEventSink(s Sink) Option {
	return func(cfg *config) { cfg.sink = s }
}

// WithClock replaces the wall clock used by the throttle and caches.
func WithClock(now func() time.Time) Option {
	return func(cfg *config) { cfg.now = now }
}

// WithCorrelationCache configures the bucketed tempo and pitch-class cache.
func WithCorrelationCache(opts CorrelationOptions) Option {
	return func(cfg *config) { cfg.correlation = &opts }
}

// WithoutCorrelationCache makes every trigger window scan the analyses.
func WithoutCorrelationCache() Option {
	return func(cfg *config) { cfg.correlation = nil }
}

// WithParallelThreshold sets the condition group size above which triggers
// are evaluated concurrently.
func WithParallelThreshold(n int) Option {
	return func(cfg *config) { cfg.parallel = n }
}

// WithRawFeatureValues feeds mappings raw feature units instead of values
// normalized to [0,1].
func WithRawFeatureValues() Option {
	return func(cfg *config) { cfg.rawFeatures = true }
}

// ParameterSink is the renderer side of parameter updates.
type ParameterSink interface {
	UpdateParameter(layerID, param string, value float64)
}

// Frame is everything produced for one rendered instant.
type Frame struct {
	Time    float64  `json:"time"`
	Chord   string   `json:"chord"`
	Updates []Update `json:"updates"`
	Events  []Event  `json:"events,omitempty"`
}

// Visualizer combines the parameter mapper and the trigger engine over one
// set of analyses. It is safe for concurrent use.
type Visualizer struct {
	mu       sync.RWMutex
	analyses []analysis.StemAnalysis
	mappings mapping.Mappings
	bases    mapping.Bases

	cfg      config
	features *feature.Accessor
	corr     *correlate.Cache
	engine   *trigger.Engine

	watch     *trigger.ChanSink
	eventChMu sync.Mutex
}

// New builds a Visualizer over analyses, which are treated as read-only.
func New(analyses []StemAnalysis, opts ...Option) *Visualizer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	v := &Visualizer{cfg: cfg}
	v.features = feature.New(feature.Options{
		Decay:       cfg.decay,
		Ranges:      cfg.ranges,
		DefaultStem: cfg.defaultStem,
		Logger:      cfg.logger,
	})
	if cfg.correlation != nil {
		co := *cfg.correlation
		if co.Now == nil {
			co.Now = cfg.now
		}
		if co.Logger == nil {
			co.Logger = cfg.logger
		}
		v.corr = correlate.New(co)
	}
	v.engine = trigger.NewEngine(trigger.Options{
		MinInterval:       cfg.minInterval,
		ResultCache:       cfg.resultCache,
		ResultTTL:         cfg.resultTTL,
		ParallelThreshold: cfg.parallel,
		Sink:              trigger.SinkFunc(v.dispatch),
		Correlation:       v.corr,
		Now:               cfg.now,
		Logger:            cfg.logger,
	})
	v.Load(analyses)
	return v
}

// Load replaces the analyses. Cooldowns are kept.
func (v *Visualizer) Load(analyses []StemAnalysis) {
	v.mu.Lock()
	v.analyses = analyses
	v.mu.Unlock()
	v.engine.Load(analyses)
}

func (v *Visualizer) Analyses() []StemAnalysis {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.analyses
}

// SetMappings replaces the parameter mappings and base values.
func (v *Visualizer) SetMappings(m Mappings, bases Bases) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mappings = m
	v.bases = bases
}

func (v *Visualizer) AddTrigger(t Trigger) Handle              { return v.engine.Add(t) }
func (v *Visualizer) RemoveTrigger(h Handle) bool              { return v.engine.Remove(h) }
func (v *Visualizer) SetTriggerEnabled(h Handle, on bool) bool { return v.engine.SetEnabled(h, on) }
func (v *Visualizer) Triggers() []Trigger                      { return v.engine.Triggers() }

// ResetCooldowns forgets trigger history, e.g. after seeking.
func (v *Visualizer) ResetCooldowns() { v.engine.ResetCooldowns() }

// FeatureValue samples featureID at t in raw units.
func (v *Visualizer) FeatureValue(featureID string, t float64) float64 {
	return v.features.Value(v.Analyses(), v.cfg.fileID, featureID, t)
}

// NormalizedFeature samples featureID at t mapped to [0,1].
func (v *Visualizer) NormalizedFeature(featureID string, t float64) float64 {
	return v.features.Normalized(v.Analyses(), v.cfg.fileID, featureID, t)
}

// Parameters computes every mapped parameter at t. It depends only on the
// analyses, the mappings and t.
func (v *Visualizer) Parameters(t float64) []Update {
	v.mu.RLock()
	analyses, m, bases := v.analyses, v.mappings, v.bases
	v.mu.RUnlock()
	sample := func(featureID string) float64 {
		if v.cfg.rawFeatures {
			return v.features.Value(analyses, v.cfg.fileID, featureID, t)
		}
		return v.features.Normalized(analyses, v.cfg.fileID, featureID, t)
	}
	return mapping.Apply(m, bases, sample)
}

// Evaluate produces the frame at t, firing triggers over (prev, t]. When the
// trigger engine is throttled the frame still carries parameter updates and
// the error is ErrThrottled.
func (v *Visualizer) Evaluate(t, prev float64) (Frame, error) {
	f := Frame{Time: t, Chord: v.Chord(t).String(), Updates: v.Parameters(t)}
	events, err := v.engine.Evaluate(t, prev)
	f.Events = events
	return f, err
}

// Chord estimates the chord sounding at t from the analyses' chroma.
func (v *Visualizer) Chord(t float64) Chord {
	if v.corr != nil {
		return v.corr.Chord(t)
	}
	return correlate.ChordAt(v.Analyses(), t)
}

// ActiveNotes returns the notes of every analysis sounding at t.
func (v *Visualizer) ActiveNotes(t float64) []NoteEvent {
	if v.corr != nil {
		return v.corr.ActiveNotes(t)
	}
	return analysis.ActiveNotes(v.Analyses(), t)
}

// Publish sends updates to the renderer.
func (v *Visualizer) Publish(sink ParameterSink, updates []Update) {
	for _, u := range updates {
		sink.UpdateParameter(u.LayerID, u.Param, u.Value)
	}
}

// Watch returns a channel that receives every trigger event. The channel is
// buffered (cap 64) and events are dropped when it is full. Only the most
// recent Watch channel receives events.
func (v *Visualizer) Watch() <-chan Event {
	sink := trigger.NewChanSink(64)
	v.eventChMu.Lock()
	v.watch = sink
	v.eventChMu.Unlock()
	return sink.C
}

// WatchDropped reports how many events the current Watch channel dropped
// because it was full.
func (v *Visualizer) WatchDropped() uint64 {
	v.eventChMu.Lock()
	defer v.eventChMu.Unlock()
	if v.watch == nil {
		return 0
	}
	return v.watch.Dropped()
}

func (v *Visualizer) dispatch(ev Event) {
	if v.cfg.sink != nil {
		v.cfg.sink.Emit(ev)
	}
	v.eventChMu.Lock()
	sink := v.watch
	v.eventChMu.Unlock()
	if sink != nil {
		sink.Emit(ev)
	}
}

// Fallbacks reports how many feature lookups used another file's analysis
// of the same stem.
func (v *Visualizer) Fallbacks() int64 { return v.features.Fallbacks() }

// Stats reports trigger engine counters.
func (v *Visualizer) Stats() TriggerStats { return v.engine.Stats() }

// CacheStats reports correlation cache counters; zero without a cache.
func (v *Visualizer) CacheStats() CorrelationStats {
	if v.corr == nil {
		return CorrelationStats{}
	}
	return v.corr.Stats()
}
