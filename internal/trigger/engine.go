package trigger

import (
	"log/slog"
	"maps"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cbegin/stemfx-go/internal/analysis"
	"github.com/cbegin/stemfx-go/internal/correlate"
)

// DefaultParallelThreshold is the group size above which a condition group
// is split across goroutines.
const DefaultParallelThreshold = 64

type Options struct {
	// MinInterval is the minimum wall time between evaluations. Zero uses
	// DefaultMinInterval; negative disables throttling.
	MinInterval time.Duration
	// ResultCache enables replaying events of an already evaluated window.
	ResultCache bool
	// ResultTTL defaults to DefaultResultTTL.
	ResultTTL         time.Duration
	ParallelThreshold int
	// Sink is called with the engine locked; it must not call back into it.
	Sink Sink
	// Correlation supplies tempo and pitch-class snapshots. Nil scans the
	// analyses directly.
	Correlation *correlate.Cache
	Now         func() time.Time
	Logger      *slog.Logger
}

type Stats struct {
	Evaluations uint64
	Throttled   uint64
	CacheHits   uint64
	Fired       uint64
}

type slot struct {
	trig Trigger
	live bool
}

// Engine owns a set of triggers and their cooldown state. Triggers live in
// an arena addressed by Handle; handles are never reused.
type Engine struct {
	mu       sync.Mutex
	slots    []slot
	timeline *Timeline
	corr     *correlate.Cache
	throttle throttle
	results  *resultCache
	parallel int
	sink     Sink
	now      func() time.Time
	log      *slog.Logger
	stats    Stats
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		timeline: NewTimeline(nil),
		corr:     opts.Correlation,
		throttle: newThrottle(opts.MinInterval),
		parallel: opts.ParallelThreshold,
		sink:     opts.Sink,
		now:      opts.Now,
		log:      opts.Logger,
	}
	if opts.ResultCache {
		e.results = newResultCache(opts.ResultTTL)
	}
	if e.parallel <= 0 {
		e.parallel = DefaultParallelThreshold
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e
}

// Load indexes analyses for subsequent evaluations.
func (e *Engine) Load(analyses []analysis.StemAnalysis) {
	tl := NewTimeline(analyses)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeline = tl
	if e.corr != nil {
		e.corr.Load(analyses)
	}
	e.invalidateLocked()
	e.log.Debug("trigger timeline loaded", "onsets", len(tl.notes.Notes), "tempoChanges", len(tl.tempo))
}

// Add stores t, assigning a random id when t.ID is empty. Callers that
// replay definitions offline assign StableID first. The trigger starts with
// no firing history.
func (e *Engine) Add(t Trigger) Handle {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Effect.Params = maps.Clone(t.Effect.Params)
	t.LastTriggered = NeverTriggered
	e.mu.Lock()
	defer e.mu.Unlock()
	e.slots = append(e.slots, slot{trig: t, live: true})
	e.invalidateLocked()
	return Handle(len(e.slots) - 1)
}

// Remove reports whether h referred to a live trigger.
func (e *Engine) Remove(h Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.slotLocked(h)
	if s == nil {
		return false
	}
	*s = slot{}
	e.invalidateLocked()
	return true
}

func (e *Engine) SetEnabled(h Handle, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.slotLocked(h)
	if s == nil {
		return false
	}
	s.trig.Enabled = enabled
	e.invalidateLocked()
	return true
}

// Trigger returns a copy of the trigger at h.
func (e *Engine) Trigger(h Handle) (Trigger, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.slotLocked(h)
	if s == nil {
		return Trigger{}, false
	}
	return s.trig, true
}

// Triggers returns copies of the live triggers in handle order.
func (e *Engine) Triggers() []Trigger {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Trigger, 0, len(e.slots))
	for _, s := range e.slots {
		if s.live {
			out = append(out, s.trig)
		}
	}
	return out
}

// Handles returns the live handles in order.
func (e *Engine) Handles() []Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Handle
	for i, s := range e.slots {
		if s.live {
			out = append(out, Handle(i))
		}
	}
	return out
}

// ResetCooldowns forgets every firing, e.g. after a seek.
func (e *Engine) ResetCooldowns() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.slots {
		e.slots[i].trig.LastTriggered = NeverTriggered
	}
	e.invalidateLocked()
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Evaluate fires every enabled, cooled-down trigger whose condition holds in
// the window (prev, current]. Events are returned in handle order and sent to
// the sink. It returns ErrThrottled, changing nothing, when called again
// within the minimum interval.
func (e *Engine) Evaluate(current, prev float64) ([]Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	if !e.throttle.allow(now) {
		e.stats.Throttled++
		return nil, ErrThrottled
	}
	e.stats.Evaluations++
	if e.results != nil {
		if events, ok := e.results.get(current, prev, now); ok {
			e.stats.CacheHits++
			e.emit(events)
			return events, nil
		}
	}

	groups := make(map[Kind][]Handle, len(kinds))
	need := make(map[Kind]bool, len(kinds))
	for i := range e.slots {
		t := &e.slots[i].trig
		if !e.slots[i].live || !t.Enabled || !t.cooledDown(current) {
			continue
		}
		groups[t.Condition.Kind] = append(groups[t.Condition.Kind], Handle(i))
		need[t.Condition.Kind] = true
	}
	w := e.timeline.Window(prev, current, e.corr, need)

	fired := make([]bool, len(e.slots))
	matches := make([]Match, len(e.slots))
	for _, k := range kinds {
		e.evaluateGroup(w, groups[k], fired, matches)
	}

	var events []Event
	for i, ok := range fired {
		if !ok {
			continue
		}
		t := &e.slots[i].trig
		t.LastTriggered = current
		events = append(events, Event{
			Handle:    Handle(i),
			TriggerID: t.ID,
			LayerID:   t.LayerID,
			Time:      current,
			Effect:    t.Effect.Scaled(matches[i]),
		})
	}
	e.stats.Fired += uint64(len(events))
	if e.results != nil {
		e.results.put(current, prev, events, now)
	}
	e.emit(events)
	return events, nil
}

// evaluateGroup matches every handle of one condition group. Large groups
// are split into chunks; each chunk writes only its own handles' entries.
func (e *Engine) evaluateGroup(w *Window, group []Handle, fired []bool, matches []Match) {
	run := func(hs []Handle) {
		for _, h := range hs {
			matches[h], fired[h] = w.Match(e.slots[h].trig.Condition)
		}
	}
	if len(group) <= e.parallel {
		run(group)
		return
	}
	workers := runtime.GOMAXPROCS(0)
	chunk := max((len(group)+workers-1)/workers, e.parallel)
	var g errgroup.Group
	for lo := 0; lo < len(group); lo += chunk {
		hs := group[lo:min(lo+chunk, len(group))]
		g.Go(func() error {
			run(hs)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) emit(events []Event) {
	if e.sink == nil {
		return
	}
	for _, ev := range events {
		e.sink.Emit(ev)
	}
}

func (e *Engine) slotLocked(h Handle) *slot {
	if h < 0 || int(h) >= len(e.slots) || !e.slots[h].live {
		return nil
	}
	return &e.slots[h]
}

func (e *Engine) invalidateLocked() {
	if e.results != nil {
		e.results.clear()
	}
}
