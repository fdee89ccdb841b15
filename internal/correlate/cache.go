// Package correlate memoizes per-time-window derived analysis (active
// notes, tempo, chord) in coarse time buckets. Every answer is computed
// exactly at the query time from the bucket's contents, so the cache changes
// speed only, never results.
package correlate

import (
	"container/list"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cbegin/stemfx-go/internal/analysis"
	"github.com/cbegin/stemfx-go/internal/series"
)

const (
	DefaultBucketSize = 0.25
	DefaultTTL        = 30 * time.Second
	DefaultCapacity   = 512
)

// bucketSlack widens every bucket so queries that round onto a neighbouring
// bucket still see every event they need.
const bucketSlack = 1e-6

type Options struct {
	BucketSize float64       // seconds; <= 0 uses DefaultBucketSize
	TTL        time.Duration // <= 0 uses DefaultTTL
	Capacity   int           // <= 0 uses DefaultCapacity
	Now        func() time.Time
	Logger     *slog.Logger
}

type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
}

// entry is the derived analysis covering [lo, hi).
type entry struct {
	bucket   int64
	lo, hi   float64
	notes    []analysis.IndexedNote
	tempo    []analysis.TempoChange
	chroma   []analysis.ChromaEvent
	computed time.Time
	src      *data
}

// data is the immutable source an entry is derived from. Load swaps it.
type data struct {
	notes  analysis.NoteIndex
	tempo  []analysis.TempoChange
	chroma []analysis.ChromaEvent
}

// Cache is safe for concurrent use.
type Cache struct {
	bucketSize float64
	ttl        time.Duration
	capacity   int
	now        func() time.Time
	log        *slog.Logger

	mu      sync.Mutex
	src     *data
	entries map[int64]*list.Element
	lru     *list.List
	stats   Stats
	group   singleflight.Group
}

func New(opts Options) *Cache {
	c := &Cache{
		bucketSize: opts.BucketSize,
		ttl:        opts.TTL,
		capacity:   opts.Capacity,
		now:        opts.Now,
		log:        opts.Logger,
		src:        &data{},
		entries:    make(map[int64]*list.Element),
		lru:        list.New(),
	}
	if c.bucketSize <= 0 {
		c.bucketSize = DefaultBucketSize
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.capacity <= 0 {
		c.capacity = DefaultCapacity
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Load replaces the analyses the cache derives from and drops every entry.
func (c *Cache) Load(analyses []analysis.StemAnalysis) {
	src := &data{
		notes:  analysis.NewNoteIndex(analyses),
		tempo:  analysis.MergeTempo(analyses),
		chroma: analysis.MergeChroma(analyses),
	}
	c.mu.Lock()
	c.src = src
	c.clearLocked()
	c.mu.Unlock()
	c.log.Debug("correlation cache loaded", "notes", len(src.notes.Notes), "tempoChanges", len(src.tempo))
}

// Reset drops every entry and zeroes the statistics.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.clearLocked()
	c.stats = Stats{}
	c.mu.Unlock()
	c.log.Debug("correlation cache reset")
}

func (c *Cache) clearLocked() {
	c.entries = make(map[int64]*list.Element)
	c.lru.Init()
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.lru.Len()
	return s
}

// ActiveNotes returns the notes sounding at t in scan order.
func (c *Cache) ActiveNotes(t float64) []analysis.NoteEvent {
	e := c.entry(t)
	var out []analysis.NoteEvent
	for _, n := range e.notes {
		if n.ActiveAt(t) {
			out = append(out, n.NoteEvent)
		}
	}
	return out
}

// PitchClasses returns the set of pitch classes sounding at t.
func (c *Cache) PitchClasses(t float64) analysis.PitchSet {
	e := c.entry(t)
	var set analysis.PitchSet
	for _, n := range e.notes {
		if n.ActiveAt(t) {
			set = set.Add(n.Note)
		}
	}
	return set
}

// Tempo returns the BPM in force at t, analysis.DefaultBPM before any change.
func (c *Cache) Tempo(t float64) float64 {
	return analysis.TempoAt(c.entry(t).tempo, t, analysis.DefaultBPM)
}

// Chord classifies the latest chroma snapshot at or before t.
func (c *Cache) Chord(t float64) Chord {
	e := c.entry(t)
	i := series.Latest(e.chroma, t, chromaTime)
	if i < 0 {
		return NoChord
	}
	return Classify(e.chroma[i].Chroma)
}

func (c *Cache) bucketOf(t float64) int64 {
	return int64(math.Floor(t / c.bucketSize))
}

func (c *Cache) entry(t float64) *entry {
	b := c.bucketOf(t)
	now := c.now()

	c.mu.Lock()
	if el, ok := c.entries[b]; ok {
		e := el.Value.(*entry)
		if now.Sub(e.computed) < c.ttl {
			c.lru.MoveToFront(el)
			c.stats.Hits++
			c.mu.Unlock()
			return e
		}
		c.removeLocked(el)
	}
	c.stats.Misses++
	src := c.src
	c.mu.Unlock()

	v, _, _ := c.group.Do(strconv.FormatInt(b, 10), func() (any, error) {
		e := c.build(src, b, now)
		c.mu.Lock()
		// A Load during the build makes e stale; hand it to this caller only.
		if c.src == src {
			c.insertLocked(e)
		}
		c.mu.Unlock()
		return e, nil
	})
	e := v.(*entry)
	if e.src != src {
		// The flight was started against analyses that have since been replaced.
		return c.build(src, b, now)
	}
	return e
}

func (c *Cache) build(src *data, b int64, now time.Time) *entry {
	lo := float64(b) * c.bucketSize
	hi := float64(b+1) * c.bucketSize
	wlo, whi := lo-bucketSlack, hi+bucketSlack
	return &entry{
		bucket:   b,
		lo:       lo,
		hi:       hi,
		notes:    src.notes.Overlapping(wlo, whi),
		tempo:    window(src.tempo, wlo, whi, tempoTime),
		chroma:   window(src.chroma, wlo, whi, chromaTime),
		computed: now,
		src:      src,
	}
}

// window returns the contiguous run of sorted items that can answer a
// latest-at-or-before query for any t in [lo, hi): the last item at or before
// lo followed by every item before hi.
func window[T any](items []T, lo, hi float64, time func(T) float64) []T {
	start := series.Latest(items, lo, time)
	if start < 0 {
		start = 0
	}
	end := series.After(items, hi, time)
	if end < start {
		end = start
	}
	return items[start:end]
}

func (c *Cache) insertLocked(e *entry) {
	if el, ok := c.entries[e.bucket]; ok {
		c.removeLocked(el)
	}
	c.entries[e.bucket] = c.lru.PushFront(e)
	for c.lru.Len() > c.capacity {
		c.removeLocked(c.lru.Back())
		c.stats.Evictions++
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	delete(c.entries, el.Value.(*entry).bucket)
	c.lru.Remove(el)
}

func tempoTime(tc analysis.TempoChange) float64 { return tc.Time }
func chromaTime(ev analysis.ChromaEvent) float64 { return ev.Time }
