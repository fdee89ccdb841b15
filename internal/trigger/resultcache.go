package trigger

import (
	"maps"
	"time"
)

// DefaultResultTTL is how long a window's events may be replayed.
const DefaultResultTTL = 5 * time.Second

type windowKey struct{ cur, prev float64 }

type cachedResult struct {
	events []Event
	stored time.Time
}

// resultCache remembers the events of already evaluated windows. A replay
// does not touch cooldown state.
type resultCache struct {
	ttl     time.Duration
	entries map[windowKey]cachedResult
}

func newResultCache(ttl time.Duration) *resultCache {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &resultCache{ttl: ttl, entries: make(map[windowKey]cachedResult)}
}

func (c *resultCache) get(cur, prev float64, now time.Time) ([]Event, bool) {
	k := windowKey{cur, prev}
	r, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	if now.Sub(r.stored) >= c.ttl {
		delete(c.entries, k)
		return nil, false
	}
	return cloneEvents(r.events), true
}

func (c *resultCache) put(cur, prev float64, events []Event, now time.Time) {
	c.prune(now)
	c.entries[windowKey{cur, prev}] = cachedResult{events: cloneEvents(events), stored: now}
}

// prune drops expired entries so a long session does not grow without bound.
func (c *resultCache) prune(now time.Time) {
	for k, r := range c.entries {
		if now.Sub(r.stored) >= c.ttl {
			delete(c.entries, k)
		}
	}
}

func (c *resultCache) clear() { clear(c.entries) }

func cloneEvents(events []Event) []Event {
	if events == nil {
		return nil
	}
	out := make([]Event, len(events))
	for i, ev := range events {
		ev.Effect.Params = maps.Clone(ev.Effect.Params)
		out[i] = ev
	}
	return out
}
