package trigger

import (
	"maps"
	"math"
)

// Kind names a condition variant.
type Kind string

const (
	KindNoteOn            Kind = "noteOn"
	KindVelocityThreshold Kind = "velocityThreshold"
	KindBeat              Kind = "beat"
	KindChordChange       Kind = "chordChange"
)

// kinds is the fixed group evaluation order.
var kinds = [...]Kind{KindNoteOn, KindVelocityThreshold, KindBeat, KindChordChange}

func (k Kind) valid() bool {
	for _, v := range kinds {
		if k == v {
			return true
		}
	}
	return false
}

// Condition is a tagged union; only the fields of Kind are consulted.
//
//	noteOn             Note, Channel (optional filters)
//	velocityThreshold  Note, Channel, Threshold
//	beat               Division (<= 0 means 1)
//	chordChange        Tolerance
type Condition struct {
	Kind      Kind    `json:"type"`
	Note      *int    `json:"note,omitempty"`
	Channel   *int    `json:"channel,omitempty"`
	Threshold int     `json:"threshold,omitempty"`
	Division  float64 `json:"division,omitempty"`
	Tolerance float64 `json:"tolerance,omitempty"`
}

func NoteOn(note, channel *int) Condition {
	return Condition{Kind: KindNoteOn, Note: note, Channel: channel}
}

func VelocityThreshold(note, channel *int, threshold int) Condition {
	return Condition{Kind: KindVelocityThreshold, Note: note, Channel: channel, Threshold: threshold}
}

func Beat(division float64) Condition {
	return Condition{Kind: KindBeat, Division: division}
}

func ChordChange(tolerance float64) Condition {
	return Condition{Kind: KindChordChange, Tolerance: tolerance}
}

// Int returns a pointer to v, for optional condition filters.
func Int(v int) *int { return &v }

// Match is a satisfied condition. Velocity is set for note conditions.
type Match struct {
	Velocity    int
	HasVelocity bool
}

// Ratio is velocity/127 clamped to [0,1], or 1 without a velocity.
func (m Match) Ratio() float64 {
	if !m.HasVelocity {
		return 1
	}
	return math.Min(1, math.Max(0, float64(m.Velocity)/127))
}

// Effect is an immutable template for a visual effect.
type Effect struct {
	Kind      string             `json:"type"`
	Duration  float64            `json:"duration"`
	Intensity float64            `json:"intensity"`
	Direction string             `json:"direction,omitempty"`
	Easing    string             `json:"easing,omitempty"`
	Params    map[string]float64 `json:"params,omitempty"`
}

// Scaled derives the effect emitted for m: intensity scales by 0.5+0.5r and
// duration by 0.8+0.4r. The receiver is not modified.
func (e Effect) Scaled(m Match) Effect {
	r := m.Ratio()
	out := e
	// Conversions round each product so no fused multiply-add is emitted.
	out.Intensity = e.Intensity * (0.5 + float64(0.5*r))
	out.Duration = e.Duration * (0.8 + float64(0.4*r))
	out.Params = maps.Clone(e.Params)
	return out
}

// NeverTriggered is the LastTriggered value of a trigger that has not fired.
var NeverTriggered = math.Inf(-1)

// Trigger is a condition to effect rule.
type Trigger struct {
	ID        string    `json:"id"`
	LayerID   string    `json:"layerId"`
	Enabled   bool      `json:"enabled"`
	Condition Condition `json:"condition"`
	Effect    Effect    `json:"effect"`
	Cooldown  float64   `json:"cooldownSeconds"`

	// LastTriggered is owned by the Engine once the trigger is added.
	LastTriggered float64 `json:"-"`
}

func (t *Trigger) cooledDown(now float64) bool {
	return now-t.LastTriggered >= t.Cooldown
}

// Handle addresses a trigger inside an Engine.
type Handle int

// Event is a trigger firing.
type Event struct {
	Handle    Handle
	TriggerID string
	LayerID   string
	Time      float64
	Effect    Effect
}
