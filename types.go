package stemfx

import (
	"github.com/cbegin/stemfx-go/internal/analysis"
	"github.com/cbegin/stemfx-go/internal/correlate"
	"github.com/cbegin/stemfx-go/internal/envelope"
	"github.com/cbegin/stemfx-go/internal/feature"
	"github.com/cbegin/stemfx-go/internal/mapping"
	"github.com/cbegin/stemfx-go/internal/trigger"
)

// Analysis data model.
type (
	Stem               = analysis.Stem
	StemAnalysis       = analysis.StemAnalysis
	Transient          = analysis.Transient
	ChromaEvent        = analysis.ChromaEvent
	NoteEvent          = analysis.NoteEvent
	NoteTrack          = analysis.NoteTrack
	TempoChange        = analysis.TempoChange
	DecayTable         = envelope.DecayTable
	FeatureRange       = feature.Range
	CorrelationOptions = correlate.Options
	Chord              = correlate.Chord
)

const (
	StemMaster = analysis.StemMaster
	StemDrums  = analysis.StemDrums
	StemBass   = analysis.StemBass
	StemVocals = analysis.StemVocals
	StemOther  = analysis.StemOther
)

// Triggers.
type (
	Trigger   = trigger.Trigger
	Condition = trigger.Condition
	Effect    = trigger.Effect
	Event     = trigger.Event
	Handle    = trigger.Handle
	Sink      = trigger.Sink
	SinkFunc  = trigger.SinkFunc

	TriggerStats     = trigger.Stats
	CorrelationStats = correlate.Stats
)

// Parameter mapping.
type (
	Mappings   = mapping.Mappings
	Bases      = mapping.Bases
	Modulation = mapping.Modulation
	Update     = mapping.Update
)

var (
	ErrThrottled    = trigger.ErrThrottled
	ErrMalformedKey = mapping.ErrMalformedKey
)

func NoteOn(note, channel *int) Condition { return trigger.NoteOn(note, channel) }

func VelocityThreshold(note, channel *int, threshold int) Condition {
	return trigger.VelocityThreshold(note, channel, threshold)
}

func Beat(division float64) Condition          { return trigger.Beat(division) }
func ChordChange(tolerance float64) Condition { return trigger.ChordChange(tolerance) }

// Int returns a pointer to v for optional note and channel filters.
func Int(v int) *int { return trigger.Int(v) }

func NewDecayTable(m map[string]float64) DecayTable { return envelope.NewDecayTable(m) }
func DefaultDecayTable() DecayTable                 { return envelope.DefaultDecayTable() }

// ParamKey formats a mapping key for a layer parameter.
func ParamKey(layerID, param string) string { return mapping.FormatKey(layerID, param) }

// ParseParamKey recovers the layer id and parameter name from a mapping key.
func ParseParamKey(key string) (layerID, param string, err error) { return mapping.ParseKey(key) }

// ParamScale is the full-scale value of a parameter: 1 for opacity, scale
// and radius, 100 otherwise.
func ParamScale(param string) float64 { return mapping.ParamScale(param) }

// AssignTriggerIDs fills empty trigger ids with ids derived from each
// trigger's position and definition, matching what Render uses.
func AssignTriggerIDs(triggers []Trigger) { trigger.AssignStableIDs(triggers) }
