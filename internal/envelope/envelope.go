// Package envelope reconstructs percussive peak envelopes from sparse
// transient events. Every value is a pure function of the transient list
// and the query time.
package envelope

import (
	"strings"

	"github.com/cbegin/stemfx-go/internal/analysis"
	"github.com/cbegin/stemfx-go/internal/series"
)

// DefaultDecay applies to feature ids missing from a DecayTable.
const DefaultDecay = 0.5

// DecayTable maps a feature id such as "drums-peaks" to a linear decay time
// in seconds. The zero value resolves every id to DefaultDecay.
type DecayTable struct {
	decay map[string]float64
}

// NewDecayTable copies m. Keys are matched case-insensitively.
func NewDecayTable(m map[string]float64) DecayTable {
	d := make(map[string]float64, len(m))
	for k, v := range m {
		d[normalizeID(k)] = v
	}
	return DecayTable{decay: d}
}

// DefaultDecayTable gives drums the fastest decay and bass the slowest.
func DefaultDecayTable() DecayTable {
	return NewDecayTable(map[string]float64{
		"drums-peaks":  0.15,
		"bass-peaks":   0.4,
		"vocals-peaks": 0.3,
		"other-peaks":  0.35,
		"master-peaks": 0.25,
		"peaks":        0.25,
	})
}

// Lookup returns the decay time for featureID.
func (d DecayTable) Lookup(featureID string) float64 {
	if v, ok := d.decay[normalizeID(featureID)]; ok {
		return v
	}
	return DefaultDecay
}

// With returns a copy of d with featureID set to seconds.
func (d DecayTable) With(featureID string, seconds float64) DecayTable {
	m := make(map[string]float64, len(d.decay)+1)
	for k, v := range d.decay {
		m[k] = v
	}
	m[normalizeID(featureID)] = seconds
	return DecayTable{decay: m}
}

// Peak evaluates the linear decay envelope of the latest transient at or
// before t. It is 0 before the first transient and once decay has elapsed.
func Peak(transients []analysis.Transient, t, decay float64) float64 {
	if decay <= 0 {
		return 0
	}
	i := series.Latest(transients, t, transientTime)
	if i < 0 {
		return 0
	}
	tr := transients[i]
	dt := t - tr.Time
	if dt < 0 || dt >= decay {
		return 0
	}
	return tr.Amplitude * (1 - dt/decay)
}

// Reconstructor binds a DecayTable so callers can evaluate by feature id.
type Reconstructor struct {
	Decay DecayTable
}

func NewReconstructor(decay DecayTable) Reconstructor {
	return Reconstructor{Decay: decay}
}

// Peak evaluates the envelope with the decay configured for featureID.
func (r Reconstructor) Peak(transients []analysis.Transient, featureID string, t float64) float64 {
	return Peak(transients, t, r.Decay.Lookup(featureID))
}

func transientTime(tr analysis.Transient) float64 { return tr.Time }

func normalizeID(id string) string { return strings.ToLower(id) }
