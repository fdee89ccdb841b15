package correlate

import (
	"math"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cbegin/stemfx-go/internal/analysis"
	"github.com/cbegin/stemfx-go/internal/series"
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Chord is a triad estimate. Root is -1 when nothing was detected.
type Chord struct {
	Root  int
	Minor bool
	Score float64
}

// NoChord is returned when no chroma is available or it is silent.
var NoChord = Chord{Root: -1}

func (c Chord) String() string {
	if c.Root < 0 {
		return "N"
	}
	if c.Minor {
		return noteNames[c.Root] + "m"
	}
	return noteNames[c.Root]
}

type chordTemplate struct {
	root  int
	minor bool
	vec   []float64
}

// templates holds the 24 major and minor triads, majors first.
var templates = buildTemplates()

func buildTemplates() []chordTemplate {
	out := make([]chordTemplate, 0, 24)
	for _, minor := range []bool{false, true} {
		third := 4
		if minor {
			third = 3
		}
		for root := 0; root < 12; root++ {
			v := make([]float64, 12)
			v[root] = 1
			v[(root+third)%12] = 1
			v[(root+7)%12] = 1
			out = append(out, chordTemplate{root: root, minor: minor, vec: v})
		}
	}
	return out
}

// templateNorm is |v| for a triad template.
const templateNorm = 1.7320508075688772

// Classify scores chroma against every triad template by cosine similarity
// and returns the best match. Ties resolve to the earlier template.
func Classify(chroma [12]float64) Chord {
	c := chroma[:]
	energy := vecmath.DotProduct(c, c)
	if energy <= 0 {
		return NoChord
	}
	norm := math.Sqrt(energy) * templateNorm
	best := NoChord
	for _, tpl := range templates {
		score := vecmath.DotProduct(c, tpl.vec) / norm
		if best.Root < 0 || score > best.Score {
			best = Chord{Root: tpl.root, Minor: tpl.minor, Score: score}
		}
	}
	return best
}

// ChordAt classifies the latest chroma event at or before t across all
// analyses by scanning them. Cache.Chord gives the same answer.
func ChordAt(analyses []analysis.StemAnalysis, t float64) Chord {
	chroma := analysis.MergeChroma(analyses)
	i := series.Latest(chroma, t, chromaTime)
	if i < 0 {
		return NoChord
	}
	return Classify(chroma[i].Chroma)
}
