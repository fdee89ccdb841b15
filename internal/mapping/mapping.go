// Package mapping turns sampled feature values into per-frame parameter
// values for the renderer.
package mapping

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// KeySep separates the layer id from the parameter name in a key.
const KeySep = ":"

// Knob maps a UI modulation amount in [0,1] to a signed multiplier in
// [-0.5,0.5].
func Knob(amount float64) float64 {
	k := float64(amount*2) - 1
	return min(0.5, max(-0.5, k))
}

// ParamScale is 1 for normalized parameters and 100 for everything else.
func ParamScale(param string) float64 {
	switch strings.ToLower(param) {
	case "opacity", "scale", "radius":
		return 1
	}
	return 100
}

// Map computes clamp(base + raw*Knob(amount)*scale, 0, scale).
func Map(base, raw, amount, scale float64) float64 {
	v := base + float64(float64(raw*Knob(amount))*scale)
	return min(scale, max(0, v))
}

// FormatKey joins a layer id and parameter name. A ':' or '\\' inside
// either part is escaped with a backslash so ParseKey recovers both exactly.
func FormatKey(layerID, param string) string {
	return keyEscaper.Replace(layerID) + KeySep + keyEscaper.Replace(param)
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, KeySep, `\`+KeySep)

// ParseKey splits key at its last unescaped separator and unescapes both
// parts. Unescaped separators earlier in the key stay in the layer id.
func ParseKey(key string) (layerID, param string, err error) {
	sep := -1
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '\\':
			i++
		case KeySep[0]:
			sep = i
		}
	}
	if sep <= 0 || sep == len(key)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	return unescapeKey(key[:sep]), unescapeKey(key[sep+1:]), nil
}

func unescapeKey(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Modulation binds a parameter to a feature.
type Modulation struct {
	FeatureID string  `json:"featureId"`
	Amount    float64 `json:"modulationAmount"`
}

// Mappings is keyed by FormatKey(layerID, param).
type Mappings map[string]Modulation

// Bases holds base parameter values per layer.
type Bases map[string]map[string]float64

type Update struct {
	LayerID string
	Param   string
	Value   float64
}

// Apply evaluates every mapping. sample returns the raw feature value for a
// feature id. Malformed keys are skipped and a missing base counts as 0.
// Updates are sorted by layer then parameter.
func Apply(m Mappings, bases Bases, sample func(featureID string) float64) []Update {
	out := make([]Update, 0, len(m))
	for key, mod := range m {
		layer, param, err := ParseKey(key)
		if err != nil {
			continue
		}
		base := bases[layer][param]
		out = append(out, Update{
			LayerID: layer,
			Param:   param,
			Value:   Map(base, sample(mod.FeatureID), mod.Amount, ParamScale(param)),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LayerID != out[j].LayerID {
			return out[i].LayerID < out[j].LayerID
		}
		return out[i].Param < out[j].Param
	})
	return out
}

// Config is the JSON form of a mapping setup.
type Config struct {
	Mappings Mappings `json:"mappings"`
	Bases    Bases    `json:"bases"`
}

func Decode(r io.Reader) (Config, error) {
	var c Config
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return Config{}, fmt.Errorf("mapping: decode: %w", err)
	}
	return c, nil
}

func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return Decode(f)
}
