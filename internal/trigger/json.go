package trigger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

type triggerJSON struct {
	ID        string    `json:"id"`
	LayerID   string    `json:"layerId"`
	Enabled   *bool     `json:"enabled"`
	Condition Condition `json:"condition"`
	Effect    Effect    `json:"effect"`
	Cooldown  float64   `json:"cooldownSeconds"`
}

// Decode reads a JSON array of triggers. Omitted "enabled" means enabled and
// an omitted id is derived with StableID.
func Decode(r io.Reader) ([]Trigger, error) {
	var raw []triggerJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("trigger: decode: %w", err)
	}
	out := make([]Trigger, 0, len(raw))
	for i, tj := range raw {
		if !tj.Condition.Kind.valid() {
			return nil, fmt.Errorf("trigger %d (%s): %w: %q", i, tj.ID, ErrUnknownCondition, tj.Condition.Kind)
		}
		enabled := true
		if tj.Enabled != nil {
			enabled = *tj.Enabled
		}
		out = append(out, Trigger{
			ID:            tj.ID,
			LayerID:       tj.LayerID,
			Enabled:       enabled,
			Condition:     tj.Condition,
			Effect:        tj.Effect,
			Cooldown:      tj.Cooldown,
			LastTriggered: NeverTriggered,
		})
	}
	AssignStableIDs(out)
	return out, nil
}

func LoadFile(path string) ([]Trigger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}
