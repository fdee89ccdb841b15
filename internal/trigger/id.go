package trigger

import (
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
)

// idNamespace scopes the name-based ids derived by StableID.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("stemfx:trigger"))

// StableID derives an id from a trigger's position in its definition list
// and its definition. The same definitions always yield the same ids.
func StableID(index int, t Trigger) string {
	def, err := json.Marshal(struct {
		LayerID   string    `json:"layerId"`
		Condition Condition `json:"condition"`
		Effect    Effect    `json:"effect"`
		Cooldown  float64   `json:"cooldownSeconds"`
	}{t.LayerID, t.Condition, t.Effect, t.Cooldown})
	if err != nil {
		// Only non-finite floats fail to marshal; fall back to the position.
		def = nil
	}
	name := append([]byte(strconv.Itoa(index)+"\x00"), def...)
	return uuid.NewSHA1(idNamespace, name).String()
}

// AssignStableIDs fills empty ids in place with StableID.
func AssignStableIDs(triggers []Trigger) {
	for i := range triggers {
		if triggers[i].ID == "" {
			triggers[i].ID = StableID(i, triggers[i])
		}
	}
}
