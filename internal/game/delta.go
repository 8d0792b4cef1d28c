package game

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// turnDeltaSchema constrains the shape of narrator-produced state changes.
// The narrator is an untrusted text generator; anything that doesn't match
// the schema is rejected before it can touch world state. Unknown extra
// fields are tolerated and ignored.
const turnDeltaSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "location_updates": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "location_name": {"type": "string", "minLength": 1},
          "description": {"type": "string"}
        },
        "required": ["location_name"]
      }
    },
    "connection_updates": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "action": {"enum": ["CREATE", "DESTROY"]},
          "locations": {
            "type": "array",
            "items": {"type": "string", "minLength": 1},
            "minItems": 2,
            "maxItems": 2
          }
        },
        "required": ["action", "locations"]
      }
    },
    "world_flags_update": {"type": "object"},
    "player_updates": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "username": {"type": "string", "minLength": 1},
          "inventory_add": {"type": "array", "items": {"type": "string"}},
          "inventory_remove": {"type": "array", "items": {"type": "string"}},
          "status_update": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "description": {"type": "string"},
                "duration_turns": {"type": "integer", "minimum": 1},
                "is_positive": {"type": "boolean"}
              },
              "required": ["name"]
            }
          },
          "move_to_location": {"type": "string", "minLength": 1}
        },
        "required": ["username"]
      }
    }
  }
}`

var deltaSchema = jsonschema.MustCompileString("turn_delta.schema.json", turnDeltaSchema)

// TurnDeltaSchema returns the schema text, for embedding in prompts.
func TurnDeltaSchema() string {
	return turnDeltaSchema
}

type ConnAction string

const (
	ConnCreate  ConnAction = "CREATE"
	ConnDestroy ConnAction = "DESTROY"
)

// TurnDelta is the structured state-change payload extracted from a turn's
// narration.
type TurnDelta struct {
	LocationUpdates   []LocationUpdate   `json:"location_updates,omitempty"`
	ConnectionUpdates []ConnectionUpdate `json:"connection_updates,omitempty"`
	WorldFlags        map[string]any     `json:"world_flags_update,omitempty"`
	PlayerUpdates     []PlayerUpdate     `json:"player_updates,omitempty"`
}

type LocationUpdate struct {
	LocationName string  `json:"location_name"`
	Description  *string `json:"description,omitempty"`
}

type ConnectionUpdate struct {
	Action    ConnAction `json:"action"`
	Locations []string   `json:"locations"`
}

type PlayerUpdate struct {
	Username        string         `json:"username"`
	InventoryAdd    []string       `json:"inventory_add,omitempty"`
	InventoryRemove []string       `json:"inventory_remove,omitempty"`
	StatusUpdate    []StatusEffect `json:"status_update,omitempty"`
	MoveToLocation  string         `json:"move_to_location,omitempty"`
}

// Empty reports whether the delta carries no changes at all.
func (d *TurnDelta) Empty() bool {
	return len(d.LocationUpdates) == 0 &&
		len(d.ConnectionUpdates) == 0 &&
		len(d.WorldFlags) == 0 &&
		len(d.PlayerUpdates) == 0
}

// ParseTurnDelta validates raw narrator JSON against the delta schema and
// decodes it.
func ParseTurnDelta(raw []byte) (*TurnDelta, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decoding state changes: %w", err)
	}

	if err := deltaSchema.Validate(v); err != nil {
		return nil, fmt.Errorf("state changes failed validation: %w", err)
	}

	var d TurnDelta
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decoding state changes: %w", err)
	}
	return &d, nil
}
