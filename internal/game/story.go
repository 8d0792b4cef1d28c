package game

import (
	"fmt"

	"github.com/pixil98/go-errors"
)

// FearCategories are the fixed weighting buckets the prompt builder draws
// story elements from.
var FearCategories = []string{"primitive", "atmospheric", "dissonance", "uncertainty"}

// ElementPool maps an element category (sounds, sights, ...) to candidate
// flavor details.
type ElementPool map[string][]string

// StorySeed is the static seed asset for a location: its initial description
// plus pools of flavor elements keyed by fear category. Seeds are loaded from
// JSON asset files; a location referenced without a seed gets a placeholder
// description.
type StorySeed struct {
	InitialDescription string                 `json:"initial_description"`
	Details            map[string]ElementPool `json:"details,omitempty"`
	Events             map[string]ElementPool `json:"events,omitempty"`
}

func (s *StorySeed) Validate() error {
	el := errors.NewErrorList()

	if s.InitialDescription == "" {
		el.Add(fmt.Errorf("initial_description is required"))
	}

	for fear := range s.Details {
		if !validFearCategory(fear) {
			el.Add(fmt.Errorf("details: unknown fear category %q", fear))
		}
	}
	for fear := range s.Events {
		if !validFearCategory(fear) {
			el.Add(fmt.Errorf("events: unknown fear category %q", fear))
		}
	}

	return el.Err()
}

func validFearCategory(name string) bool {
	for _, c := range FearCategories {
		if c == name {
			return true
		}
	}
	return false
}
