package command

import (
	"fmt"

	"github.com/pixil98/go-errors"

	"aiquest/internal/game"
)

type GameConfig struct {
	MaxPlayers          int            `json:"max_players"`
	StartLocation       string         `json:"start_location"`
	FearWeights         map[string]int `json:"fear_weights,omitempty"`
	StoryInjectionTurns int            `json:"story_injection_turns,omitempty"`
	ImmersionTurns      int            `json:"immersion_turns,omitempty"`
	MaxHistoryChars     int            `json:"max_history_chars,omitempty"`
}

func (c *GameConfig) validate() error {
	el := errors.NewErrorList()

	if c.MaxPlayers < 0 {
		el.Add(fmt.Errorf("max_players must not be negative"))
	}
	if c.StoryInjectionTurns < 0 || c.ImmersionTurns < 0 || c.MaxHistoryChars < 0 {
		el.Add(fmt.Errorf("pacing tunables must not be negative"))
	}

	return el.Err()
}

func (c *GameConfig) maxPlayers() int {
	if c.MaxPlayers == 0 {
		return 4
	}
	return c.MaxPlayers
}

func (c *GameConfig) startLocation() string {
	if c.StartLocation == "" {
		return "endless_metro"
	}
	return c.StartLocation
}

// apply pushes configured tunables into a freshly built world, leaving
// defaults in place for anything unset.
func (c *GameConfig) apply(w *game.World) error {
	if len(c.FearWeights) > 0 {
		if err := w.SetFearWeights(c.FearWeights); err != nil {
			return fmt.Errorf("applying fear_weights: %w", err)
		}
	}

	tunables := map[string]int{
		"story_injection_turns": c.StoryInjectionTurns,
		"immersion_turns":       c.ImmersionTurns,
		"max_history_chars":     c.MaxHistoryChars,
	}
	for name, value := range tunables {
		if value == 0 {
			continue
		}
		if err := w.SetTunable(name, value); err != nil {
			return fmt.Errorf("applying %s: %w", name, err)
		}
	}
	return nil
}
