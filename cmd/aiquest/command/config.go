package command

import (
	"fmt"

	"github.com/pixil98/go-errors"
)

type Config struct {
	Listeners []ListenerConfig `json:"listeners"`
	Storage   StorageConfig    `json:"storage"`
	Nats      NatsConfig       `json:"nats"`
	Narrator  NarratorConfig   `json:"narrator"`
	Game      GameConfig       `json:"game"`
}

func (c *Config) Validate() error {
	el := errors.NewErrorList()

	if len(c.Listeners) == 0 {
		el.Add(fmt.Errorf("at least one listener is required"))
	}
	for i, l := range c.Listeners {
		if err := l.validate(); err != nil {
			el.Add(fmt.Errorf("listener %d: %w", i, err))
		}
	}

	el.Add(c.Storage.validate())
	el.Add(c.Nats.validate())
	el.Add(c.Narrator.validate())
	el.Add(c.Game.validate())

	return el.Err()
}
