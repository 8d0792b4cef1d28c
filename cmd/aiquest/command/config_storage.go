package command

import (
	"fmt"
	"os"

	"github.com/pixil98/go-errors"

	"aiquest/internal/game"
	"aiquest/internal/storage"
)

type StorageConfig struct {
	StorySeeds AssetConfig[*game.StorySeed] `json:"story_seeds"`
}

func (c *StorageConfig) validate() error {
	el := errors.NewErrorList()
	el.Add(c.StorySeeds.Validate("story_seeds"))
	return el.Err()
}

func (c *StorageConfig) BuildSeedStore() (*storage.FileStore[*game.StorySeed], error) {
	return storage.NewFileStore[*game.StorySeed](c.StorySeeds.Path)
}

type AssetConfig[T storage.ValidatingSpec] struct {
	Path string `json:"path"`
}

func (c *AssetConfig[T]) Validate(name string) error {
	if c.Path == "" {
		return fmt.Errorf("%s: path is required", name)
	}
	_, err := os.Stat(c.Path)
	if err != nil {
		return fmt.Errorf("%s: invalid path %q: %w", name, c.Path, err)
	}

	return nil
}
