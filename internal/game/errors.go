package game

import "errors"

var (
	ErrNameTaken    = errors.New("username already taken")
	ErrGameFull     = errors.New("game is at capacity")
	ErrNotInGame    = errors.New("player is not in a location")
	ErrAlreadyActed = errors.New("action already submitted this turn")
)
