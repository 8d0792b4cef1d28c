package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aiquest/internal/game"
	"aiquest/internal/protocol"
)

const maxNameLength = 20

// login prompts for a username and registers it with the world. A full
// game lets the player try again once a seat frees up; an invalid or taken
// name ends the connection.
func (s *Session) login(ctx context.Context, world *game.World, timeout time.Duration) (string, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		s.writeLine(protocol.Prompt("Enter your name: "))

		var username string
		select {
		case <-ctx.Done():
			return "", ctx.Err()

		case <-deadline.C:
			s.writeLine(protocol.Error("Login timed out."))
			return "", fmt.Errorf("login timed out")

		case reason := <-s.kicked:
			s.writeLine("SYSTEM " + reason)
			return "", fmt.Errorf("kicked during login")

		case line, ok := <-s.input:
			if !ok {
				return "", fmt.Errorf("connection closed during login")
			}
			username = line
		}

		if !validUsername(username) {
			s.writeLine(protocol.Error(fmt.Sprintf("Name must be 1 to %d letters or digits.", maxNameLength)))
			return "", fmt.Errorf("invalid username %q", username)
		}

		err := world.AddPlayer(username)
		switch {
		case err == nil:
			return username, nil

		case errors.Is(err, game.ErrGameFull):
			s.writeLine(protocol.Error("The game is full. Try again shortly."))
			// Fall through to re-prompt within the original deadline.

		case errors.Is(err, game.ErrNameTaken):
			s.writeLine(protocol.Error(fmt.Sprintf("The name '%s' is already taken.", username)))
			return "", fmt.Errorf("username %q taken", username)

		default:
			return "", fmt.Errorf("adding player: %w", err)
		}
	}
}

func validUsername(name string) bool {
	if len(name) == 0 || len(name) > maxNameLength {
		return false
	}
	for _, r := range name {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isLetter && !isDigit {
			return false
		}
	}
	return true
}
