package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"aiquest/internal/display"
	"aiquest/internal/game"
	"aiquest/internal/protocol"
)

// handleLine dispatches one line of player input. Slash-prefixed lines
// are commands; anything else is an in-game action, or lobby chat before
// the game starts. Returns true when the player asked to quit.
func (m *Manager) handleLine(ctx context.Context, s *Session, username, line string) bool {
	if strings.HasPrefix(line, "/") {
		return m.handleCommand(ctx, s, username, line)
	}

	if m.world.IsActive() {
		m.handleAction(ctx, s, username, line)
		return false
	}

	m.bcast.ToAll(protocol.Chat(username, line))
	s.writeLine(protocol.NarrationEnd)
	return false
}

func (m *Manager) handleCommand(ctx context.Context, s *Session, username, line string) bool {
	cmd, args, _ := strings.Cut(line, " ")
	cmd = strings.ToLower(cmd)
	args = strings.TrimSpace(args)

	switch cmd {
	case "/say":
		if args == "" {
			s.writeLine(protocol.Error("Usage: /say [message]"))
		} else {
			m.say(username, args)
		}

	case "/stats":
		s.writeLine(protocol.System("\n" + m.statsText()))

	case "/players":
		s.writeLine(protocol.System("Connected players: " + strings.Join(m.world.Usernames(), ", ")))

	case "/help":
		s.writeLine(protocol.System("Available commands:\n" + display.Columns([][2]string{
			{"/say [message]", "Talk to the players around you."},
			{"/stats", "Show game statistics."},
			{"/players", "List all connected players."},
			{"/help", "Show this message."},
			{"/quit or /exit", "Leave the game."},
		})))

	case "/quit", "/exit":
		return true

	default:
		s.writeLine(protocol.Error("Unknown command: " + cmd))
	}

	s.writeLine(protocol.NarrationEnd)
	return false
}

func (m *Manager) handleAction(ctx context.Context, s *Session, username, action string) {
	err := m.engine.HandleAction(ctx, username, action)
	switch {
	case err == nil:

	case errors.Is(err, game.ErrAlreadyActed):
		s.writeLine(protocol.System("ERROR You have already acted. Please wait."))
		s.writeLine(protocol.NarrationEnd)

	case errors.Is(err, game.ErrNotInGame):
		s.writeLine(protocol.Error("You are not in the game."))
		s.writeLine(protocol.NarrationEnd)

	default:
		s.writeLine(protocol.Error("Your action could not be processed."))
		s.writeLine(protocol.NarrationEnd)
	}
}

// say relays chat to the sender's connected component while the game is
// active, or to everyone in the lobby.
func (m *Manager) say(username, message string) {
	if m.world.IsActive() {
		if loc, ok := m.world.LocationOf(username); ok && loc != "" {
			m.bcast.ToLocations(m.world.ConnectedComponent(loc), protocol.Chat(username, message))
			return
		}
	}
	m.bcast.ToAll(protocol.Chat(username, message))
}

func (m *Manager) statsText() string {
	stats := m.world.Stats()

	rows := [][2]string{
		{"Phase", stats.Phase},
		{"Players", fmt.Sprintf("%d", stats.PlayerCount)},
		{"Locations", fmt.Sprintf("%d", stats.LocationCount)},
		{"Connections", fmt.Sprintf("%d", stats.ConnectionCount)},
	}
	flags := make([]string, 0, len(stats.WorldFlags))
	for name := range stats.WorldFlags {
		flags = append(flags, name)
	}
	sort.Strings(flags)
	for _, name := range flags {
		rows = append(rows, [2]string{"Flag " + name, fmt.Sprintf("%v", stats.WorldFlags[name])})
	}
	return display.Columns(rows)
}
