// Package admin runs the server operator's stdin console.
package admin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"aiquest/internal/display"
	"aiquest/internal/game"
	"aiquest/internal/protocol"
)

// Engine is the part of the turn machinery the console drives.
type Engine interface {
	StartGame(ctx context.Context) bool
}

// Kicker disconnects players by name.
type Kicker interface {
	Kick(username string) bool
}

// Broadcaster delivers lines to every connected player.
type Broadcaster interface {
	ToAll(line string, exclude ...string)
}

// Console reads operator commands line by line. The command set depends
// on the game phase: the lobby offers /start, an active game offers
// /clear and the tuning commands.
type Console struct {
	world  *game.World
	engine Engine
	kicker Kicker
	bcast  Broadcaster

	in  io.Reader
	out io.Writer
}

func NewConsole(world *game.World, engine Engine, kicker Kicker, bcast Broadcaster, in io.Reader, out io.Writer) *Console {
	return &Console{
		world:  world,
		engine: engine,
		kicker: kicker,
		bcast:  bcast,
		in:     in,
		out:    out,
	}
}

func (c *Console) Start(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	c.printf("Admin console ready. Type /help for commands.")

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				// Closed stdin means the operator is done with the server.
				slog.Info("admin console input closed, shutting down")
				return fmt.Errorf("admin console input closed")
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			slog.Info("admin command", "line", line)
			c.handle(ctx, line)
		}
	}
}

func (c *Console) handle(ctx context.Context, line string) {
	cmd, args, _ := strings.Cut(line, " ")
	cmd = strings.ToLower(cmd)
	args = strings.TrimSpace(args)

	switch cmd {
	case "/say":
		c.cmdSay(args)
	case "/kick":
		c.cmdKick(args)
	case "/players":
		c.printf("Connected players: %s", strings.Join(c.world.Usernames(), ", "))
	case "/stats":
		c.cmdStats()
	case "/help":
		c.cmdHelp()
	case "/start":
		c.cmdStart(ctx)
	case "/clear":
		c.cmdClear()
	case "/weights":
		c.cmdWeights(args)
	case "/set":
		c.cmdSet(args)
	default:
		c.printf("Unknown command: %s", cmd)
		c.cmdHelp()
	}
}

func (c *Console) cmdSay(args string) {
	if args == "" {
		c.printf("Usage: /say [message]")
		return
	}
	c.bcast.ToAll(protocol.System("[ADMIN] " + args))
	c.printf("Sent to everyone: %s", args)
}

func (c *Console) cmdKick(args string) {
	if args == "" {
		c.printf("Usage: /kick [username]")
		return
	}
	if c.kicker.Kick(args) {
		c.printf("%s was kicked.", args)
	} else {
		c.printf("Player '%s' not found.", args)
	}
}

func (c *Console) cmdStart(ctx context.Context) {
	if c.world.IsActive() {
		c.printf("The game is already running. Use /clear to reset it.")
		return
	}
	if !c.engine.StartGame(ctx) {
		c.printf("Could not start the game.")
		return
	}
	c.printf("The game has started.")
}

func (c *Console) cmdClear() {
	if !c.world.IsActive() {
		c.printf("/clear only works while a game is running.")
		return
	}
	c.world.ResetToLobby()
	c.bcast.ToAll(protocol.System("The game was reset to the lobby by the administrator."))
	c.bcast.ToAll(protocol.StateUpdate(game.PhaseLobby.String()))
	c.printf("Game reset to lobby.")
}

func (c *Console) cmdStats() {
	stats := c.world.Stats()
	tunables := c.world.Tunables()

	rows := [][2]string{
		{"Phase", stats.Phase},
		{"Players", strconv.Itoa(stats.PlayerCount)},
		{"Locations", strconv.Itoa(stats.LocationCount)},
		{"Connections", strconv.Itoa(stats.ConnectionCount)},
		{"story_injection_turns", strconv.Itoa(tunables.StoryInjectionTurns)},
		{"immersion_turns", strconv.Itoa(tunables.ImmersionTurns)},
		{"max_history_chars", strconv.Itoa(tunables.MaxHistoryChars)},
	}
	for _, fear := range game.FearCategories {
		rows = append(rows, [2]string{"weight " + fear, strconv.Itoa(tunables.FearWeights[fear])})
	}

	flags := make([]string, 0, len(stats.WorldFlags))
	for name := range stats.WorldFlags {
		flags = append(flags, name)
	}
	sort.Strings(flags)
	for _, name := range flags {
		rows = append(rows, [2]string{"flag " + name, fmt.Sprintf("%v", stats.WorldFlags[name])})
	}

	c.printf("%s", display.Columns(rows))
}

// cmdWeights sets all four fear weights at once, e.g.
// /weights primitive=40 atmospheric=20 dissonance=20 uncertainty=20
func (c *Console) cmdWeights(args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		c.printf("Usage: /weights %s", strings.Join(game.FearCategories, "=N ")+"=N")
		return
	}

	weights := map[string]int{}
	for _, field := range fields {
		name, value, ok := strings.Cut(field, "=")
		if !ok {
			c.printf("Bad weight %q, expected name=value.", field)
			return
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			c.printf("Bad weight value %q.", value)
			return
		}
		weights[name] = n
	}

	if err := c.world.SetFearWeights(weights); err != nil {
		c.printf("Setting weights: %v", err)
		return
	}
	c.printf("Fear weights updated.")
}

// cmdSet updates one tunable, e.g. /set immersion_turns 3
func (c *Console) cmdSet(args string) {
	name, value, ok := strings.Cut(args, " ")
	if !ok {
		c.printf("Usage: /set [tunable] [value]")
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		c.printf("Bad value %q.", value)
		return
	}
	if err := c.world.SetTunable(name, n); err != nil {
		c.printf("Setting %s: %v", name, err)
		return
	}
	c.printf("%s set to %d.", name, n)
}

func (c *Console) cmdHelp() {
	rows := [][2]string{
		{"/say [message]", "Send a system message to everyone."},
		{"/kick [name]", "Disconnect a player."},
		{"/players", "List connected players."},
		{"/stats", "Show game statistics and tunables."},
		{"/help", "Show this message."},
	}
	if c.world.IsActive() {
		rows = append(rows,
			[2]string{"/clear", "Reset the game back to the lobby."},
			[2]string{"/weights ...", "Set the fear category weights."},
			[2]string{"/set [name] [n]", "Set a pacing tunable."},
		)
		c.printf("State: ACTIVE\nAvailable commands:\n%s", display.Columns(rows))
		return
	}
	rows = append(rows, [2]string{"/start", "Start the game."})
	c.printf("State: LOBBY\nAvailable commands:\n%s", display.Columns(rows))
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}
