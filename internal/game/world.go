package game

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"aiquest/internal/storage"
)

type Phase int

const (
	PhaseLobby Phase = iota
	PhaseActive
)

func (p Phase) String() string {
	if p == PhaseActive {
		return "ACTIVE"
	}
	return "LOBBY"
}

// Tunables are the admin-adjustable pacing knobs read by the prompt builder.
type Tunables struct {
	FearWeights         map[string]int
	StoryInjectionTurns int
	ImmersionTurns      int
	MaxHistoryChars     int
}

func DefaultTunables() Tunables {
	weights := make(map[string]int, len(FearCategories))
	for _, c := range FearCategories {
		weights[c] = 25
	}
	return Tunables{
		FearWeights:         weights,
		StoryInjectionTurns: 4,
		ImmersionTurns:      2,
		MaxHistoryChars:     8192,
	}
}

func (t Tunables) clone() Tunables {
	cp := t
	cp.FearWeights = make(map[string]int, len(t.FearWeights))
	for k, v := range t.FearWeights {
		cp.FearWeights[k] = v
	}
	return cp
}

// World is the single source of truth for all mutable game state: players,
// locations, the location graph, and global flags. Every public method is
// atomic with respect to all others; nothing mutable escapes the lock.
type World struct {
	mu sync.Mutex

	phase     Phase
	players   map[string]*Player
	locations map[string]*Location
	graph     map[string]map[string]struct{}
	flags     map[string]any
	tunables  Tunables

	maxPlayers    int
	startLocation string
	seeds         storage.Storer[*StorySeed]
}

// NewWorld creates an empty lobby-phase world. seeds may be nil when no
// story assets are configured.
func NewWorld(maxPlayers int, startLocation string, seeds storage.Storer[*StorySeed]) *World {
	return &World{
		phase:         PhaseLobby,
		players:       map[string]*Player{},
		locations:     map[string]*Location{},
		graph:         map[string]map[string]struct{}{},
		flags:         map[string]any{},
		tunables:      DefaultTunables(),
		maxPlayers:    maxPlayers,
		startLocation: startLocation,
		seeds:         seeds,
	}
}

func (w *World) getOrCreateLocationLocked(name string) *Location {
	if loc, ok := w.locations[name]; ok {
		return loc
	}

	desc := "An empty place."
	if w.seeds != nil {
		if seed := w.seeds.Get(name); seed != nil {
			desc = seed.InitialDescription
		}
	}

	loc := newLocation(name, desc)
	w.locations[name] = loc
	if w.graph[name] == nil {
		w.graph[name] = map[string]struct{}{}
	}
	slog.Info("location created", "name", name)
	return loc
}

// GetOrCreateLocation fabricates the named location on demand and returns
// its name (creation is the side effect callers want; the location itself
// stays behind the lock).
func (w *World) GetOrCreateLocation(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.getOrCreateLocationLocked(name)
}

// AddPlayer registers a new player. Returns ErrGameFull or ErrNameTaken on
// rejection. If the game is already active the player is dropped straight
// into the start location.
func (w *World) AddPlayer(username string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.players) >= w.maxPlayers {
		slog.Warn("rejecting player, game full", "username", username, "max", w.maxPlayers)
		return ErrGameFull
	}
	if _, ok := w.players[username]; ok {
		slog.Warn("rejecting player, name taken", "username", username)
		return ErrNameTaken
	}

	p := NewPlayer(username)
	w.players[username] = p

	if w.phase == PhaseActive {
		p.LocationName = w.startLocation
		loc := w.getOrCreateLocationLocked(w.startLocation)
		loc.addPlayer(username)
		slog.Info("player joined game", "username", username, "location", w.startLocation)
	} else {
		slog.Info("player joined lobby", "username", username)
	}

	return nil
}

// RemovePlayer drops a player and returns their last location name, empty if
// they were in the lobby or unknown.
func (w *World) RemovePlayer(username string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.players[username]
	if !ok {
		return "", false
	}
	delete(w.players, username)

	last := p.LocationName
	if last != "" {
		if loc, ok := w.locations[last]; ok {
			loc.removePlayer(username)
		}
	}
	slog.Info("player removed", "username", username, "location", last)
	return last, true
}

// PlayerView returns a deep copy of a player's state.
func (w *World) PlayerView(username string) (Player, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.players[username]
	if !ok {
		return Player{}, false
	}
	return p.clone(), true
}

// LocationOf reports the player's current location, empty for lobby.
func (w *World) LocationOf(username string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.players[username]
	if !ok {
		return "", false
	}
	return p.LocationName, true
}

// LocationDescription returns the current description of a location.
func (w *World) LocationDescription(name string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	loc, ok := w.locations[name]
	if !ok {
		return "", false
	}
	return loc.Description, true
}

// Usernames lists all connected players, sorted.
func (w *World) Usernames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	names := make([]string, 0, len(w.players))
	for name := range w.players {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PlayersInLocations lists the usernames present in any of the given
// locations, sorted.
func (w *World) PlayersInLocations(locs []string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.playersInLocationsLocked(locs)
}

func (w *World) playersInLocationsLocked(locs []string) []string {
	var names []string
	for _, name := range locs {
		loc, ok := w.locations[name]
		if !ok {
			continue
		}
		for username := range loc.PlayersPresent {
			if _, ok := w.players[username]; ok {
				names = append(names, username)
			}
		}
	}
	sort.Strings(names)
	return names
}

func (w *World) IsActive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase == PhaseActive
}

func (w *World) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

func (w *World) StartLocation() string {
	return w.startLocation
}

// StartGame transitions lobby to active, moving every lobby player into the
// start location. Returns false if the game is not in the lobby phase.
func (w *World) StartGame() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.phase != PhaseLobby {
		slog.Warn("start requested outside lobby", "phase", w.phase.String())
		return false
	}
	w.phase = PhaseActive

	start := w.getOrCreateLocationLocked(w.startLocation)
	for username, p := range w.players {
		p.LocationName = w.startLocation
		start.addPlayer(username)
	}
	slog.Info("game started", "start_location", w.startLocation, "players", len(w.players))
	return true
}

// ResetToLobby wipes all locations, edges, and flags and returns every
// player to lobby defaults.
func (w *World) ResetToLobby() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.phase = PhaseLobby
	w.locations = map[string]*Location{}
	w.graph = map[string]map[string]struct{}{}
	w.flags = map[string]any{}
	for _, p := range w.players {
		p.Reset()
	}
	slog.Info("game reset to lobby", "players", len(w.players))
}

// Stats is a point-in-time summary of world state.
type Stats struct {
	PlayerCount     int
	LocationCount   int
	ConnectionCount int
	Phase           string
	WorldFlags      map[string]any
}

func (w *World) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	edges := 0
	for _, neighbors := range w.graph {
		edges += len(neighbors)
	}

	flags := make(map[string]any, len(w.flags))
	for k, v := range w.flags {
		flags[k] = v
	}

	return Stats{
		PlayerCount:     len(w.players),
		LocationCount:   len(w.locations),
		ConnectionCount: edges / 2,
		Phase:           w.phase.String(),
		WorldFlags:      flags,
	}
}

// Tunables returns a copy of the current tunable configuration.
func (w *World) Tunables() Tunables {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tunables.clone()
}

// SetFearWeights replaces the fear weighting. Every fixed category must be
// present with a non-negative weight.
func (w *World) SetFearWeights(weights map[string]int) error {
	for _, c := range FearCategories {
		v, ok := weights[c]
		if !ok {
			return fmt.Errorf("missing fear category %q", c)
		}
		if v < 0 {
			return fmt.Errorf("fear category %q must be non-negative", c)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	cp := make(map[string]int, len(FearCategories))
	for _, c := range FearCategories {
		cp[c] = weights[c]
	}
	w.tunables.FearWeights = cp
	slog.Info("fear weights updated", "weights", cp)
	return nil
}

// SetTunable adjusts a named pacing integer.
func (w *World) SetTunable(name string, value int) error {
	if value < 0 {
		return fmt.Errorf("%s must be non-negative", name)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	switch name {
	case "story_injection_turns":
		w.tunables.StoryInjectionTurns = value
	case "immersion_turns":
		w.tunables.ImmersionTurns = value
	case "max_history_chars":
		w.tunables.MaxHistoryChars = value
	default:
		return fmt.Errorf("unknown tunable %q", name)
	}
	slog.Info("tunable updated", "name", name, "value", value)
	return nil
}

// MovedPlayer records a player displacement produced by a turn delta.
type MovedPlayer struct {
	Username string
	From     string
}

// ApplyTurnChanges applies a validated narrator delta atomically, in order:
// location edits, connection changes, world-flag merges, then player updates
// with moves last. References to unknown players are skipped with a warning.
// Returns every player actually moved and whether any CREATE edge was
// applied, both of which must trigger a re-grouping pass in the caller.
func (w *World) ApplyTurnChanges(delta *TurnDelta) ([]MovedPlayer, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var moved []MovedPlayer
	newEdge := false

	for _, update := range delta.LocationUpdates {
		if update.LocationName == "" {
			continue
		}
		loc := w.getOrCreateLocationLocked(update.LocationName)
		if update.Description != nil {
			loc.Description = *update.Description
			slog.Info("location description updated", "name", update.LocationName)
		}
	}

	for _, conn := range delta.ConnectionUpdates {
		if len(conn.Locations) != 2 {
			slog.Warn("skipping malformed connection update", "update", conn)
			continue
		}
		a, b := conn.Locations[0], conn.Locations[1]
		switch conn.Action {
		case ConnCreate:
			_, hadA := w.locations[a]
			_, hadB := w.locations[b]
			if w.connectLocked(a, b) {
				newEdge = true
			}
			// A room first revealed by this edge starts on the clock of
			// the side that opened it, not at zero.
			if hadA && !hadB {
				w.locations[b].TurnCounter = w.locations[a].TurnCounter
			} else if hadB && !hadA {
				w.locations[a].TurnCounter = w.locations[b].TurnCounter
			}
		case ConnDestroy:
			w.disconnectLocked(a, b)
		default:
			slog.Warn("skipping unknown connection action", "action", conn.Action)
		}
	}

	for k, v := range delta.WorldFlags {
		w.flags[k] = v
	}
	if len(delta.WorldFlags) > 0 {
		slog.Info("world flags updated", "flags", delta.WorldFlags)
	}

	for _, update := range delta.PlayerUpdates {
		p, ok := w.players[update.Username]
		if !ok {
			slog.Warn("skipping update for unknown player", "username", update.Username)
			continue
		}

		for _, item := range update.InventoryAdd {
			p.AddItem(item)
		}
		for _, item := range update.InventoryRemove {
			p.RemoveItem(item)
		}
		if update.StatusUpdate != nil {
			p.StatusEffects = update.StatusUpdate
		}

		if update.MoveToLocation != "" && update.MoveToLocation != p.LocationName {
			from := p.LocationName
			w.movePlayerLocked(p, update.MoveToLocation)
			moved = append(moved, MovedPlayer{Username: update.Username, From: from})
		}
	}

	return moved, newEdge
}

func (w *World) movePlayerLocked(p *Player, to string) {
	from := p.LocationName
	slog.Info("moving player", "username", p.Username, "from", from, "to", to)

	if from != "" {
		if loc, ok := w.locations[from]; ok {
			loc.removePlayer(p.Username)
		}
	}

	p.LocationName = to
	p.PersonalHistory = append(p.PersonalHistory, "moved to "+to)
	_, existed := w.locations[to]
	dest := w.getOrCreateLocationLocked(to)
	if !existed && from != "" {
		if src, ok := w.locations[from]; ok {
			dest.TurnCounter = src.TurnCounter
		}
	}
	dest.addPlayer(p.Username)
}

// RecordAction stores a player's pending action for the in-flight turn and
// returns the connected component of their location for echo broadcasting.
func (w *World) RecordAction(username, action string) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.players[username]
	if !ok || p.LocationName == "" {
		return nil, ErrNotInGame
	}

	loc := w.getOrCreateLocationLocked(p.LocationName)
	if _, dup := loc.PendingActions[username]; dup {
		return nil, ErrAlreadyActed
	}

	loc.PendingActions[username] = action
	loc.addAction(username, action)
	return w.componentLocked(loc.Name), nil
}
