package game

import (
	"log/slog"
	"sort"
	"strings"
)

// IdleAction is the auto-assigned action for players who sat out a turn.
const IdleAction = "does nothing"

// GroupKey identifies a connected component by its sorted location names.
type GroupKey string

func MakeGroupKey(locs []string) GroupKey {
	sorted := make([]string, len(locs))
	copy(sorted, locs)
	sort.Strings(sorted)
	return GroupKey(strings.Join(sorted, "|"))
}

// GroupView is a read-only snapshot of one connected component of playing
// players, taken under the world lock during a grouping pass.
type GroupView struct {
	Key       GroupKey
	Locations []string
	Players   []string
	Counters  []int    // distinct turn counter values in the group
	Pending   int      // total pending actions across the group
	Acted     []string // players who already submitted this turn
}

// IsMerge reports whether the group spans locations whose turn counters have
// diverged, i.e. previously separate regions now share a component.
func (g GroupView) IsMerge() bool {
	return len(g.Counters) > 1
}

// PartitionGroups splits all currently-playing players into groups by
// connected component of their location. Each player lands in exactly one
// group; lobby players are ignored.
func (w *World) PartitionGroups() []GroupView {
	w.mu.Lock()
	defer w.mu.Unlock()

	usernames := make([]string, 0, len(w.players))
	for name := range w.players {
		usernames = append(usernames, name)
	}
	sort.Strings(usernames)

	visited := map[string]struct{}{}
	var groups []GroupView

	for _, username := range usernames {
		p := w.players[username]
		if p.LocationName == "" {
			continue
		}
		if _, ok := visited[username]; ok {
			continue
		}

		locs := w.componentLocked(p.LocationName)

		var members []string
		for _, member := range w.playersInLocationsLocked(locs) {
			if _, ok := visited[member]; ok {
				continue
			}
			visited[member] = struct{}{}
			members = append(members, member)
		}

		counterSet := map[int]struct{}{}
		pending := 0
		var acted []string
		for _, name := range locs {
			loc := w.getOrCreateLocationLocked(name)
			counterSet[loc.TurnCounter] = struct{}{}
			pending += len(loc.PendingActions)
			for actor := range loc.PendingActions {
				acted = append(acted, actor)
			}
		}

		counters := make([]int, 0, len(counterSet))
		for c := range counterSet {
			counters = append(counters, c)
		}
		sort.Ints(counters)
		sort.Strings(acted)

		groups = append(groups, GroupView{
			Key:       MakeGroupKey(locs),
			Locations: locs,
			Players:   members,
			Counters:  counters,
			Pending:   pending,
			Acted:     acted,
		})
	}

	return groups
}

// TickStatusEffects decrements every timed effect on every player in the
// group, removing expired ones. Players left with no effects regain the
// default healthy effect. Expiry messages are appended to the group's first
// location history and returned for broadcast.
func (w *World) TickStatusEffects(locs []string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var msgs []string
	for _, username := range w.playersInLocationsLocked(locs) {
		p := w.players[username]

		kept := p.StatusEffects[:0]
		for _, effect := range p.StatusEffects {
			if effect.DurationTurns != nil {
				*effect.DurationTurns--
				if *effect.DurationTurns <= 0 {
					msgs = append(msgs, "The effect '"+effect.Name+"' on "+username+" has worn off.")
					continue
				}
			}
			kept = append(kept, effect)
		}
		p.StatusEffects = kept
		if len(p.StatusEffects) == 0 {
			p.StatusEffects = append(p.StatusEffects, HealthyEffect())
		}
	}

	if len(msgs) > 0 && len(locs) > 0 {
		if loc, ok := w.locations[locs[0]]; ok {
			for _, msg := range msgs {
				loc.addSystem(msg)
			}
		}
	}
	return msgs
}

// AdvanceTurnCounters increments every location's counter by one. Only valid
// for non-merge groups, where all counters are equal by invariant.
func (w *World) AdvanceTurnCounters(locs []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, name := range locs {
		if loc, ok := w.locations[name]; ok {
			loc.TurnCounter++
		}
	}
}

// SyncTurnCounters forces every location in a merged group to one past the
// previous maximum, resolving the counter desync a merge turn detected.
// Returns the synchronized value.
func (w *World) SyncTurnCounters(locs []string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	max := 0
	for _, name := range locs {
		if loc, ok := w.locations[name]; ok && loc.TurnCounter > max {
			max = loc.TurnCounter
		}
	}

	final := max + 1
	for _, name := range locs {
		if loc, ok := w.locations[name]; ok {
			loc.TurnCounter = final
		}
	}
	slog.Warn("turn counters synchronized after merge", "locations", locs, "counter", final)
	return final
}

// MaxTurnCounter returns the highest counter across the group.
func (w *World) MaxTurnCounter(locs []string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	max := 0
	for _, name := range locs {
		if loc, ok := w.locations[name]; ok && loc.TurnCounter > max {
			max = loc.TurnCounter
		}
	}
	return max
}

// FillIdleActions assigns the idle action to every present player without a
// pending one, so narration always covers everybody. Returns the players
// idled.
func (w *World) FillIdleActions(locs []string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var idled []string
	for _, name := range locs {
		loc, ok := w.locations[name]
		if !ok {
			continue
		}
		for username := range loc.PlayersPresent {
			if _, ok := loc.PendingActions[username]; !ok {
				loc.PendingActions[username] = IdleAction
				loc.addAction(username, IdleAction)
				idled = append(idled, username)
			}
		}
	}
	sort.Strings(idled)
	return idled
}

// SeedPendingActions assigns an action to every present player without one,
// without echoing it to history. Used to kick off the first turn.
func (w *World) SeedPendingActions(locs []string, action string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, name := range locs {
		loc, ok := w.locations[name]
		if !ok {
			continue
		}
		for username := range loc.PlayersPresent {
			if _, ok := loc.PendingActions[username]; !ok {
				loc.PendingActions[username] = action
			}
		}
	}
}

// AppendNarration adds the turn's full narration to every location history
// in the group.
func (w *World) AppendNarration(locs []string, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, name := range locs {
		if loc, ok := w.locations[name]; ok {
			loc.addNarration(text)
		}
	}
}

// ClearPending drops the pending-action buffers of the group at end of turn.
func (w *World) ClearPending(locs []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, name := range locs {
		if loc, ok := w.locations[name]; ok {
			loc.clearTurnData()
		}
	}
}

// MarkStoryElementsUsed records flavor elements consumed by a prompt so they
// are not selected again for the same location.
func (w *World) MarkStoryElementsUsed(locName string, items []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	loc, ok := w.locations[locName]
	if !ok {
		return
	}
	for _, item := range items {
		loc.UsedStoryElements[item] = struct{}{}
	}
}

// LocationSnapshot is a deep copy of one location's prompt-relevant state.
type LocationSnapshot struct {
	Name              string
	Description       string
	TurnCounter       int
	History           []HistoryEntry
	PendingActions    map[string]string
	UsedStoryElements map[string]struct{}
	Players           []string
}

// PlayerSnapshot is a deep copy of one player's prompt-relevant state.
type PlayerSnapshot struct {
	Username      string
	LocationName  string
	Inventory     []string
	StatusEffects []StatusEffect
}

// TurnSnapshot is the immutable pre-turn state handed to the prompt builder
// and the narrator, so slow external calls never hold the world lock.
type TurnSnapshot struct {
	Locations   []LocationSnapshot
	Connections [][2]string
	Players     []PlayerSnapshot
	WorldFlags  map[string]any
	Tunables    Tunables
}

// Snapshot captures the group's state for prompt building.
func (w *World) Snapshot(locs []string) *TurnSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := &TurnSnapshot{
		WorldFlags: make(map[string]any, len(w.flags)),
		Tunables:   w.tunables.clone(),
	}
	for k, v := range w.flags {
		snap.WorldFlags[k] = v
	}

	for _, name := range locs {
		loc, ok := w.locations[name]
		if !ok {
			continue
		}

		ls := LocationSnapshot{
			Name:              loc.Name,
			Description:       loc.Description,
			TurnCounter:       loc.TurnCounter,
			History:           append([]HistoryEntry(nil), loc.History...),
			PendingActions:    make(map[string]string, len(loc.PendingActions)),
			UsedStoryElements: make(map[string]struct{}, len(loc.UsedStoryElements)),
		}
		for k, v := range loc.PendingActions {
			ls.PendingActions[k] = v
		}
		for k := range loc.UsedStoryElements {
			ls.UsedStoryElements[k] = struct{}{}
		}
		for username := range loc.PlayersPresent {
			ls.Players = append(ls.Players, username)
		}
		sort.Strings(ls.Players)
		snap.Locations = append(snap.Locations, ls)
	}

	inGroup := map[string]struct{}{}
	for _, name := range locs {
		inGroup[name] = struct{}{}
	}
	for _, a := range locs {
		for b := range w.graph[a] {
			if _, ok := inGroup[b]; ok && a < b {
				snap.Connections = append(snap.Connections, [2]string{a, b})
			}
		}
	}
	sort.Slice(snap.Connections, func(i, j int) bool {
		if snap.Connections[i][0] != snap.Connections[j][0] {
			return snap.Connections[i][0] < snap.Connections[j][0]
		}
		return snap.Connections[i][1] < snap.Connections[j][1]
	})

	for _, username := range w.playersInLocationsLocked(locs) {
		p := w.players[username].clone()
		snap.Players = append(snap.Players, PlayerSnapshot{
			Username:      p.Username,
			LocationName:  p.LocationName,
			Inventory:     p.Inventory,
			StatusEffects: p.StatusEffects,
		})
	}

	return snap
}
