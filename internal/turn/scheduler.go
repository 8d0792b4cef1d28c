// Package turn decides when a connected component of players has submitted
// enough input to advance, runs the narration round for that group, and
// reconciles turn counters when previously separate regions of the world
// graph merge.
package turn

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"aiquest/internal/game"
	"aiquest/internal/protocol"
)

// Narrator is the boundary to the external narrative service. Narration
// failures surface as fallback text, never as corrupted scheduler state.
type Narrator interface {
	// StreamNarration emits narration fragments through fn as they arrive
	// and returns the concatenated text. It only errors on cancellation or
	// when fn itself fails.
	StreamNarration(ctx context.Context, prompt string, fn func(fragment string) error) (string, error)
	// ExtractChanges derives a structured state delta from a state-update
	// prompt. A nil delta with raw text means the response was unusable.
	ExtractChanges(ctx context.Context, prompt string) (*game.TurnDelta, string, error)
}

// PromptBuilder renders the narration and state-update prompts from a
// pre-turn snapshot.
type PromptBuilder interface {
	// NarrationPrompt returns the prompt, the location whose story elements
	// were consumed, and the elements to mark used.
	NarrationPrompt(snap *game.TurnSnapshot) (prompt string, focusLocation string, used []string, err error)
	StatePrompt(snap *game.TurnSnapshot, narration string) (string, error)
}

// Broadcaster delivers protocol lines to players.
type Broadcaster interface {
	ToLocations(locs []string, line string, exclude ...string)
	ToAll(line string, exclude ...string)
}

// DebugSink optionally records prompts and responses per group and turn.
type DebugSink interface {
	Write(kind, stage, group string, turnNumber int, content string)
}

type Scheduler struct {
	world    *game.World
	narrator Narrator
	prompts  PromptBuilder
	bcast    Broadcaster
	debug    DebugSink

	// mu guards locks, the per-group PROCESSING markers. A group key held
	// here has exactly one turn task in flight.
	mu    sync.Mutex
	locks map[game.GroupKey]struct{}

	tasks sync.WaitGroup
}

type SchedulerOpt func(*Scheduler)

// WithDebugSink enables prompt/response artifacts.
func WithDebugSink(sink DebugSink) SchedulerOpt {
	return func(s *Scheduler) {
		s.debug = sink
	}
}

func NewScheduler(world *game.World, narrator Narrator, prompts PromptBuilder, bcast Broadcaster, opts ...SchedulerOpt) *Scheduler {
	s := &Scheduler{
		world:    world,
		narrator: narrator,
		prompts:  prompts,
		bcast:    bcast,
		locks:    map[game.GroupKey]struct{}{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start blocks until shutdown, then waits for in-flight turn tasks to
// wind down before reporting the worker as stopped.
func (s *Scheduler) Start(ctx context.Context) error {
	<-ctx.Done()
	s.tasks.Wait()
	return nil
}

// Wait blocks until all in-flight turn tasks finish.
func (s *Scheduler) Wait() {
	s.tasks.Wait()
}

// HandleAction records a player's free-text action, echoes it to the
// player's connected component, and re-evaluates group readiness.
func (s *Scheduler) HandleAction(ctx context.Context, username, action string) error {
	component, err := s.world.RecordAction(username, action)
	if err != nil {
		return err
	}

	s.bcast.ToLocations(component, protocol.Action(username, action))
	s.CheckGroups(ctx)
	return nil
}

// StartGame flips the lobby into the active phase, announces it, and seeds
// the first turn for the start location.
func (s *Scheduler) StartGame(ctx context.Context) bool {
	if !s.world.StartGame() {
		return false
	}
	s.bcast.ToAll(protocol.StateUpdate(game.PhaseActive.String()))

	start := []string{s.world.StartLocation()}
	s.world.SeedPendingActions(start, "looks around")
	s.CheckGroups(ctx)
	return true
}

// OnPlayerRemoved re-evaluates groups after a disconnect: a departed player
// may have been the one holding a group below its readiness threshold.
func (s *Scheduler) OnPlayerRemoved(ctx context.Context, lastLocation string) {
	if lastLocation == "" {
		return
	}
	s.CheckGroups(ctx)
}

// CheckGroups partitions all playing players into connected-component
// groups and dispatches a turn task for every group whose pending actions
// cover its players. Groups already PROCESSING are skipped; players in
// not-yet-ready groups who have not acted get an explicit end-of-narration
// notice so their clients stop waiting. Dispatch is fire-and-forget: this
// never blocks on a turn.
func (s *Scheduler) CheckGroups(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, group := range s.world.PartitionGroups() {
		if len(group.Players) == 0 {
			continue
		}
		if _, busy := s.locks[group.Key]; busy {
			continue
		}

		if group.IsMerge() {
			slog.Warn("world merge detected, turn counters diverged",
				"locations", group.Locations, "counters", group.Counters)
		}

		if group.Pending >= len(group.Players) {
			slog.Info("group ready, dispatching turn",
				"locations", group.Locations, "players", len(group.Players), "merge", group.IsMerge())
			s.locks[group.Key] = struct{}{}
			s.tasks.Add(1)
			go s.processTurn(ctx, group.Locations, group.IsMerge())
		} else {
			s.bcast.ToLocations(group.Locations, protocol.NarrationEnd, group.Acted...)
		}
	}
}

// processTurn runs one full narration round for a locked group. The
// deferred cleanup is unconditional on the normal path: merge counters are
// reconciled, pending actions cleared, the end-of-turn marker sent, and the
// PROCESSING lock released, so a failed narration never wedges the group.
func (s *Scheduler) processTurn(ctx context.Context, locs []string, merge bool) {
	defer s.tasks.Done()

	key := game.MakeGroupKey(locs)
	groupName := strings.Join(locs, "_")
	turnNumber := s.world.MaxTurnCounter(locs) + 1
	slog.Info("processing turn", "group", groupName, "turn", turnNumber, "merge", merge)

	regroup := false
	defer func() {
		if merge {
			s.world.SyncTurnCounters(locs)
		}
		s.bcast.ToLocations(locs, protocol.NarrationEnd)
		s.world.ClearPending(locs)

		s.mu.Lock()
		delete(s.locks, key)
		s.mu.Unlock()

		// A group that changed shape during this turn may already be
		// eligible again; untouched groups were notified when they last
		// changed, so they are left alone.
		if regroup {
			s.CheckGroups(ctx)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic during turn processing", "group", groupName, "panic", r)
			s.bcast.ToLocations(locs, protocol.System("Something went wrong with the narrator. The turn was aborted."))
		}
	}()

	players := s.world.PlayersInLocations(locs)
	if len(players) == 0 {
		slog.Warn("turn dispatched for empty group", "group", groupName)
		return
	}

	for _, msg := range s.world.TickStatusEffects(locs) {
		s.bcast.ToLocations(locs, protocol.System(msg))
	}

	// In a non-merge group every counter is equal by invariant, so a
	// uniform increment keeps them equal. Merged groups are reconciled in
	// the deferred cleanup instead.
	if !merge {
		s.world.AdvanceTurnCounters(locs)
	}

	for _, username := range s.world.FillIdleActions(locs) {
		s.bcast.ToLocations(locs, protocol.Action(username, game.IdleAction))
	}

	snap := s.world.Snapshot(locs)

	prompt, focusLoc, used, err := s.prompts.NarrationPrompt(snap)
	if err != nil {
		slog.Error("building narration prompt", "group", groupName, "error", err)
		s.bcast.ToLocations(locs, protocol.System("Something went wrong with the narrator. The turn was aborted."))
		return
	}
	s.world.MarkStoryElementsUsed(focusLoc, used)
	s.debugWrite("narration", "prompt", groupName, turnNumber, prompt)

	s.bcast.ToLocations(locs, protocol.ThinkStart)
	narration, err := s.narrator.StreamNarration(ctx, prompt, func(fragment string) error {
		s.bcast.ToLocations(locs, protocol.Narrate(fragment))
		return nil
	})
	s.debugWrite("narration", "response", groupName, turnNumber, narration)
	if err != nil {
		slog.Error("streaming narration", "group", groupName, "error", err)
		s.bcast.ToLocations(locs, protocol.System("Something went wrong with the narrator. The turn was aborted."))
		return
	}

	if strings.TrimSpace(narration) == "" {
		slog.Warn("narrator returned empty narration, ending turn", "group", groupName)
		return
	}
	s.world.AppendNarration(locs, narration)

	s.bcast.ToLocations(locs, protocol.StateThinkStart)
	statePrompt, err := s.prompts.StatePrompt(snap, narration)
	if err != nil {
		slog.Error("building state prompt", "group", groupName, "error", err)
		s.bcast.ToLocations(locs, protocol.System("Something went wrong with the narrator. The turn was aborted."))
		return
	}
	s.debugWrite("state", "prompt", groupName, turnNumber, statePrompt)

	delta, raw, err := s.narrator.ExtractChanges(ctx, statePrompt)
	s.debugWrite("state", "response", groupName, turnNumber, raw)
	if err != nil {
		slog.Error("extracting state changes", "group", groupName, "error", err)
		s.bcast.ToLocations(locs, protocol.System("Something went wrong with the narrator. The turn was aborted."))
		return
	}
	if delta == nil {
		slog.Warn("no usable state changes extracted", "group", groupName)
		return
	}

	moved, newEdge := s.world.ApplyTurnChanges(delta)
	if len(moved) > 0 || newEdge {
		// Moves and fresh edges can merge or split components; the
		// deferred regroup after the lock drops picks those up.
		slog.Info("world shape changed during turn", "group", groupName, "moved", len(moved), "new_edge", newEdge)
		regroup = true
	}
}

func (s *Scheduler) debugWrite(kind, stage, group string, turnNumber int, content string) {
	if s.debug == nil {
		return
	}
	s.debug.Write(kind, stage, group, turnNumber, content)
}
