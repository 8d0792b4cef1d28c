package game

import (
	"strings"
	"testing"

	"github.com/pixil98/go-testutil"
)

// activeWorld builds an active world with the given players in the start
// location.
func activeWorld(t *testing.T, players ...string) *World {
	t.Helper()
	w := NewWorld(8, "metro", nil)
	for _, u := range players {
		if err := w.AddPlayer(u); err != nil {
			t.Fatalf("adding %q: %v", u, err)
		}
	}
	w.StartGame()
	return w
}

func TestMakeGroupKey(t *testing.T) {
	testutil.AssertEqual(t, "sorted input", MakeGroupKey([]string{"a", "b"}), GroupKey("a|b"))
	testutil.AssertEqual(t, "unsorted input", MakeGroupKey([]string{"b", "a"}), GroupKey("a|b"))
	testutil.AssertEqual(t, "single", MakeGroupKey([]string{"metro"}), GroupKey("metro"))
}

func TestWorld_PartitionGroups(t *testing.T) {
	w := activeWorld(t, "alice", "bob", "carol")

	// Move carol to a disconnected location.
	w.ApplyTurnChanges(&TurnDelta{
		PlayerUpdates: []PlayerUpdate{{Username: "carol", MoveToLocation: "vault"}},
	})

	groups := w.PartitionGroups()
	testutil.AssertEqual(t, "group count", len(groups), 2)

	testutil.AssertEqual(t, "first group locations", strings.Join(groups[0].Locations, ","), "metro")
	testutil.AssertEqual(t, "first group players", strings.Join(groups[0].Players, ","), "alice,bob")
	testutil.AssertEqual(t, "second group locations", strings.Join(groups[1].Locations, ","), "vault")
	testutil.AssertEqual(t, "second group players", strings.Join(groups[1].Players, ","), "carol")
}

func TestWorld_PartitionGroups_PendingAndActed(t *testing.T) {
	w := activeWorld(t, "alice", "bob")

	if _, err := w.RecordAction("alice", "listen at the door"); err != nil {
		t.Fatal(err)
	}

	groups := w.PartitionGroups()
	testutil.AssertEqual(t, "group count", len(groups), 1)
	testutil.AssertEqual(t, "pending", groups[0].Pending, 1)
	testutil.AssertEqual(t, "acted", strings.Join(groups[0].Acted, ","), "alice")
	testutil.AssertEqual(t, "not a merge", groups[0].IsMerge(), false)
}

func TestWorld_PartitionGroups_MergeDetection(t *testing.T) {
	w := activeWorld(t, "alice")
	w.ApplyTurnChanges(&TurnDelta{
		PlayerUpdates: []PlayerUpdate{{Username: "alice", MoveToLocation: "vault"}},
	})
	if err := w.AddPlayer("bob"); err != nil {
		t.Fatal(err)
	}

	// Let the two regions drift apart in time, then join them.
	w.AdvanceTurnCounters([]string{"metro"})
	w.AdvanceTurnCounters([]string{"metro"})
	w.AdvanceTurnCounters([]string{"metro"})
	w.AdvanceTurnCounters([]string{"vault"})
	w.Connect("metro", "vault")

	groups := w.PartitionGroups()
	testutil.AssertEqual(t, "group count", len(groups), 1)
	testutil.AssertEqual(t, "counter count", len(groups[0].Counters), 2)
	testutil.AssertEqual(t, "low counter", groups[0].Counters[0], 1)
	testutil.AssertEqual(t, "high counter", groups[0].Counters[1], 3)
	testutil.AssertEqual(t, "merge", groups[0].IsMerge(), true)
}

func TestWorld_TurnCounters(t *testing.T) {
	w := activeWorld(t, "alice")
	w.GetOrCreateLocation("tunnel")
	locs := []string{"metro", "tunnel"}

	w.AdvanceTurnCounters(locs)
	w.AdvanceTurnCounters([]string{"tunnel"})
	testutil.AssertEqual(t, "max", w.MaxTurnCounter(locs), 2)

	final := w.SyncTurnCounters(locs)
	testutil.AssertEqual(t, "synced value", final, 3)
	testutil.AssertEqual(t, "max after sync", w.MaxTurnCounter(locs), 3)
	testutil.AssertEqual(t, "metro counter", w.MaxTurnCounter([]string{"metro"}), 3)
}

func TestWorld_TickStatusEffects(t *testing.T) {
	w := activeWorld(t, "alice")

	two := 2
	w.ApplyTurnChanges(&TurnDelta{
		PlayerUpdates: []PlayerUpdate{{
			Username: "alice",
			StatusUpdate: []StatusEffect{
				{Name: "bleeding", DurationTurns: &two},
			},
		}},
	})

	msgs := w.TickStatusEffects([]string{"metro"})
	testutil.AssertEqual(t, "no expiry yet", len(msgs), 0)

	msgs = w.TickStatusEffects([]string{"metro"})
	testutil.AssertEqual(t, "expiry message count", len(msgs), 1)
	testutil.AssertEqual(t, "expiry message", msgs[0], "The effect 'bleeding' on alice has worn off.")

	p, _ := w.PlayerView("alice")
	testutil.AssertEqual(t, "effect count", len(p.StatusEffects), 1)
	testutil.AssertEqual(t, "healthy fallback", p.StatusEffects[0].Name, "healthy")
}

func TestWorld_TickStatusEffects_PermanentEffectsSurvive(t *testing.T) {
	w := activeWorld(t, "alice")

	w.ApplyTurnChanges(&TurnDelta{
		PlayerUpdates: []PlayerUpdate{{
			Username: "alice",
			StatusUpdate: []StatusEffect{
				{Name: "marked", Description: "Something knows your name."},
			},
		}},
	})

	for i := 0; i < 3; i++ {
		w.TickStatusEffects([]string{"metro"})
	}

	p, _ := w.PlayerView("alice")
	testutil.AssertEqual(t, "effect name", p.StatusEffects[0].Name, "marked")
}

func TestWorld_FillIdleActions(t *testing.T) {
	w := activeWorld(t, "alice", "bob")
	if _, err := w.RecordAction("alice", "listen"); err != nil {
		t.Fatal(err)
	}

	idled := w.FillIdleActions([]string{"metro"})
	testutil.AssertEqual(t, "idled players", strings.Join(idled, ","), "bob")

	groups := w.PartitionGroups()
	testutil.AssertEqual(t, "pending covers everyone", groups[0].Pending, 2)

	// A second pass finds nobody left to idle.
	testutil.AssertEqual(t, "second pass", len(w.FillIdleActions([]string{"metro"})), 0)
}

func TestWorld_SeedPendingActions(t *testing.T) {
	w := activeWorld(t, "alice", "bob")

	w.SeedPendingActions([]string{"metro"}, "looks around")

	groups := w.PartitionGroups()
	testutil.AssertEqual(t, "pending", groups[0].Pending, 2)

	// Seeding does not echo actions into the history.
	snap := w.Snapshot([]string{"metro"})
	for _, e := range snap.Locations[0].History {
		if e.Kind == HistoryAction {
			t.Errorf("unexpected action history entry: %v", e)
		}
	}
}

func TestWorld_ClearPending(t *testing.T) {
	w := activeWorld(t, "alice")
	if _, err := w.RecordAction("alice", "look"); err != nil {
		t.Fatal(err)
	}

	w.ClearPending([]string{"metro"})

	groups := w.PartitionGroups()
	testutil.AssertEqual(t, "pending cleared", groups[0].Pending, 0)

	// The player can act again next turn.
	if _, err := w.RecordAction("alice", "move on"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWorld_Snapshot(t *testing.T) {
	w := activeWorld(t, "alice", "bob")
	w.Connect("metro", "tunnel")
	if _, err := w.RecordAction("alice", "look"); err != nil {
		t.Fatal(err)
	}

	snap := w.Snapshot([]string{"metro", "tunnel"})

	testutil.AssertEqual(t, "locations", len(snap.Locations), 2)
	testutil.AssertEqual(t, "connection count", len(snap.Connections), 1)
	testutil.AssertEqual(t, "connection", snap.Connections[0], [2]string{"metro", "tunnel"})
	testutil.AssertEqual(t, "players", len(snap.Players), 2)
	testutil.AssertEqual(t, "pending", snap.Locations[0].PendingActions["alice"], "look")

	// Mutating the snapshot must not leak back into the world.
	snap.Locations[0].PendingActions["alice"] = "tampered"
	groups := w.PartitionGroups()
	testutil.AssertEqual(t, "world unaffected", groups[0].Pending, 1)
	fresh := w.Snapshot([]string{"metro"})
	testutil.AssertEqual(t, "fresh copy", fresh.Locations[0].PendingActions["alice"], "look")
}

func TestWorld_MarkStoryElementsUsed(t *testing.T) {
	w := activeWorld(t, "alice")

	w.MarkStoryElementsUsed("metro", []string{"dripping water", "a distant hum"})

	snap := w.Snapshot([]string{"metro"})
	testutil.AssertEqual(t, "used count", len(snap.Locations[0].UsedStoryElements), 2)

	// Unknown locations are ignored.
	w.MarkStoryElementsUsed("nowhere", []string{"nothing"})
}
