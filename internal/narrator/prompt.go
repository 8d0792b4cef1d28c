package narrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"aiquest/internal/game"
	"aiquest/internal/storage"
)

// elementCategories maps seed element categories to their prompt labels,
// in the order they are drawn.
var elementCategories = []struct {
	Key   string
	Label string
	Count int
}{
	{"sounds", "SOUND", 2},
	{"sights", "SIGHT", 1},
	{"sensations", "SENSATION", 1},
	{"psychological_effects", "EFFECT", 1},
	{"unsettling_discovery", "DISCOVERY", 1},
	{"warning_sign", "OMEN", 1},
	{"mysterious_encounter", "ENCOUNTER", 1},
}

const narratorInstruction = `You are the narrator of a grim survival-horror story. ` +
	`Continue the story for the group of players below. Write a single flowing passage of second-person ` +
	`present-tense prose reacting to every player's action. Never speak for the players, never break ` +
	`character, never mention rules or mechanics. Keep it under four paragraphs.`

const immersionPrinciples = `Establish the scene. Ground each player in the space with concrete sensory ` +
	`detail before anything threatens them. Let dread build from the mundane; nothing overtly ` +
	`supernatural happens yet.`

const narrativePrinciples = `Escalate tension. Every action has a consequence, however small. Reward ` +
	`curiosity with unsettling detail and punish recklessness with real danger. Keep all players ` +
	`involved even when only one acted.`

const mergeInstruction = `ATTENTION: REALITIES ARE MERGING. Groups of players existed on divergent ` +
	`timelines and have just met. Describe what everyone sees NOW, in the moment of the merge; your ` +
	`description becomes the single new truth. Reconcile the contradictions below without using the ` +
	`words "paradox" or "timeline".`

const stateInstruction = `Analyze the ORIGINAL STATE and the NEW NARRATION. Return a JSON object listing ` +
	`every change, strictly following the schema. Fill player_updates for each player whose inventory, ` +
	`status, or location changed. Use location_updates to revise or create locations. When a player walks ` +
	`into an adjacent space, move them with move_to_location and CREATE the connection if it is missing. ` +
	`When a player is transported unnaturally, move them WITHOUT creating a connection. When a passage ` +
	`collapses, DESTROY the connection. If nothing changed, return an empty JSON object {}.`

var narrationTemplate = template.Must(template.New("narration").Funcs(sprig.TxtFuncMap()).Parse(`### Instruction:

{{ .Instruction }}

### CURRENT STATE OF THE WORLD AND PLAYERS (JSON):

` + "```json\n{{ .StateJSON }}\n```" + `

### PLAYER ACTIONS THIS TURN:

{{ .Actions }}
{{- if .MergeConflicts }}

{{ .MergeInstruction }}

CONTRADICTIONS TO RESOLVE:
{{ .MergeConflicts }}
{{- end }}
{{- if .SceneFocus }}

### SCENE FOCUS (weave these in naturally):

{{ .SceneFocus }}
{{- end }}

### STORY SO FAR:

{{ .History }}

### DIRECTION:

{{ .Principles }}

### Response (narrative text only):
`))

var stateTemplate = template.Must(template.New("state").Funcs(sprig.TxtFuncMap()).Parse(`### Instruction:

{{ .Instruction }}

### JSON SCHEMA FOR THE RESPONSE:

` + "```json\n{{ .Schema }}\n```" + `

### ORIGINAL STATE (JSON):

` + "```json\n{{ .StateJSON }}\n```" + `

### NEW NARRATION TO ANALYZE:
---
{{ .Narration }}
---

### Response (one JSON object wrapped in ` + "```json ... ```" + `):
`))

// Builder renders narration and state-update prompts from turn snapshots.
// Story seeds supply the flavor elements injected during a location's
// opening turns.
type Builder struct {
	seeds storage.Storer[*game.StorySeed]

	mu   sync.Mutex
	rand *rand.Rand
}

func NewBuilder(seeds storage.Storer[*game.StorySeed]) *Builder {
	return &Builder{
		seeds: seeds,
		rand:  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

type statePlayer struct {
	Username      string              `json:"username"`
	Inventory     []string            `json:"inventory"`
	StatusEffects []game.StatusEffect `json:"status_effects"`
}

type stateLocation struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	PlayersPresent []string `json:"players_present"`
	TurnCount      int      `json:"turn_count"`
}

type stateDocument struct {
	LocationGroup []stateLocation `json:"location_group"`
	Connections   [][2]string     `json:"connections"`
	Players       []statePlayer   `json:"players"`
	WorldFlags    map[string]any  `json:"world_flags,omitempty"`
}

func stateJSON(snap *game.TurnSnapshot) (string, error) {
	doc := stateDocument{
		Connections: snap.Connections,
		WorldFlags:  snap.WorldFlags,
	}
	for _, loc := range snap.Locations {
		doc.LocationGroup = append(doc.LocationGroup, stateLocation{
			Name:           loc.Name,
			Description:    loc.Description,
			PlayersPresent: loc.Players,
			TurnCount:      loc.TurnCounter,
		})
	}
	for _, p := range snap.Players {
		doc.Players = append(doc.Players, statePlayer{
			Username:      p.Username,
			Inventory:     p.Inventory,
			StatusEffects: p.StatusEffects,
		})
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling state: %w", err)
	}
	return string(out), nil
}

// NarrationPrompt renders the narration prompt for a group snapshot. The
// returned focus location and element list identify flavor elements that
// must be marked used so later turns do not repeat them.
func (b *Builder) NarrationPrompt(snap *game.TurnSnapshot) (string, string, []string, error) {
	if len(snap.Locations) == 0 {
		return "", "", nil, fmt.Errorf("snapshot has no locations")
	}

	state, err := stateJSON(snap)
	if err != nil {
		return "", "", nil, err
	}

	// The first location anchors the group: its counter picks the
	// direction principles and its seed supplies scene focus elements.
	focus := snap.Locations[0]

	var used []string
	sceneFocus := ""
	if focus.TurnCounter < snap.Tunables.StoryInjectionTurns {
		if seed := b.seeds.Get(focus.Name); seed != nil {
			sceneFocus, used = b.pickFocusElements(seed, focus.UsedStoryElements, snap.Tunables.FearWeights)
		}
	}

	principles := narrativePrinciples
	if focus.TurnCounter < snap.Tunables.ImmersionTurns {
		principles = immersionPrinciples
	}

	data := struct {
		Instruction      string
		StateJSON        string
		Actions          string
		MergeInstruction string
		MergeConflicts   string
		SceneFocus       string
		History          string
		Principles       string
	}{
		Instruction:      narratorInstruction,
		StateJSON:        state,
		Actions:          formatActions(snap.Locations),
		MergeInstruction: mergeInstruction,
		MergeConflicts:   mergeConflicts(snap.Locations),
		SceneFocus:       sceneFocus,
		History:          formatHistory(snap.Locations, snap.Tunables.MaxHistoryChars),
		Principles:       principles,
	}

	var buf bytes.Buffer
	if err := narrationTemplate.Execute(&buf, data); err != nil {
		return "", "", nil, fmt.Errorf("executing narration template: %w", err)
	}
	return buf.String(), focus.Name, used, nil
}

// StatePrompt renders the change-extraction prompt for the narration that
// was just produced from the same snapshot.
func (b *Builder) StatePrompt(snap *game.TurnSnapshot, narration string) (string, error) {
	state, err := stateJSON(snap)
	if err != nil {
		return "", err
	}

	data := struct {
		Instruction string
		Schema      string
		StateJSON   string
		Narration   string
	}{
		Instruction: stateInstruction,
		Schema:      game.TurnDeltaSchema(),
		StateJSON:   state,
		Narration:   narration,
	}

	var buf bytes.Buffer
	if err := stateTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing state template: %w", err)
	}
	return buf.String(), nil
}

// formatActions lists every pending action across the group.
func formatActions(locs []game.LocationSnapshot) string {
	var names []string
	actions := map[string]string{}
	for _, loc := range locs {
		for username, action := range loc.PendingActions {
			if _, ok := actions[username]; !ok {
				names = append(names, username)
			}
			actions[username] = action
		}
	}
	if len(names) == 0 {
		return "- The players stand idle, looking around."
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, username := range names {
		fmt.Fprintf(&sb, "- %s: %s\n", username, actions[username])
	}
	return strings.TrimRight(sb.String(), "\n")
}

// formatHistory concatenates per-location history, newest last, trimmed to
// the configured character budget from the front.
func formatHistory(locs []game.LocationSnapshot, maxChars int) string {
	const recentEntries = 15

	var parts []string
	for _, loc := range locs {
		entries := loc.History
		if len(entries) > recentEntries {
			entries = entries[len(entries)-recentEntries:]
		}
		lines := make([]string, 0, len(entries))
		for _, e := range entries {
			lines = append(lines, e.String())
		}
		parts = append(parts, fmt.Sprintf("#### From location: %s\n%s", loc.Name, strings.Join(lines, "\n")))
	}
	history := strings.Join(parts, "\n\n")

	if maxChars > 0 && len(history) > maxChars {
		trimmed := history[len(history)-maxChars:]
		if idx := strings.Index(trimmed, "\n"); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
		history = "[...earlier history trimmed...]\n" + trimmed
	}
	return history
}

// mergeConflicts renders contradictory location descriptions for a merged
// group. Groups whose counters agree produce nothing.
func mergeConflicts(locs []game.LocationSnapshot) string {
	counters := map[int]struct{}{}
	for _, loc := range locs {
		counters[loc.TurnCounter] = struct{}{}
	}
	if len(counters) < 2 {
		return ""
	}

	descs := map[string][]string{}
	var names []string
	for _, loc := range locs {
		if _, ok := descs[loc.Name]; !ok {
			names = append(names, loc.Name)
		}
		descs[loc.Name] = append(descs[loc.Name], loc.Description)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		unique := map[string]struct{}{}
		for _, d := range descs[name] {
			unique[d] = struct{}{}
		}
		if len(unique) < 2 {
			continue
		}
		fmt.Fprintf(&sb, "Location %q has conflicting descriptions:\n", name)
		versions := make([]string, 0, len(unique))
		for d := range unique {
			versions = append(versions, d)
		}
		sort.Strings(versions)
		for _, d := range versions {
			if len(d) > 150 {
				d = d[:150] + "..."
			}
			fmt.Fprintf(&sb, "  - Version: %q\n", d)
		}
	}
	if sb.Len() == 0 {
		return "The groups lived through a different number of turns. Blend their experiences into one present moment."
	}
	return strings.TrimRight(sb.String(), "\n")
}

// pickFocusElements draws scene elements from a seed's pools. Categories
// are filled in a fixed shape; the fear bucket for each draw is picked by
// weight, falling back to any bucket with unused items left.
func (b *Builder) pickFocusElements(seed *game.StorySeed, alreadyUsed map[string]struct{}, weights map[string]int) (string, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	used := make(map[string]struct{}, len(alreadyUsed))
	for k := range alreadyUsed {
		used[k] = struct{}{}
	}

	var lines []string
	var chosen []string
	for _, cat := range elementCategories {
		for i := 0; i < cat.Count; i++ {
			item := b.drawItem(seed, cat.Key, used, weights)
			if item == "" {
				slog.Warn("story element pool exhausted", "category", cat.Key)
				continue
			}
			lines = append(lines, fmt.Sprintf("- %s: %s", cat.Label, item))
			used[item] = struct{}{}
			chosen = append(chosen, item)
		}
	}
	return strings.Join(lines, "\n"), chosen
}

func (b *Builder) drawItem(seed *game.StorySeed, category string, used map[string]struct{}, weights map[string]int) string {
	if fear := b.weightedFear(weights); fear != "" {
		if item := b.randomUnused(poolFor(seed, fear, category), used); item != "" {
			return item
		}
	}

	// Weighted pick came up empty; scan the remaining buckets in random
	// order.
	order := append([]string(nil), game.FearCategories...)
	b.rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	for _, fear := range order {
		if item := b.randomUnused(poolFor(seed, fear, category), used); item != "" {
			return item
		}
	}
	return ""
}

func (b *Builder) weightedFear(weights map[string]int) string {
	total := 0
	for _, fear := range game.FearCategories {
		total += weights[fear]
	}
	if total <= 0 {
		return ""
	}

	n := b.rand.IntN(total)
	for _, fear := range game.FearCategories {
		n -= weights[fear]
		if n < 0 {
			return fear
		}
	}
	return ""
}

func (b *Builder) randomUnused(pool []string, used map[string]struct{}) string {
	available := make([]string, 0, len(pool))
	for _, item := range pool {
		if _, ok := used[item]; !ok {
			available = append(available, item)
		}
	}
	if len(available) == 0 {
		return ""
	}
	return available[b.rand.IntN(len(available))]
}

// poolFor prefers the curated details pool and falls back to events.
func poolFor(seed *game.StorySeed, fear, category string) []string {
	if pool, ok := seed.Details[fear]; ok {
		if items, ok := pool[category]; ok && len(items) > 0 {
			return items
		}
	}
	if pool, ok := seed.Events[fear]; ok {
		return pool[category]
	}
	return nil
}
