package game

import "strings"

// HistoryKind tags entries in a location's conversation log.
type HistoryKind string

const (
	HistorySystem    HistoryKind = "SYSTEM"
	HistoryAction    HistoryKind = "ACTION"
	HistoryNarration HistoryKind = "NARRATE"
)

type HistoryEntry struct {
	Kind HistoryKind
	Text string
}

func (e HistoryEntry) String() string {
	return string(e.Kind) + " " + e.Text
}

// Location is a shared space in the world graph. Locations are created
// lazily on first reference and never destroyed. All fields are guarded by
// the owning World's mutex.
type Location struct {
	Name              string
	Description       string
	PlayersPresent    map[string]struct{}
	History           []HistoryEntry
	UsedStoryElements map[string]struct{}
	TurnCounter       int
	PendingActions    map[string]string
}

func newLocation(name, description string) *Location {
	l := &Location{
		Name:              name,
		Description:       description,
		PlayersPresent:    map[string]struct{}{},
		UsedStoryElements: map[string]struct{}{},
		PendingActions:    map[string]string{},
	}
	l.addSystem("The world around you: " + description)
	return l
}

func (l *Location) addPlayer(username string) {
	l.PlayersPresent[username] = struct{}{}
	l.addSystem(username + " appears.")
}

func (l *Location) removePlayer(username string) {
	delete(l.PlayersPresent, username)
	delete(l.PendingActions, username)
	l.addSystem(username + " vanishes.")
}

func (l *Location) addAction(username, action string) {
	l.History = append(l.History, HistoryEntry{Kind: HistoryAction, Text: username + ": " + action})
}

func (l *Location) addNarration(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	l.History = append(l.History, HistoryEntry{Kind: HistoryNarration, Text: text})
}

func (l *Location) addSystem(msg string) {
	l.History = append(l.History, HistoryEntry{Kind: HistorySystem, Text: msg})
}

// clearTurnData drops the pending action buffer at the end of a turn.
func (l *Location) clearTurnData() {
	clear(l.PendingActions)
}
