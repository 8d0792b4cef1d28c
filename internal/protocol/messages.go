// Package protocol defines the tagged lines of the client wire protocol.
// Every message is a single newline-terminated line whose first word is a
// tag the client routes on.
package protocol

import "strings"

// LineBreak substitutes for literal newlines inside one-line narration
// fragments; clients translate it back on render.
const LineBreak = "<<BR>>"

// Fixed system lines.
const (
	NarrationEnd    = "SYSTEM NARRATION_END"
	ThinkStart      = "SYSTEM THINK_START"
	StateThinkStart = "SYSTEM STATE_THINK_START"
)

func System(msg string) string {
	return "SYSTEM " + msg
}

func Error(msg string) string {
	return "ERROR " + msg
}

func Prompt(msg string) string {
	return "PROMPT " + msg
}

func Welcome(username string) string {
	return "WELCOME " + username
}

// Narrate wraps one streamed narration fragment, escaping embedded newlines
// so the fragment stays a single protocol line.
func Narrate(fragment string) string {
	return "NARRATE " + strings.ReplaceAll(fragment, "\n", LineBreak)
}

func Action(username, action string) string {
	return "ACTION " + username + ": " + action
}

func Chat(username, msg string) string {
	return "CHAT " + username + ": " + msg
}

// StateUpdate announces a game phase change ("LOBBY" or "ACTIVE").
func StateUpdate(phase string) string {
	return "SYSTEM STATE_UPDATE " + phase
}

// LobbyUpdate carries the current lobby roster.
func LobbyUpdate(usernames []string) string {
	return "LOBBY_UPDATE " + strings.Join(usernames, ",")
}
