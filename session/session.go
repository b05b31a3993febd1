// Package session defines the conversational state shared by the
// watchdog, the cue sequencer and the engine.
package session

import "strings"

type State int

const (
	Disconnected State = iota
	Connecting
	Listening
	Thinking
	Speaking
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Listening:
		return "listening"
	case Thinking:
		return "thinking"
	case Speaking:
		return "speaking"
	default:
		return "disconnected"
	}
}

// Active reports whether a session exists in this state.
func (s State) Active() bool { return s != Disconnected }

// FromAgent maps the agent's published state attribute. Unrecognised
// values report ok=false.
func FromAgent(attr string) (State, bool) {
	switch strings.ToLower(strings.TrimSpace(attr)) {
	case "initializing", "connecting":
		return Connecting, true
	case "listening":
		return Listening, true
	case "thinking":
		return Thinking, true
	case "speaking":
		return Speaking, true
	case "disconnected":
		return Disconnected, true
	}
	return Disconnected, false
}

// Parse accepts the names produced by String.
func Parse(s string) (State, bool) {
	if strings.EqualFold(strings.TrimSpace(s), "disconnected") {
		return Disconnected, true
	}
	st, ok := FromAgent(s)
	if !ok || st == Disconnected {
		return Disconnected, false
	}
	return st, true
}
