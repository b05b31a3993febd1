// Package transport defines the media-session capability the client
// consumes (connect, microphone, statistics, transcription events) and
// its LiveKit implementation.
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotConnected     = errors.New("transport: not connected")
	ErrStatsUnavailable = errors.New("transport: statistics unavailable")
)

type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnConnected
	ConnReconnecting
)

func (s ConnState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Segment is one speech-recognition update for an utterance.
type Segment struct {
	ID       string // may be empty
	Text     string
	Final    bool
	Language string
}

// Stats is a snapshot of the transport's receive-side statistics.
// Packet counters are cumulative since the session started.
type Stats struct {
	RTT       time.Duration
	HasRTT    bool
	Jitter    time.Duration
	HasJitter bool

	PacketsReceived uint64
	PacketsLost     int64
	HasPackets      bool
}

type EventKind int

const (
	EventSegments EventKind = iota
	EventAgentState
	EventConnState
	EventDisconnected
)

// Event is delivered on Session.Events. Only the fields relevant to Kind
// are set.
type Event struct {
	Kind EventKind

	// EventSegments
	Segments []Segment
	Local    bool

	// EventAgentState: raw agent state attribute ("listening", ...)
	AgentState string

	// EventConnState
	Conn ConnState

	// EventDisconnected
	Reason string
}

// Session is the media-transport session handle shared by the engine's
// components.
type Session interface {
	Connect(ctx context.Context) error
	Disconnect()
	State() ConnState
	MicrophoneEnabled() bool
	SetMicrophoneEnabled(ctx context.Context, enabled bool) error
	Stats(ctx context.Context) (Stats, error)
	Events() <-chan Event
}
