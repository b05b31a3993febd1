package transport

import (
	"context"
	"sync"
)

// Fake is an in-memory Session driven by Sim* calls, used by tests and
// the headless test mode.
type Fake struct {
	events chan Event

	mu         sync.Mutex
	state      ConnState
	micEnabled bool
	micErr     error
	micCalls   []bool
	stats      Stats
	statsErr   error
	connects   int
	disconnect int
	joinState  string
}

func NewFake() *Fake {
	return &Fake{
		events:     make(chan Event, 256),
		micEnabled: true,
		statsErr:   ErrStatsUnavailable,
	}
}

func (f *Fake) Events() <-chan Event { return f.events }

func (f *Fake) Connect(_ context.Context) error {
	f.mu.Lock()
	f.connects++
	f.state = ConnConnected
	f.micEnabled = true
	join := f.joinState
	f.mu.Unlock()
	f.events <- Event{Kind: EventConnState, Conn: ConnConnecting}
	if join != "" {
		f.events <- Event{Kind: EventAgentState, AgentState: join}
	}
	f.events <- Event{Kind: EventConnState, Conn: ConnConnected}
	return nil
}

// SetAgentAtJoin makes later connects report an agent already in state
// before the connection completes, the way a room with a present agent
// does.
func (f *Fake) SetAgentAtJoin(state string) {
	f.mu.Lock()
	f.joinState = state
	f.mu.Unlock()
}

func (f *Fake) Disconnect() {
	f.mu.Lock()
	was := f.state
	f.state = ConnDisconnected
	f.disconnect++
	f.mu.Unlock()
	if was != ConnDisconnected {
		f.events <- Event{Kind: EventDisconnected, Reason: "client_initiated"}
	}
}

func (f *Fake) State() ConnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Fake) MicrophoneEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.micEnabled
}

func (f *Fake) SetMicrophoneEnabled(_ context.Context, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.micCalls = append(f.micCalls, enabled)
	if f.state != ConnConnected {
		return ErrNotConnected
	}
	if f.micErr != nil {
		return f.micErr
	}
	f.micEnabled = enabled
	return nil
}

func (f *Fake) Stats(_ context.Context) (Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != ConnConnected {
		return Stats{}, ErrNotConnected
	}
	if f.statsErr != nil {
		return Stats{}, f.statsErr
	}
	return f.stats, nil
}

// SetStats sets the snapshot returned by Stats and clears any stats error.
func (f *Fake) SetStats(st Stats) {
	f.mu.Lock()
	f.stats = st
	f.statsErr = nil
	f.mu.Unlock()
}

func (f *Fake) SetStatsErr(err error) {
	f.mu.Lock()
	f.statsErr = err
	f.mu.Unlock()
}

// FailMic makes SetMicrophoneEnabled return err until cleared with nil.
func (f *Fake) FailMic(err error) {
	f.mu.Lock()
	f.micErr = err
	f.mu.Unlock()
}

// MicCalls returns every value passed to SetMicrophoneEnabled, in order.
func (f *Fake) MicCalls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.micCalls))
	copy(out, f.micCalls)
	return out
}

func (f *Fake) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *Fake) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnect
}

func (f *Fake) SimSegments(local bool, segs ...Segment) {
	f.events <- Event{Kind: EventSegments, Segments: segs, Local: local}
}

func (f *Fake) SimAgentState(state string) {
	f.events <- Event{Kind: EventAgentState, AgentState: state}
}

// SimRemoteDisconnect drops the session as if the server closed it.
func (f *Fake) SimRemoteDisconnect(reason string) {
	f.mu.Lock()
	f.state = ConnDisconnected
	f.mu.Unlock()
	f.events <- Event{Kind: EventDisconnected, Reason: reason}
}

// Pending reports how many simulated events have not been consumed yet.
func (f *Fake) Pending() int { return len(f.events) }
