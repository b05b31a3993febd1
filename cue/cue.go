// Package cue plays the audible session cues and keeps the microphone
// consistent around them.
package cue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"parley/beep"
	"parley/log"
	"parley/schedule"
	"parley/session"
	"parley/transport"
)

const DefaultReadyDelay = 500 * time.Millisecond

const micTimeout = 2 * time.Second

type Player interface {
	Play(beep.Cue) error
}

// Mic is the part of a transport session the cues need.
type Mic interface {
	State() transport.ConnState
	MicrophoneEnabled() bool
	SetMicrophoneEnabled(ctx context.Context, enabled bool) error
}

// MicGuard serializes microphone changes between the cue sequence and
// push-to-talk. Failed mutes leave the microphone enabled.
type MicGuard struct {
	mu  sync.Mutex
	mic Mic
}

func NewMicGuard(mic Mic) *MicGuard {
	return &MicGuard{mic: mic}
}

func (g *MicGuard) Enabled() bool { return g.mic.MicrophoneEnabled() }

func (g *MicGuard) Set(ctx context.Context, enabled bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.mic.SetMicrophoneEnabled(ctx, enabled)
	if err != nil && !enabled {
		g.forceOn(ctx)
	}
	return err
}

// WhileMuted mutes the microphone and runs fn. If muting fails, fn fails
// or fn panics, the microphone is forced back on and the error returned.
// On success the microphone is left muted.
func (g *MicGuard) WhileMuted(ctx context.Context, fn func() error) (err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			g.forceOn(ctx)
		}
	}()
	if err := g.mic.SetMicrophoneEnabled(ctx, false); err != nil {
		return fmt.Errorf("mute microphone: %w", err)
	}
	return fn()
}

// ForceOn enables the microphone, logging rather than returning failure.
func (g *MicGuard) ForceOn(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forceOn(ctx)
}

func (g *MicGuard) forceOn(ctx context.Context) {
	if err := g.mic.SetMicrophoneEnabled(ctx, true); err != nil {
		log.Warnf("force microphone on: %v", err)
	}
}

type Options struct {
	ReadyDelay time.Duration
	// PushToTalk leaves the microphone muted after the ready cue.
	PushToTalk bool
}

// Sequencer plays the ready cue the first time a connection reaches
// listening and the stop cue whenever the transport disconnects.
type Sequencer struct {
	guard  *MicGuard
	player Player
	sched  *schedule.Scheduler
	opts   Options
	async  func(func())

	mu          sync.Mutex
	readyPlayed bool
	gen         uint64 // bumped per connection
	pending     schedule.Task
}

func New(guard *MicGuard, player Player, sched *schedule.Scheduler, opts Options) *Sequencer {
	if opts.ReadyDelay <= 0 {
		opts.ReadyDelay = DefaultReadyDelay
	}
	return &Sequencer{
		guard:  guard,
		player: player,
		sched:  sched,
		opts:   opts,
		async:  func(f func()) { go f() },
	}
}

// OnState is called for every session state transition.
func (s *Sequencer) OnState(next session.State) {
	if next != session.Listening {
		return
	}
	s.mu.Lock()
	if s.readyPlayed {
		s.mu.Unlock()
		return
	}
	s.readyPlayed = true
	gen := s.gen
	s.mu.Unlock()

	s.async(func() { s.playReady(gen) })
}

func (s *Sequencer) playReady(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), micTimeout)
	defer cancel()

	err := s.guard.WhileMuted(ctx, func() error {
		return s.player.Play(beep.Ready)
	})
	if err != nil {
		log.CueFailed(beep.Ready.String(), err)
		return
	}
	if s.opts.PushToTalk {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		// disconnected while the cue played
		return
	}
	s.pending = s.sched.After(s.opts.ReadyDelay, func() {
		s.mu.Lock()
		current := s.gen == gen
		s.pending = nil
		s.mu.Unlock()
		if !current || s.guard.mic.State() != transport.ConnConnected {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), micTimeout)
		defer cancel()
		if err := s.guard.Set(ctx, true); err != nil {
			log.Warnf("re-enable microphone after ready cue: %v", err)
			s.guard.ForceOn(ctx)
		}
	})
}

// OnDisconnect plays the stop cue and re-arms the ready cue for the next
// connection.
func (s *Sequencer) OnDisconnect() {
	s.mu.Lock()
	s.readyPlayed = false
	s.gen++
	if s.pending != nil {
		s.pending.Cancel()
		s.pending = nil
	}
	s.mu.Unlock()

	s.async(func() {
		if err := s.player.Play(beep.Stop); err != nil {
			log.CueFailed(beep.Stop.String(), err)
		}
	})
}

// Warn plays the warning cue.
func (s *Sequencer) Warn() {
	s.async(func() {
		if err := s.player.Play(beep.Warn); err != nil {
			log.CueFailed(beep.Warn.String(), err)
		}
	})
}

// Teardown cancels a pending microphone re-enable.
func (s *Sequencer) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.pending != nil {
		s.pending.Cancel()
		s.pending = nil
	}
}

// ReadyPlayed reports whether the ready cue fired for the current connection.
func (s *Sequencer) ReadyPlayed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyPlayed
}
