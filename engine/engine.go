// Package engine wires the transcript, health, watchdog and cue
// components around one transport session and serializes everything they
// react to on a single event loop.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"parley/beep"
	"parley/config"
	"parley/cue"
	"parley/langgate"
	"parley/log"
	"parley/nethealth"
	"parley/schedule"
	"parley/session"
	"parley/transcript"
	"parley/transport"
	"parley/watchdog"
)

const micTimeout = 2 * time.Second

type Options struct {
	Clock clock.Clock

	Mode     transcript.Mode
	LangGate *langgate.Gate // nil disables filtering

	Thresholds   nethealth.Thresholds
	PollInterval time.Duration

	IdleTimeout      time.Duration
	ReadyDelay       time.Duration
	AgentJoinTimeout time.Duration

	Player     cue.Player // nil disables cues
	PushToTalk bool
}

// OptionsFromConfig builds engine options from validated configuration.
func OptionsFromConfig(cfg config.Config, player cue.Player) (Options, error) {
	mode, err := cfg.TranscriptMode()
	if err != nil {
		return Options{}, err
	}
	var gate *langgate.Gate
	if cfg.LangGate.Enabled {
		allowed, err := cfg.AllowedScripts()
		if err != nil {
			return Options{}, err
		}
		gate = langgate.New(allowed)
	}
	if !cfg.Cues {
		player = nil
	}
	return Options{
		Mode:             mode,
		LangGate:         gate,
		Thresholds:       cfg.Thresholds(),
		PollInterval:     cfg.Health.PollInterval,
		IdleTimeout:      cfg.IdleTimeout,
		ReadyDelay:       cfg.ReadyDelay,
		AgentJoinTimeout: cfg.AgentJoinTimeout,
		Player:           player,
		PushToTalk:       cfg.PTT.Enabled,
	}, nil
}

// Snapshot is the read-only view the UI renders.
type Snapshot struct {
	State      session.State
	Conn       transport.ConnState
	Entries    []transcript.Entry
	Report     nethealth.Report
	MicEnabled bool
	NoAgent    bool // connected but no agent joined in time
}

type Engine struct {
	sess  transport.Session
	opts  Options
	clk   clock.Clock
	sched *schedule.Scheduler

	reconciler *transcript.Reconciler
	monitor    *nethealth.Monitor
	watchdog   *watchdog.Watchdog
	guard      *cue.MicGuard
	cues       *cue.Sequencer

	cmds    chan func()
	updates chan struct{}

	// owned by the loop; mu guards reads from Snapshot
	mu        sync.Mutex
	state     session.State
	conn      transport.ConnState
	noAgent   bool
	endReason string
	loggedFin map[string]string

	// agent state reported before the room finished connecting
	pendingAgent session.State
	hasPending   bool

	sessionTasks []schedule.Task
}

type noCues struct{}

func (noCues) Play(beep.Cue) error { return nil }

func New(sess transport.Session, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = nethealth.DefaultInterval
	}
	if opts.AgentJoinTimeout <= 0 {
		opts.AgentJoinTimeout = 10 * time.Second
	}
	player := opts.Player
	if player == nil {
		player = noCues{}
	}

	e := &Engine{
		sess:       sess,
		opts:       opts,
		clk:        opts.Clock,
		sched:      schedule.New(opts.Clock),
		reconciler: transcript.NewReconciler(opts.Clock, opts.Mode),
		watchdog:   watchdog.New(opts.IdleTimeout),
		guard:      cue.NewMicGuard(sess),
		cmds:       make(chan func(), 64),
		updates:    make(chan struct{}, 1),
		loggedFin:  make(map[string]string),
	}
	e.monitor = nethealth.NewMonitor(sess, opts.Thresholds, func(nethealth.Report) { e.notify() })
	e.cues = cue.New(e.guard, player, e.sched, cue.Options{
		ReadyDelay: opts.ReadyDelay,
		PushToTalk: opts.PushToTalk,
	})
	return e
}

// Updates signals (coalesced) whenever the snapshot may have changed.
func (e *Engine) Updates() <-chan struct{} { return e.updates }

func (e *Engine) notify() {
	select {
	case e.updates <- struct{}{}:
	default:
	}
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	s := Snapshot{State: e.state, Conn: e.conn, NoAgent: e.noAgent}
	// entries and gate are reset together under mu on a new connection
	s.Entries = e.reconciler.Entries()
	if e.opts.LangGate != nil {
		s.Entries = e.opts.LangGate.Filter(s.Entries)
	}
	e.mu.Unlock()

	s.Report = e.monitor.Report()
	s.MicEnabled = e.sess.MicrophoneEnabled()
	return s
}

// Connect starts a new session. Progress arrives as transport events.
func (e *Engine) Connect(ctx context.Context) error {
	return e.sess.Connect(ctx)
}

func (e *Engine) Disconnect() {
	e.mu.Lock()
	e.endReason = "user"
	e.mu.Unlock()
	e.sess.Disconnect()
}

// Talk opens or closes the microphone for push-to-talk.
func (e *Engine) Talk(on bool) {
	e.post(func() {
		if e.conn != transport.ConnConnected {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), micTimeout)
			defer cancel()
			if err := e.guard.Set(ctx, on); err != nil {
				log.Warnf("push-to-talk mic %v: %v", on, err)
			}
			e.notify()
		}()
	})
}

// Sync blocks until the loop has run every command posted before it.
// Transport events are not ordered against commands.
func (e *Engine) Sync(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case e.cmds <- func() { close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) post(fn func()) {
	select {
	case e.cmds <- fn:
	default:
		log.Warn("engine command queue full, dropping command")
	}
}

// Run processes events until ctx is cancelled, then tears the session
// down.
func (e *Engine) Run(ctx context.Context) error {
	defer e.shutdown()
	events := e.sess.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.handleEvent(ev)
		case fn := <-e.cmds:
			fn()
		}
	}
}

func (e *Engine) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnState:
		e.onConnState(ev.Conn)
	case transport.EventAgentState:
		st, ok := session.FromAgent(ev.AgentState)
		if !ok || st == session.Disconnected {
			return
		}
		switch e.conn {
		case transport.ConnConnected:
			e.setState(st)
		case transport.ConnConnecting:
			e.pendingAgent, e.hasPending = st, true
		}
	case transport.EventSegments:
		e.onSegments(ev.Segments, ev.Local)
	case transport.EventDisconnected:
		e.onDisconnected(ev.Reason)
	}
	e.notify()
}

func (e *Engine) onConnState(c transport.ConnState) {
	e.mu.Lock()
	e.conn = c
	e.mu.Unlock()

	switch c {
	case transport.ConnConnecting:
		e.loggedFin = make(map[string]string)
		e.hasPending = false
		e.mu.Lock()
		e.reconciler.Reset()
		if e.opts.LangGate != nil {
			e.opts.LangGate.Reset()
		}
		e.noAgent = false
		e.endReason = ""
		e.mu.Unlock()
		e.setState(session.Connecting)
	case transport.ConnConnected:
		e.startSession()
	}
}

func (e *Engine) startSession() {
	e.cancelSessionTasks()
	e.watchdog.Arm(e.clk.Now())
	e.monitor.Start(e.sched, e.opts.PollInterval)
	if e.hasPending {
		e.hasPending = false
		e.setState(e.pendingAgent)
	}

	e.sessionTasks = append(e.sessionTasks,
		e.sched.Every(watchdog.TickInterval, func(now time.Time) {
			e.post(func() { e.tickWatchdog(now) })
		}),
	)
	if e.state == session.Connecting {
		e.sessionTasks = append(e.sessionTasks,
			e.sched.After(e.opts.AgentJoinTimeout, func() {
				e.post(e.checkAgentJoined)
			}),
		)
	}
}

func (e *Engine) checkAgentJoined() {
	if e.state != session.Connecting || e.conn != transport.ConnConnected {
		return
	}
	e.mu.Lock()
	e.noAgent = true
	e.mu.Unlock()
	log.NoAgent(e.opts.AgentJoinTimeout)
	e.cues.Warn()
	e.notify()
}

func (e *Engine) tickWatchdog(now time.Time) {
	if !e.watchdog.Tick(now, e.state) {
		return
	}
	log.IdleDisconnect(now.Sub(e.watchdog.LastActivity()))
	e.mu.Lock()
	e.endReason = "idle"
	e.mu.Unlock()
	go e.sess.Disconnect()
}

func (e *Engine) onSegments(segs []transport.Segment, local bool) {
	in := make([]transcript.Segment, 0, len(segs))
	for _, s := range segs {
		in = append(in, transcript.Segment{ID: s.ID, Text: s.Text, Final: s.Final, Local: local, Language: s.Language})
	}
	entry, changed := e.reconciler.ApplyDelivery(in)
	if !changed {
		return
	}
	e.watchdog.Touch(e.clk.Now())
	if entry.Final && e.loggedFin[entry.Key] != entry.Text {
		e.loggedFin[entry.Key] = entry.Text
		log.TranscriptLine(entry.Speaker, entry.Text)
	}
}

func (e *Engine) setState(next session.State) {
	e.mu.Lock()
	prev := e.state
	if prev == next {
		e.mu.Unlock()
		return
	}
	e.state = next
	if next != session.Connecting {
		e.noAgent = false
	}
	e.mu.Unlock()

	log.StateChange(prev.String(), next.String())
	if next == session.Speaking {
		e.watchdog.Touch(e.clk.Now())
	}
	e.cues.OnState(next)
}

func (e *Engine) onDisconnected(reason string) {
	e.mu.Lock()
	if e.endReason != "" {
		reason = e.endReason
	}
	e.conn = transport.ConnDisconnected
	e.endReason = ""
	e.noAgent = false
	e.mu.Unlock()
	e.hasPending = false

	e.teardown()
	e.setState(session.Disconnected)
	e.cues.OnDisconnect()
	log.SessionEnd(e.reconciler.Len(), reason)
}

func (e *Engine) teardown() {
	e.cancelSessionTasks()
	e.watchdog.Disarm()
	e.monitor.Stop()
	e.cues.Teardown()
}

func (e *Engine) cancelSessionTasks() {
	for _, t := range e.sessionTasks {
		t.Cancel()
	}
	e.sessionTasks = nil
}

func (e *Engine) shutdown() {
	if e.conn != transport.ConnDisconnected {
		e.sess.Disconnect()
	}
	e.teardown()
	e.sched.CancelAll()
}
