package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"parley/engine"
	"parley/log"
	"parley/nethealth"
	"parley/session"
)

// printer renders engine updates as plain lines: state and network
// changes, and each finalized transcript entry once.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	state   session.State
	health  nethealth.Health
	printed map[string]string
	noAgent bool

	active bool // saw a non-disconnected state
	ended  chan struct{}
	once   sync.Once
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, printed: make(map[string]string), ended: make(chan struct{})}
}

func (p *printer) Notice(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, text)
}

func (p *printer) Snapshot(s engine.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.State != p.state {
		fmt.Fprintf(p.out, "[state] %s\n", s.State)
		p.state = s.State
		if s.State.Active() {
			p.active = true
		} else if p.active {
			p.once.Do(func() { close(p.ended) })
		}
	}
	if s.Report.Health != p.health {
		if detail := s.Report.String(); detail != "" {
			fmt.Fprintf(p.out, "[network] %s (%s)\n", s.Report.Health, detail)
		} else {
			fmt.Fprintf(p.out, "[network] %s\n", s.Report.Health)
		}
		p.health = s.Report.Health
	}
	if s.NoAgent && !p.noAgent {
		fmt.Fprintln(p.out, "[warn] no agent has joined the room")
	}
	p.noAgent = s.NoAgent

	for _, e := range s.Entries {
		if !e.Final || p.printed[e.Key] == e.Text {
			continue
		}
		p.printed[e.Key] = e.Text
		fmt.Fprintf(p.out, "%s: %s\n", e.Speaker, e.Text)
	}
}

// Ended is closed once a session that was started has disconnected.
func (p *printer) Ended() <-chan struct{} { return p.ended }

// runHeadless joins the room, prints the conversation and returns when it
// ends or ctx is cancelled.
func runHeadless(ctx context.Context, eng *engine.Engine, out io.Writer) int {
	p := newPrinter(out)
	pumpCtx, stop := context.WithCancel(ctx)
	defer stop()
	go pump(pumpCtx, eng, p)

	if err := eng.Connect(ctx); err != nil {
		log.Errorf("connect: %v", err)
		fmt.Fprintf(out, "Error: %v\n", err)
		return 1
	}
	select {
	case <-ctx.Done():
		eng.Disconnect()
	case <-p.Ended():
	}
	return 0
}
