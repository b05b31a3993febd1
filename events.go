package main

import (
	"context"

	"parley/engine"
)

// EventSink abstracts the display layer so both the Bubble Tea TUI
// and the plain-text printer receive the same engine updates.
type EventSink interface {
	Snapshot(s engine.Snapshot)
	Notice(text string)
}

// pump feeds sink the current snapshot and then one per engine update
// until ctx is done.
func pump(ctx context.Context, eng *engine.Engine, sink EventSink) {
	sink.Snapshot(eng.Snapshot())
	for {
		select {
		case <-ctx.Done():
			return
		case <-eng.Updates():
			sink.Snapshot(eng.Snapshot())
		}
	}
}
