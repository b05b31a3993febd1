package hotkey

import (
	"sync/atomic"
	"time"
)

// Hybrid turns one key into push-to-talk: holding it past longPress opens
// the microphone until release, while a short tap latches it open until
// the next press is released. Talk delivers true when the microphone
// should open and false when it should close.
type Hybrid struct {
	talk   chan bool
	toggle atomic.Bool
	done   chan struct{}
}

func NewHybrid(hk Hotkey, longPress time.Duration) *Hybrid {
	h := &Hybrid{
		talk: make(chan bool, 2),
		done: make(chan struct{}),
	}
	go h.run(hk, longPress)
	return h
}

func (h *Hybrid) Talk() <-chan bool { return h.talk }

// IsToggle reports whether the current press latched the microphone open.
func (h *Hybrid) IsToggle() bool { return h.toggle.Load() }

func (h *Hybrid) Close() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

func (h *Hybrid) send(on bool) {
	select {
	case h.talk <- on:
	case <-h.done:
	}
}

// wait blocks for ch unless the controller is closed.
func (h *Hybrid) wait(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hybrid) run(hk Hotkey, longPress time.Duration) {
	for {
		if !h.wait(hk.Keydown()) {
			return
		}
		// open immediately; hold vs tap only decides when to close
		h.toggle.Store(false)
		h.send(true)

		timer := time.NewTimer(longPress)
		select {
		case <-timer.C:
			if !h.wait(hk.Keyup()) {
				return
			}
		case <-hk.Keyup():
			timer.Stop()
			h.toggle.Store(true)
			if !h.wait(hk.Keydown()) || !h.wait(hk.Keyup()) {
				return
			}
		case <-h.done:
			timer.Stop()
			return
		}
		h.toggle.Store(false)
		h.send(false)
	}
}
