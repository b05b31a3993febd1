package watchdog

import (
	"testing"
	"time"

	"parley/session"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func at(s int) time.Time { return t0.Add(time.Duration(s) * time.Second) }

func TestFiresOnceAfterIdle(t *testing.T) {
	w := New(15 * time.Second)
	w.Arm(t0)
	fired := 0
	firedAt := -1
	for s := 1; s <= 30; s++ {
		if w.Tick(at(s), session.Listening) {
			fired++
			if firedAt < 0 {
				firedAt = s
			}
		}
	}
	if fired != 1 {
		t.Fatalf("fired %d times, want 1", fired)
	}
	if firedAt != 16 {
		t.Errorf("fired at t=%ds, want 16s", firedAt)
	}
	if w.Armed() {
		t.Error("still armed after firing")
	}
}

func TestNeverFiresWhileSpeaking(t *testing.T) {
	w := New(15 * time.Second)
	w.Arm(t0)
	for s := 1; s <= 60; s++ {
		if w.Tick(at(s), session.Speaking) {
			t.Fatalf("fired at t=%ds while speaking", s)
		}
	}
}

func TestIdleCountsFromEndOfSpeech(t *testing.T) {
	w := New(15 * time.Second)
	w.Arm(t0)
	for s := 1; s <= 20; s++ {
		w.Tick(at(s), session.Speaking)
	}
	for s := 21; s <= 35; s++ {
		if w.Tick(at(s), session.Listening) {
			t.Fatalf("fired at t=%ds, only %ds after speech", s, s-20)
		}
	}
	if !w.Tick(at(36), session.Listening) {
		t.Error("expected fire 16s after speech ended")
	}
}

func TestTouchResetsIdle(t *testing.T) {
	w := New(15 * time.Second)
	w.Arm(t0)
	for s := 1; s <= 40; s++ {
		if s%10 == 0 {
			w.Touch(at(s))
		}
		if w.Tick(at(s), session.Thinking) {
			t.Fatalf("fired at t=%ds despite activity every 10s", s)
		}
	}
}

func TestTouchIgnoresOlderTime(t *testing.T) {
	w := New(15 * time.Second)
	w.Arm(at(10))
	w.Touch(at(5))
	if got := w.LastActivity(); !got.Equal(at(10)) {
		t.Errorf("LastActivity() = %v, want %v", got, at(10))
	}
}

func TestDisarmedNeverFires(t *testing.T) {
	w := New(15 * time.Second)
	if w.Tick(at(100), session.Listening) {
		t.Fatal("unarmed watchdog fired")
	}
	w.Arm(t0)
	w.Disarm()
	if w.Tick(at(100), session.Listening) {
		t.Fatal("disarmed watchdog fired")
	}
}

func TestRearmAfterFiring(t *testing.T) {
	w := New(15 * time.Second)
	w.Arm(t0)
	if !w.Tick(at(16), session.Listening) {
		t.Fatal("expected fire")
	}
	w.Arm(at(20))
	if w.Tick(at(30), session.Listening) {
		t.Fatal("fired too early after rearm")
	}
	if !w.Tick(at(36), session.Listening) {
		t.Error("expected fire after rearm")
	}
}

func TestDefaultIdle(t *testing.T) {
	if got := New(0).Idle(); got != DefaultIdle {
		t.Errorf("Idle() = %v, want %v", got, DefaultIdle)
	}
}
