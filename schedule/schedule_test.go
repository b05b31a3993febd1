package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within 1s")
}

func TestEveryRunsOnEachInterval(t *testing.T) {
	mock := clock.NewMock()
	s := New(mock)
	var runs atomic.Int32
	task := s.Every(time.Second, func(time.Time) { runs.Add(1) })
	defer task.Cancel()

	for i := 1; i <= 3; i++ {
		mock.Add(time.Second)
		want := int32(i)
		waitFor(t, func() bool { return runs.Load() == want })
	}
}

func TestEveryStopsAfterCancel(t *testing.T) {
	mock := clock.NewMock()
	s := New(mock)
	var runs atomic.Int32
	task := s.Every(time.Second, func(time.Time) { runs.Add(1) })

	mock.Add(time.Second)
	waitFor(t, func() bool { return runs.Load() == 1 })

	task.Cancel()
	task.Cancel() // idempotent
	mock.Add(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs after cancel = %d, want 1", got)
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", s.Pending())
	}
}

func TestAfterRunsOnce(t *testing.T) {
	mock := clock.NewMock()
	s := New(mock)
	var runs atomic.Int32
	s.After(500*time.Millisecond, func() { runs.Add(1) })

	mock.Add(499 * time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if runs.Load() != 0 {
		t.Fatal("ran before delay elapsed")
	}
	mock.Add(time.Millisecond)
	waitFor(t, func() bool { return runs.Load() == 1 })
	waitFor(t, func() bool { return s.Pending() == 0 })
}

func TestCancelAllDropsPendingAfter(t *testing.T) {
	mock := clock.NewMock()
	s := New(mock)
	var runs atomic.Int32
	s.After(time.Second, func() { runs.Add(1) })
	s.Every(time.Second, func(time.Time) { runs.Add(1) })
	if s.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", s.Pending())
	}

	s.CancelAll()
	mock.Add(3 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if runs.Load() != 0 {
		t.Fatalf("runs = %d after CancelAll, want 0", runs.Load())
	}
	if s.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", s.Pending())
	}
}
