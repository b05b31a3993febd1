// Package schedule runs repeating and delayed tasks with explicit cancel,
// on top of an injectable clock so owners can tie every timer to the
// lifetime of the session that created it.
package schedule

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Task is a handle to a scheduled function.
type Task interface {
	// Cancel stops future runs. Safe to call more than once.
	Cancel()
}

type Scheduler struct {
	clk clock.Clock

	mu    sync.Mutex
	tasks map[*task]struct{}
}

func New(clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{clk: clk, tasks: make(map[*task]struct{})}
}

func (s *Scheduler) Clock() clock.Clock { return s.clk }

type task struct {
	s      *Scheduler
	once   sync.Once
	stop   chan struct{}
	ticker *clock.Ticker
	timer  *clock.Timer
}

func (t *task) Cancel() {
	t.once.Do(func() {
		close(t.stop)
		if t.ticker != nil {
			t.ticker.Stop()
		}
		if t.timer != nil {
			t.timer.Stop()
		}
		t.s.forget(t)
	})
}

// Every runs fn every interval until the task is cancelled. The first
// run happens one interval after the call.
func (s *Scheduler) Every(interval time.Duration, fn func(now time.Time)) Task {
	t := &task{s: s, stop: make(chan struct{}), ticker: s.clk.Ticker(interval)}
	s.track(t)
	go func() {
		for {
			select {
			case <-t.stop:
				return
			case now := <-t.ticker.C:
				select {
				case <-t.stop:
					return
				default:
				}
				fn(now)
			}
		}
	}()
	return t
}

// After runs fn once after d unless cancelled first.
func (s *Scheduler) After(d time.Duration, fn func()) Task {
	t := &task{s: s, stop: make(chan struct{})}
	s.track(t)
	t.timer = s.clk.AfterFunc(d, func() {
		select {
		case <-t.stop:
			return
		default:
		}
		t.s.forget(t)
		fn()
	})
	return t
}

// CancelAll cancels every task still pending on this scheduler.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	pending := make([]*task, 0, len(s.tasks))
	for t := range s.tasks {
		pending = append(pending, t)
	}
	s.mu.Unlock()
	for _, t := range pending {
		t.Cancel()
	}
}

// Pending reports how many tasks have not run to completion or been cancelled.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Scheduler) track(t *task) {
	s.mu.Lock()
	s.tasks[t] = struct{}{}
	s.mu.Unlock()
}

func (s *Scheduler) forget(t *task) {
	s.mu.Lock()
	delete(s.tasks, t)
	s.mu.Unlock()
}
