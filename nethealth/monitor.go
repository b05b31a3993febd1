package nethealth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"parley/log"
	"parley/schedule"
	"parley/transport"
)

const (
	DefaultInterval = 500 * time.Millisecond
	statsTimeout    = 2 * time.Second
)

// Monitor polls a session's statistics and keeps the latest report.
type Monitor struct {
	sess       transport.Session
	thresholds Thresholds
	onChange   func(Report)

	mu      sync.Mutex
	sampler Sampler
	report  Report
	task    schedule.Task
}

// NewMonitor creates a monitor for sess. onChange, if set, is called
// after every poll whose health differs from the previous one.
func NewMonitor(sess transport.Session, t Thresholds, onChange func(Report)) *Monitor {
	return &Monitor{sess: sess, thresholds: t, onChange: onChange}
}

func (m *Monitor) Report() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report
}

// Start begins polling every interval on s. A running poll loop is
// replaced.
func (m *Monitor) Start(s *schedule.Scheduler, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m.mu.Lock()
	if m.task != nil {
		m.task.Cancel()
	}
	m.task = s.Every(interval, func(time.Time) {
		m.Poll(context.Background())
	})
	m.mu.Unlock()
}

// Stop cancels polling and resets health to unknown.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.task != nil {
		m.task.Cancel()
		m.task = nil
	}
	m.mu.Unlock()
	m.set(Report{}, true)
}

// Poll takes one sample. It never fails: any retrieval error, including
// a panic in the transport, yields Unknown.
func (m *Monitor) Poll(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, statsTimeout)
	defer cancel()

	st, err := m.stats(ctx)
	if err != nil {
		m.set(Report{}, true)
		return Report{}
	}

	m.mu.Lock()
	sample := m.sampler.Observe(st)
	m.mu.Unlock()
	r := Report{Health: Classify(sample, m.thresholds), Sample: sample}
	m.set(r, false)
	return r
}

func (m *Monitor) stats(ctx context.Context) (st transport.Stats, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stats panic: %v", r)
		}
	}()
	if m.sess == nil {
		return transport.Stats{}, transport.ErrNotConnected
	}
	return m.sess.Stats(ctx)
}

func (m *Monitor) set(r Report, drop bool) {
	m.mu.Lock()
	if drop {
		m.sampler.Drop()
	}
	prev := m.report.Health
	m.report = r
	m.mu.Unlock()

	if prev == r.Health {
		return
	}
	log.HealthChange(prev.String(), r.Health.String(), r.String())
	if m.onChange != nil {
		m.onChange(r)
	}
}
