package nethealth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"parley/schedule"
	"parley/transport"
)

func f(v float64) *float64 { return &v }

func TestClassify(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name string
		s    Sample
		want Health
	}{
		{"high loss", Sample{LossPct: f(10), JitterMs: f(10), RTTMs: f(50)}, Bad},
		{"jitter degraded", Sample{LossPct: f(0), JitterMs: f(40), RTTMs: f(100)}, Degraded},
		{"all good", Sample{LossPct: f(0), JitterMs: f(10), RTTMs: f(100)}, Good},
		{"bad jitter", Sample{JitterMs: f(81)}, Bad},
		{"bad rtt", Sample{RTTMs: f(701)}, Bad},
		{"degraded loss", Sample{LossPct: f(3.5)}, Degraded},
		{"degraded rtt", Sample{RTTMs: f(351)}, Degraded},
		{"on the bound", Sample{LossPct: f(3), JitterMs: f(30), RTTMs: f(350)}, Good},
		{"bad beats degraded", Sample{LossPct: f(4), RTTMs: f(800)}, Bad},
		{"no metrics", Sample{}, Good},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.s, th); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestThresholdsValidate(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	th := DefaultThresholds()
	th.DegradedRTTMs = 900
	if err := th.Validate(); err == nil {
		t.Error("expected error for degraded rtt above bad")
	}
	th = DefaultThresholds()
	th.BadLossPct = -1
	if err := th.Validate(); err == nil {
		t.Error("expected error for negative threshold")
	}
}

func TestReportString(t *testing.T) {
	r := Report{Health: Good, Sample: Sample{RTTMs: f(120), JitterMs: f(12.4), LossPct: f(0)}}
	if got, want := r.String(), "rtt 120ms · jitter 12ms · loss 0.0%"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := (Report{}).String(); got != "" {
		t.Errorf("empty report String() = %q", got)
	}
}

func stats(recv uint64, lost int64) transport.Stats {
	return transport.Stats{PacketsReceived: recv, PacketsLost: lost, HasPackets: true}
}

func TestSamplerDeltaLoss(t *testing.T) {
	var s Sampler
	if got := s.Observe(stats(1000, 100)); got.LossPct != nil {
		t.Fatalf("first sample has loss %v, want none", *got.LossPct)
	}
	got := s.Observe(stats(1090, 110))
	if got.LossPct == nil || *got.LossPct != 10 {
		t.Fatalf("loss = %v, want 10%%", got.LossPct)
	}
	// no packets moved
	if got := s.Observe(stats(1090, 110)); got.LossPct != nil {
		t.Errorf("idle interval loss = %v, want none", *got.LossPct)
	}
}

func TestSamplerClampsLoss(t *testing.T) {
	var s Sampler
	s.Observe(stats(100, 50))
	// late retransmits can shrink the lost counter
	got := s.Observe(stats(200, 40))
	if got.LossPct == nil || *got.LossPct != 0 {
		t.Errorf("loss = %v, want clamped 0", got.LossPct)
	}
	s.Observe(stats(200, 40))
	got = s.Observe(stats(190, 60))
	if got.LossPct == nil || *got.LossPct != 100 {
		t.Errorf("loss = %v, want clamped 100", got.LossPct)
	}
}

func TestSamplerDrop(t *testing.T) {
	var s Sampler
	s.Observe(stats(100, 0))
	s.Drop()
	if got := s.Observe(stats(200, 50)); got.LossPct != nil {
		t.Errorf("loss after Drop = %v, want none", *got.LossPct)
	}
}

func TestSamplerConvertsDurations(t *testing.T) {
	var s Sampler
	got := s.Observe(transport.Stats{RTT: 120 * time.Millisecond, HasRTT: true, Jitter: 1500 * time.Microsecond, HasJitter: true})
	if got.RTTMs == nil || *got.RTTMs != 120 {
		t.Errorf("rtt = %v", got.RTTMs)
	}
	if got.JitterMs == nil || *got.JitterMs != 1.5 {
		t.Errorf("jitter = %v", got.JitterMs)
	}
}

type panicSession struct{ *transport.Fake }

func (panicSession) Stats(context.Context) (transport.Stats, error) { panic("boom") }

func TestPollErrorsYieldUnknown(t *testing.T) {
	fake := transport.NewFake()
	if err := fake.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	fake.SetStats(transport.Stats{RTT: 800 * time.Millisecond, HasRTT: true})

	var mu sync.Mutex
	var changes []Health
	m := NewMonitor(fake, DefaultThresholds(), func(r Report) {
		mu.Lock()
		changes = append(changes, r.Health)
		mu.Unlock()
	})

	if got := m.Poll(context.Background()).Health; got != Bad {
		t.Fatalf("health = %v, want bad", got)
	}
	fake.SetStatsErr(errors.New("peer connection closed"))
	if got := m.Poll(context.Background()).Health; got != Unknown {
		t.Fatalf("health = %v, want unknown", got)
	}
	if got := m.Report().Health; got != Unknown {
		t.Errorf("Report().Health = %v, want unknown", got)
	}

	pm := NewMonitor(panicSession{fake}, DefaultThresholds(), nil)
	if got := pm.Poll(context.Background()).Health; got != Unknown {
		t.Errorf("panicking stats: health = %v, want unknown", got)
	}
	if got := NewMonitor(nil, DefaultThresholds(), nil).Poll(context.Background()).Health; got != Unknown {
		t.Errorf("no session: health = %v, want unknown", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 2 || changes[0] != Bad || changes[1] != Unknown {
		t.Errorf("changes = %v, want [bad unknown]", changes)
	}
}

func TestPollErrorDropsPreviousSnapshot(t *testing.T) {
	fake := transport.NewFake()
	fake.Connect(context.Background())
	m := NewMonitor(fake, DefaultThresholds(), nil)

	fake.SetStats(stats(1000, 0))
	m.Poll(context.Background())
	fake.SetStatsErr(transport.ErrStatsUnavailable)
	m.Poll(context.Background())
	fake.SetStats(stats(1100, 500))
	r := m.Poll(context.Background())
	if r.Sample.LossPct != nil {
		t.Errorf("loss computed across an error: %v", *r.Sample.LossPct)
	}
	if r.Health != Good {
		t.Errorf("health = %v, want good", r.Health)
	}
}

func TestMonitorPollsOnSchedule(t *testing.T) {
	clk := clock.NewMock()
	sched := schedule.New(clk)
	fake := transport.NewFake()
	fake.Connect(context.Background())
	fake.SetStats(transport.Stats{Jitter: 40 * time.Millisecond, HasJitter: true})

	m := NewMonitor(fake, DefaultThresholds(), nil)
	m.Start(sched, DefaultInterval)
	defer m.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for m.Report().Health != Degraded {
		if time.Now().After(deadline) {
			t.Fatalf("health = %v after polling, want degraded", m.Report().Health)
		}
		clk.Add(DefaultInterval)
		time.Sleep(time.Millisecond)
	}

	m.Stop()
	if got := m.Report().Health; got != Unknown {
		t.Errorf("health after Stop = %v, want unknown", got)
	}
}
