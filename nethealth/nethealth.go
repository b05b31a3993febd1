// Package nethealth turns transport statistics into a coarse network
// health signal.
package nethealth

import (
	"fmt"
	"strings"
	"time"

	"parley/transport"
)

type Health int

const (
	Unknown Health = iota
	Good
	Degraded
	Bad
)

func (h Health) String() string {
	switch h {
	case Good:
		return "good"
	case Degraded:
		return "degraded"
	case Bad:
		return "bad"
	default:
		return "unknown"
	}
}

// Thresholds are exclusive upper bounds; a metric equal to its bound is
// still within it.
type Thresholds struct {
	BadLossPct       float64
	BadJitterMs      float64
	BadRTTMs         float64
	DegradedLossPct  float64
	DegradedJitterMs float64
	DegradedRTTMs    float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		BadLossPct:       8,
		BadJitterMs:      80,
		BadRTTMs:         700,
		DegradedLossPct:  3,
		DegradedJitterMs: 30,
		DegradedRTTMs:    350,
	}
}

func (t Thresholds) Validate() error {
	pairs := []struct {
		name          string
		degraded, bad float64
	}{
		{"loss", t.DegradedLossPct, t.BadLossPct},
		{"jitter", t.DegradedJitterMs, t.BadJitterMs},
		{"rtt", t.DegradedRTTMs, t.BadRTTMs},
	}
	for _, p := range pairs {
		if p.degraded < 0 || p.bad < 0 {
			return fmt.Errorf("%s thresholds must not be negative", p.name)
		}
		if p.degraded > p.bad {
			return fmt.Errorf("%s: degraded threshold %g above bad threshold %g", p.name, p.degraded, p.bad)
		}
	}
	return nil
}

// Sample holds the metrics of one poll. Nil means not available.
type Sample struct {
	RTTMs    *float64
	JitterMs *float64
	LossPct  *float64
}

func ms(d time.Duration) *float64 {
	v := float64(d) / float64(time.Millisecond)
	return &v
}

// Classify applies the thresholds in order: loss, jitter, RTT for bad,
// then the same for degraded. A sample with no metrics is Good.
func Classify(s Sample, t Thresholds) Health {
	over := func(v *float64, limit float64) bool { return v != nil && *v > limit }
	switch {
	case over(s.LossPct, t.BadLossPct),
		over(s.JitterMs, t.BadJitterMs),
		over(s.RTTMs, t.BadRTTMs):
		return Bad
	case over(s.LossPct, t.DegradedLossPct),
		over(s.JitterMs, t.DegradedJitterMs),
		over(s.RTTMs, t.DegradedRTTMs):
		return Degraded
	}
	return Good
}

type Report struct {
	Health Health
	Sample Sample
}

// String renders the available metrics, e.g. "rtt 120ms · jitter 12ms · loss 0.0%".
func (r Report) String() string {
	var parts []string
	if r.Sample.RTTMs != nil {
		parts = append(parts, fmt.Sprintf("rtt %.0fms", *r.Sample.RTTMs))
	}
	if r.Sample.JitterMs != nil {
		parts = append(parts, fmt.Sprintf("jitter %.0fms", *r.Sample.JitterMs))
	}
	if r.Sample.LossPct != nil {
		parts = append(parts, fmt.Sprintf("loss %.1f%%", *r.Sample.LossPct))
	}
	return strings.Join(parts, " · ")
}

// Sampler derives per-interval loss from cumulative packet counters.
type Sampler struct {
	prev    transport.Stats
	hasPrev bool
}

// Observe converts a stats snapshot into a sample. Loss is only set when
// a previous snapshot exists and packets moved in between.
func (s *Sampler) Observe(st transport.Stats) Sample {
	var out Sample
	if st.HasRTT {
		out.RTTMs = ms(st.RTT)
	}
	if st.HasJitter {
		out.JitterMs = ms(st.Jitter)
	}
	if st.HasPackets {
		if s.hasPrev && s.prev.HasPackets {
			out.LossPct = lossPct(s.prev, st)
		}
		s.prev, s.hasPrev = st, true
	}
	return out
}

// Drop forgets the previous snapshot.
func (s *Sampler) Drop() {
	s.prev, s.hasPrev = transport.Stats{}, false
}

func lossPct(prev, cur transport.Stats) *float64 {
	// counters can move backwards across a stream restart
	recv := float64(cur.PacketsReceived) - float64(prev.PacketsReceived)
	lost := float64(cur.PacketsLost - prev.PacketsLost)
	total := recv + lost
	if total <= 0 {
		return nil
	}
	pct := lost / total * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return &pct
}
