// Package beep synthesizes and plays the short session cues.
package beep

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

var disabled atomic.Bool

// Disable turns every Play into a no-op (headless and test runs).
func Disable() { disabled.Store(true) }

var ErrNoDevice = errors.New("beep: no audio output")

type Cue int

const (
	Ready Cue = iota // session is listening
	Stop             // session ended
	Warn             // no agent joined
)

func (c Cue) String() string {
	switch c {
	case Ready:
		return "ready"
	case Stop:
		return "stop"
	case Warn:
		return "warn"
	}
	return fmt.Sprintf("cue(%d)", int(c))
}

const sampleRate = 44100

type tone struct {
	freq   float64
	dur    float64 // seconds
	volume float64
	decay  float64
	gap    float64 // silence after, seconds
}

var cues = map[Cue][]tone{
	// rising two-note chime
	Ready: {
		{freq: 880, dur: 0.09, volume: 0.45, decay: 25, gap: 0.02},
		{freq: 1320, dur: 0.14, volume: 0.45, decay: 20},
	},
	// falling two-note chime
	Stop: {
		{freq: 1100, dur: 0.09, volume: 0.45, decay: 25, gap: 0.02},
		{freq: 660, dur: 0.16, volume: 0.45, decay: 18},
	},
	// low double beep
	Warn: {
		{freq: 350, dur: 0.08, volume: 0.6, decay: 30, gap: 0.05},
		{freq: 350, dur: 0.08, volume: 0.6, decay: 30},
	},
}

// Samples returns the mono 16-bit PCM for c at 44.1kHz.
func Samples(c Cue) []int16 {
	var out []int16
	for _, t := range cues[c] {
		n := int(sampleRate * t.dur)
		for i := 0; i < n; i++ {
			x := float64(i) / sampleRate
			env := math.Exp(-x * t.decay)
			out = append(out, int16(math.Sin(2*math.Pi*t.freq*x)*32767*t.volume*env))
		}
		out = append(out, make([]int16, int(sampleRate*t.gap))...)
	}
	return out
}

// Player plays cues on the default output device.
type Player struct{}

// Play blocks until c has been handed to the output device.
func (Player) Play(c Cue) error {
	if disabled.Load() {
		return nil
	}
	samples := Samples(c)
	if len(samples) == 0 {
		return fmt.Errorf("beep: unknown cue %v", c)
	}
	if err := play(samples); err != nil {
		return fmt.Errorf("play %s cue: %w", c, err)
	}
	return nil
}

func toBytesLE(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}
