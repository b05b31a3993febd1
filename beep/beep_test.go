package beep

import "testing"

func TestSamplesNonEmpty(t *testing.T) {
	for _, c := range []Cue{Ready, Stop, Warn} {
		s := Samples(c)
		if len(s) == 0 {
			t.Errorf("%v: no samples", c)
		}
		// under half a second keeps the mic muted only briefly
		if len(s) > sampleRate/2 {
			t.Errorf("%v: %d samples, longer than 0.5s", c, len(s))
		}
	}
}

func TestReadyAndStopDiffer(t *testing.T) {
	r, s := Samples(Ready), Samples(Stop)
	if len(r) == len(s) {
		same := true
		for i := range r {
			if r[i] != s[i] {
				same = false
				break
			}
		}
		if same {
			t.Error("ready and stop cues are identical")
		}
	}
}

func TestSamplesStartSilentAndDecay(t *testing.T) {
	s := Samples(Ready)
	if s[0] != 0 {
		t.Errorf("first sample = %d, want 0 (sin(0))", s[0])
	}
	peak := func(from, to int) int16 {
		var p int16
		for _, v := range s[from:to] {
			if v < 0 {
				v = -v
			}
			if v > p {
				p = v
			}
		}
		return p
	}
	// first note: 0.09s
	n := int(sampleRate * 0.09)
	if early, late := peak(0, n/4), peak(3*n/4, n); late >= early {
		t.Errorf("envelope does not decay: early peak %d, late peak %d", early, late)
	}
}

func TestToBytesLE(t *testing.T) {
	got := toBytesLE([]int16{0x0102, -2})
	want := []byte{0x02, 0x01, 0xfe, 0xff}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("toBytesLE = % x, want % x", got, want)
		}
	}
}

func TestDisabledPlayIsNoop(t *testing.T) {
	Disable()
	if err := (Player{}).Play(Ready); err != nil {
		t.Errorf("Play while disabled: %v", err)
	}
}

func TestCueString(t *testing.T) {
	if Ready.String() != "ready" || Stop.String() != "stop" || Warn.String() != "warn" {
		t.Error("unexpected cue names")
	}
}
