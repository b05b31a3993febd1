package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"parley/config"
	"parley/engine"
	"parley/nethealth"
	"parley/session"
	"parley/transcript"
	"parley/transport"
)

func TestParseSegment(t *testing.T) {
	tests := []struct {
		in      string
		speaker string
		want    transport.Segment
		wantErr bool
	}{
		{"u1 local final hello there", transcript.You, transport.Segment{ID: "u1", Final: true, Text: "hello there"}, false},
		{"- agent partial Hi", transcript.Agent, transport.Segment{Text: "Hi"}, false},
		{"u1 robot final hi", "", transport.Segment{}, true},
		{"u1 local maybe hi", "", transport.Segment{}, true},
		{"u1 local final", "", transport.Segment{}, true},
	}
	for _, tt := range tests {
		speaker, seg, err := parseSegment(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseSegment(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseSegment(%q): %v", tt.in, err)
			continue
		}
		if speaker != tt.speaker || seg != tt.want {
			t.Errorf("parseSegment(%q) = %s %+v, want %s %+v", tt.in, speaker, seg, tt.speaker, tt.want)
		}
	}
}

func TestParseStats(t *testing.T) {
	st, err := parseStats([]string{"120", "12.5", "1000", "30"})
	if err != nil {
		t.Fatal(err)
	}
	if st.RTT != 120*time.Millisecond || st.Jitter != 12500*time.Microsecond || !st.HasRTT || !st.HasJitter {
		t.Errorf("timing = %+v", st)
	}
	if !st.HasPackets || st.PacketsReceived != 1000 || st.PacketsLost != 30 {
		t.Errorf("packets = %+v", st)
	}

	st, err = parseStats([]string{"-", "40"})
	if err != nil {
		t.Fatal(err)
	}
	if st.HasRTT || !st.HasJitter || st.HasPackets {
		t.Errorf("partial = %+v", st)
	}

	for _, bad := range [][]string{{"1"}, {"x", "1"}, {"1", "1", "x", "1"}} {
		if _, err := parseStats(bad); err == nil {
			t.Errorf("parseStats(%v): expected error", bad)
		}
	}
}

func runScript(t *testing.T, cfg config.Config, script ...string) string {
	t.Helper()
	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	code := runTestMode(ctx, cfg, strings.NewReader(strings.Join(script, "\n")+"\n"), &out)
	if code != 0 {
		t.Fatalf("exit code %d, output:\n%s", code, out.String())
	}
	return out.String()
}

func TestTestModeConversation(t *testing.T) {
	out := runScript(t, config.Default(),
		"CONNECT",
		"STATE listening",
		"SEGMENT u1 local partial what is",
		"SEGMENT u1 local final what is the time",
		"STATE speaking",
		"SEGMENT a1 agent final It is noon.",
		"DUMP",
		"QUIT",
	)
	for _, want := range []string{
		"STATE speaking",
		"ENTRIES 2",
		"You: what is the time\n",
		"Agent: It is noon.\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTestModeDisconnectKeepsTranscriptUntilReconnect(t *testing.T) {
	out := runScript(t, config.Default(),
		"CONNECT",
		"SEGMENT - agent final Hello",
		"REMOTE_DISCONNECT",
		"DUMP",
		"CONNECT",
		"DUMP",
		"QUIT",
	)
	dumps := strings.Split(out, "END\n")
	if len(dumps) < 2 {
		t.Fatalf("expected two dumps:\n%s", out)
	}
	if !strings.Contains(dumps[0], "STATE disconnected") || !strings.Contains(dumps[0], "ENTRIES 1") {
		t.Errorf("first dump:\n%s", dumps[0])
	}
	if !strings.Contains(dumps[1], "ENTRIES 0") {
		t.Errorf("second dump:\n%s", dumps[1])
	}
}

func TestTestModeUnknownCommand(t *testing.T) {
	out := runScript(t, config.Default(), "FLY away", "QUIT")
	if !strings.Contains(out, "ERR FLY away") {
		t.Errorf("output = %q", out)
	}
}

func TestPrinter(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out)
	rtt := 120.0

	p.Snapshot(engine.Snapshot{State: session.Connecting})
	p.Snapshot(engine.Snapshot{
		State:  session.Listening,
		Report: nethealth.Report{Health: nethealth.Good, Sample: nethealth.Sample{RTTMs: &rtt}},
		Entries: []transcript.Entry{
			{Key: "u1", Speaker: transcript.You, Text: "hi", Final: true},
			{Key: "a1", Speaker: transcript.Agent, Text: "hel", Final: false},
		},
	})
	// same final entry again must not be reprinted
	p.Snapshot(engine.Snapshot{
		State:  session.Listening,
		Report: nethealth.Report{Health: nethealth.Good},
		Entries: []transcript.Entry{
			{Key: "u1", Speaker: transcript.You, Text: "hi", Final: true},
			{Key: "a1", Speaker: transcript.Agent, Text: "hello", Final: true},
		},
	})
	select {
	case <-p.Ended():
		t.Fatal("ended while active")
	default:
	}
	p.Snapshot(engine.Snapshot{State: session.Disconnected})

	got := out.String()
	want := "[state] connecting\n" +
		"[state] listening\n" +
		"[network] good (rtt 120ms)\n" +
		"You: hi\n" +
		"Agent: hello\n" +
		"[state] disconnected\n"
	if got != want {
		t.Errorf("output:\n%s\nwant:\n%s", got, want)
	}
	select {
	case <-p.Ended():
	default:
		t.Error("Ended not closed after disconnect")
	}
}
