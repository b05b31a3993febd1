package session

import "testing"

func TestFromAgent(t *testing.T) {
	tests := []struct {
		in   string
		want State
		ok   bool
	}{
		{"initializing", Connecting, true},
		{"listening", Listening, true},
		{"Thinking", Thinking, true},
		{"speaking", Speaking, true},
		{"disconnected", Disconnected, true},
		{"dancing", Disconnected, false},
		{"", Disconnected, false},
	}
	for _, tt := range tests {
		got, ok := FromAgent(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("FromAgent(%q) = %v,%v want %v,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, s := range []State{Disconnected, Connecting, Listening, Thinking, Speaking} {
		got, ok := Parse(s.String())
		if !ok || got != s {
			t.Errorf("Parse(%q) = %v,%v", s.String(), got, ok)
		}
	}
	if _, ok := Parse("initializing?"); ok {
		t.Error("expected failure")
	}
}
