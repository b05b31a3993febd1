package audio

import "testing"

func TestFrameSamples(t *testing.T) {
	if FrameSamples != 960 {
		t.Errorf("FrameSamples = %d, want 960", FrameSamples)
	}
}

func TestIsBluetooth(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"AirPods Pro", true},
		{"Jabra Evolve2 65", true},
		{"Headset (BT)", true},
		{"Built-in Microphone", false},
		{"USB Audio Device", false},
	}
	for _, tt := range tests {
		if got := IsBluetooth(tt.name); got != tt.want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMatchDevice(t *testing.T) {
	devices := []DeviceInfo{
		{ID: "1", Name: "Built-in Microphone"},
		{ID: "2", Name: "USB Microphone"},
		{ID: "3", Name: "USB Microphone Monitor"},
	}
	tests := []struct {
		query  string
		wantID string
	}{
		{"usb microphone", "2"},
		{"built-in", "1"},
		{"Monitor", "3"},
	}
	for _, tt := range tests {
		d, err := matchDevice(devices, tt.query)
		if err != nil {
			t.Errorf("matchDevice(%q): %v", tt.query, err)
			continue
		}
		if d.ID != tt.wantID {
			t.Errorf("matchDevice(%q) = %s, want %s", tt.query, d.ID, tt.wantID)
		}
	}
	if _, err := matchDevice(devices, "webcam"); err == nil {
		t.Error("expected error for unknown device")
	}
	if _, err := matchDevice(devices, ""); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestFakeCaptureFeedsOnlyWhenStarted(t *testing.T) {
	f := NewFakeCapture()
	var got []byte
	f.SetCallback(func(data []byte, frames uint32) { got = append(got, data...) })

	f.Feed([]int16{1, 2})
	if len(got) != 0 {
		t.Fatal("fed while stopped")
	}
	_ = f.Start()
	f.Feed([]int16{1, -1})
	if len(got) != 4 || got[0] != 1 || got[2] != 0xff || got[3] != 0xff {
		t.Errorf("bytes = %v", got)
	}
}
