package audio

import (
	"encoding/binary"
	"sync"
)

// FakeCapture is a CaptureDevice whose audio is pushed by the caller.
type FakeCapture struct {
	mu      sync.Mutex
	cb      DataCallback
	started bool
	closed  bool
}

func NewFakeCapture() *FakeCapture { return &FakeCapture{} }

func (f *FakeCapture) Start() error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	return nil
}

func (f *FakeCapture) Stop() {
	f.mu.Lock()
	f.started = false
	f.mu.Unlock()
}

func (f *FakeCapture) Close() {
	f.mu.Lock()
	f.started = false
	f.closed = true
	f.mu.Unlock()
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake" }

func (f *FakeCapture) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *FakeCapture) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Feed delivers samples to the callback as one capture period. It is a
// no-op while the device is stopped.
func (f *FakeCapture) Feed(samples []int16) {
	f.mu.Lock()
	cb, started := f.cb, f.started
	f.mu.Unlock()
	if cb == nil || !started {
		return
	}
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	cb(data, uint32(len(samples)))
}

// FakeContext hands out a single FakeCapture.
type FakeContext struct {
	Capture *FakeCapture
	List    []DeviceInfo
}

func NewFakeContext() *FakeContext {
	return &FakeContext{Capture: NewFakeCapture()}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) { return f.List, nil }
func (f *FakeContext) Close()                         {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return f.Capture, nil
}
