//go:build darwin

package beep

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

var (
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	initOnce sync.Once
	initErr  error

	// accessed from the device callback
	playing atomic.Pointer[[]byte]
	playPos atomic.Uint32
	playMu  sync.Mutex
)

func initDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	var err error
	device, err = malgo.InitDevice(malgoCtx.Context, config, malgo.DeviceCallbacks{Data: dataCallback})
	return err
}

func initSound() {
	var err error
	malgoCtx, err = malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		initErr = fmt.Errorf("%w: %v", ErrNoDevice, err)
		return
	}
	if err := initDevice(); err != nil {
		malgoCtx.Uninit()
		malgoCtx = nil
		initErr = fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
}

// Init opens the playback device once.
func Init() error {
	initOnce.Do(initSound)
	return initErr
}

func dataCallback(pOutput, _ []byte, frameCount uint32) {
	samples := playing.Load()
	want := frameCount * 2
	if samples == nil {
		clear(pOutput)
		return
	}
	pos := playPos.Load()
	remaining := uint32(len(*samples)) - pos
	if remaining == 0 {
		playing.Store(nil)
		clear(pOutput)
		return
	}
	n := min(want, remaining)
	copy(pOutput[:n], (*samples)[pos:pos+n])
	playPos.Store(pos + n)
	clear(pOutput[n:want])
}

func play(mono []int16) error {
	if err := Init(); err != nil {
		return err
	}
	buf := toBytesLE(mono)

	playMu.Lock()
	defer playMu.Unlock()

	device.Stop()
	playPos.Store(0)
	playing.Store(&buf)

	if err := device.Start(); err != nil {
		// device handles go stale across sleep/wake
		device.Uninit()
		if err := initDevice(); err != nil {
			playing.Store(nil)
			return err
		}
		if err := device.Start(); err != nil {
			playing.Store(nil)
			return err
		}
	}
	return nil
}
