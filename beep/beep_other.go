//go:build !linux && !darwin

package beep

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

var (
	otoCtx   *oto.Context
	initOnce sync.Once
	initErr  error
)

func initSound() {
	var ready chan struct{}
	var err error
	otoCtx, ready, err = oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   50 * time.Millisecond,
	})
	if err != nil {
		initErr = fmt.Errorf("%w: %v", ErrNoDevice, err)
		return
	}
	<-ready
}

// Init creates the shared output context once.
func Init() error {
	initOnce.Do(initSound)
	return initErr
}

func play(mono []int16) error {
	if err := Init(); err != nil {
		return err
	}
	player := otoCtx.NewPlayer(bytes.NewReader(toBytesLE(mono)))
	player.Play()
	go func() {
		for player.IsPlaying() {
			time.Sleep(10 * time.Millisecond)
		}
		player.Close()
	}()
	return player.Err()
}
