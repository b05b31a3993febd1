// Package uplink encodes captured microphone audio into Opus frames and
// writes them to the published LiveKit track.
package uplink

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"parley/audio"
	"parley/log"
)

const maxPacket = 1275

// Encoder turns one frame of PCM into an Opus packet.
type Encoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

// SampleWriter is implemented by *lksdk.LocalTrack.
type SampleWriter interface {
	WriteSample(s media.Sample, opts *lksdk.SampleWriteOptions) error
}

// NewTrack creates the local microphone track in the uplink's format.
func NewTrack() (*lksdk.LocalTrack, error) {
	return lksdk.NewLocalTrack(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: audio.SampleRate,
		Channels:  audio.Channels,
	})
}

func NewEncoder() (Encoder, error) {
	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	return enc, nil
}

type Uplink struct {
	capture audio.CaptureDevice
	enc     Encoder
	out     SampleWriter

	mu      sync.Mutex
	pending []int16
	packet  []byte
	running bool

	level  atomic.Uint64 // math.Float64bits of the last frame's RMS, 0..1
	frames atomic.Uint64
	errs   atomic.Uint64
}

func New(capture audio.CaptureDevice, enc Encoder, out SampleWriter) *Uplink {
	return &Uplink{
		capture: capture,
		enc:     enc,
		out:     out,
		packet:  make([]byte, maxPacket),
	}
}

func (u *Uplink) Start() error {
	u.mu.Lock()
	if u.running {
		u.mu.Unlock()
		return nil
	}
	u.running = true
	u.pending = u.pending[:0]
	u.mu.Unlock()

	u.capture.SetCallback(u.onData)
	if err := u.capture.Start(); err != nil {
		u.capture.ClearCallback()
		u.mu.Lock()
		u.running = false
		u.mu.Unlock()
		return fmt.Errorf("start capture on %s: %w", u.capture.DeviceName(), err)
	}
	log.Infof("microphone uplink started on %s", u.capture.DeviceName())
	return nil
}

func (u *Uplink) Stop() {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return
	}
	u.running = false
	u.mu.Unlock()

	u.capture.ClearCallback()
	u.capture.Stop()
	u.level.Store(0)
}

// Level is the RMS of the most recent frame, between 0 and 1.
func (u *Uplink) Level() float64 {
	return math.Float64frombits(u.level.Load())
}

// Frames returns how many frames were written to the track.
func (u *Uplink) Frames() uint64 { return u.frames.Load() }

func (u *Uplink) onData(data []byte, _ uint32) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.running {
		return
	}
	for i := 0; i+1 < len(data); i += 2 {
		u.pending = append(u.pending, int16(binary.LittleEndian.Uint16(data[i:])))
	}
	for len(u.pending) >= audio.FrameSamples {
		u.writeFrame(u.pending[:audio.FrameSamples])
		u.pending = append(u.pending[:0], u.pending[audio.FrameSamples:]...)
	}
}

func (u *Uplink) writeFrame(frame []int16) {
	u.level.Store(math.Float64bits(rms(frame)))

	n, err := u.enc.Encode(frame, u.packet)
	if err == nil {
		buf := make([]byte, n)
		copy(buf, u.packet[:n])
		err = u.out.WriteSample(media.Sample{Data: buf, Duration: audio.FrameDuration}, nil)
	}
	if err != nil {
		// one line per burst of failures
		if u.errs.Add(1) == 1 {
			log.Warnf("uplink frame dropped: %v", err)
		}
		return
	}
	u.errs.Store(0)
	u.frames.Add(1)
}

func rms(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
