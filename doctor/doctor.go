// Package doctor runs interactive checks of everything a voice session
// depends on: microphone, cue playback, push-to-talk key, clipboard and
// the LiveKit server.
package doctor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"parley/audio"
	"parley/beep"
	"parley/clipboard"
	"parley/config"
	"parley/hotkey"
	"parley/nethealth"
	"parley/transport"
)

type check struct {
	name string
	run  func(*doctor) bool
	// optional checks report SKIP instead of failing the run
	optional bool
}

type doctor struct {
	cfg config.Config
	in  *bufio.Reader
	out io.Writer
}

// Run executes the diagnostic checks and returns an exit code (0=all pass, 1=any fail).
func Run(ctx context.Context, cfg config.Config) int {
	restore := saveTerminal()
	defer restore()

	d := &doctor{cfg: cfg, in: bufio.NewReader(os.Stdin), out: os.Stdout}
	checks := []check{
		{name: "Configuration", run: (*doctor).checkConfig},
		{name: "Microphone", run: (*doctor).checkMicrophone},
		{name: "Cue playback", run: (*doctor).checkCues},
		{name: "Push-to-talk hotkey", run: (*doctor).checkHotkey, optional: !cfg.PTT.Enabled},
		{name: "Clipboard", run: (*doctor).checkClipboard, optional: true},
		{name: "LiveKit connection", run: func(d *doctor) bool { return d.checkLiveKit(ctx) }},
	}

	d.printf("parley doctor - interactive system diagnostics\n")
	d.printf("===============================================\n")

	allPass := true
	for i, c := range checks {
		if ctx.Err() != nil {
			d.printf("\nInterrupted\n")
			return 1
		}
		d.printf("\n[%d/%d] %s\n", i+1, len(checks), c.name)
		if !c.run(d) && !c.optional {
			allPass = false
		}
		restore()
	}

	d.printf("\n")
	if allPass {
		d.printf("All checks passed!\n")
		return 0
	}
	d.printf("Some checks failed. See details above.\n")
	return 1
}

func (d *doctor) printf(format string, args ...any) {
	fmt.Fprintf(d.out, format, args...)
}

func (d *doctor) confirm(question string) bool {
	d.printf("%s [y/n]: ", question)
	answer, _ := d.in.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}

func (d *doctor) checkConfig() bool {
	if err := d.cfg.Validate(); err != nil {
		d.printf("  FAIL: %v\n", err)
		return false
	}
	d.printf("  PASS: transcript mode %s, idle timeout %v, poll interval %v\n",
		d.cfg.Transcript.Mode, d.cfg.IdleTimeout, d.cfg.Health.PollInterval)
	return true
}

func (d *doctor) checkMicrophone() bool {
	ctx, err := audio.NewContext()
	if err != nil {
		d.printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer ctx.Close()

	devices, err := ctx.Devices()
	if err != nil {
		d.printf("  FAIL: cannot list devices: %v\n", err)
		return false
	}
	if len(devices) == 0 {
		d.printf("  FAIL: no capture devices found\n")
		return false
	}
	var device *audio.DeviceInfo
	if name := d.cfg.Device; name != "" {
		if device, err = audio.FindDevice(ctx, name); err != nil {
			d.printf("  FAIL: %v\n", err)
			return false
		}
	}

	capture, err := ctx.NewCapture(device, audio.DefaultConfig)
	if err != nil {
		d.printf("  FAIL: cannot open %s: %v\n", deviceLabel(device), err)
		return false
	}
	defer capture.Close()

	d.printf("Speak for two seconds...\n")
	levels := make(chan float64, 256)
	capture.SetCallback(func(data []byte, _ uint32) {
		select {
		case levels <- peak(data):
		default:
		}
	})
	if err := capture.Start(); err != nil {
		d.printf("  FAIL: recording error: %v\n", err)
		return false
	}
	var max float64
	periods := 0
	deadline := time.After(2 * time.Second)
loop:
	for {
		select {
		case l := <-levels:
			periods++
			if l > max {
				max = l
			}
		case <-deadline:
			break loop
		}
	}
	capture.Stop()

	if periods == 0 {
		d.printf("  FAIL: no audio captured from %s\n", capture.DeviceName())
		return false
	}
	if audio.IsBluetooth(capture.DeviceName()) {
		d.printf("  Warning: %s looks like a Bluetooth headset; call quality may drop\n", capture.DeviceName())
	}
	if max < 0.02 {
		d.printf("  FAIL: %s captured only silence (peak %.3f)\n", capture.DeviceName(), max)
		return false
	}
	d.printf("  PASS: %s (peak level %.2f)\n", capture.DeviceName(), max)
	return true
}

func deviceLabel(d *audio.DeviceInfo) string {
	if d == nil {
		return "system default"
	}
	return d.Name
}

func peak(data []byte) float64 {
	var max int16
	for i := 0; i+1 < len(data); i += 2 {
		s := int16(uint16(data[i]) | uint16(data[i+1])<<8)
		if s < 0 {
			s = -s
		}
		if s > max {
			max = s
		}
	}
	return float64(max) / 32768
}

func (d *doctor) checkCues() bool {
	if !d.cfg.Cues {
		d.printf("  SKIP: cues disabled in configuration\n")
		return true
	}
	if err := beep.Init(); err != nil {
		d.printf("  FAIL: %v\n", err)
		return false
	}
	var p beep.Player
	for _, c := range []beep.Cue{beep.Ready, beep.Stop} {
		d.printf("Playing the %s cue...\n", c)
		if err := p.Play(c); err != nil {
			d.printf("  FAIL: %v\n", err)
			return false
		}
		time.Sleep(300 * time.Millisecond)
	}
	if !d.confirm("Did you hear a rising and then a falling chime?") {
		d.printf("  FAIL: cue playback not confirmed\n")
		return false
	}
	d.printf("  PASS: cue playback verified by user\n")
	return true
}

func (d *doctor) checkHotkey() bool {
	combo, err := d.cfg.Hotkey()
	if err != nil {
		d.printf("  FAIL: %v\n", err)
		return false
	}
	if !d.cfg.PTT.Enabled {
		d.printf("  (push-to-talk is off; checking %s anyway)\n", combo)
	}
	if msg, err := hotkey.Diagnose(combo); err != nil {
		d.printf("  FAIL: %v\n", err)
		return false
	} else if msg != "" {
		d.printf("  %s\n", msg)
	}

	hk := hotkey.New(combo)
	if err := hk.Register(); err != nil {
		d.printf("  FAIL: could not register hotkey: %v\n", err)
		return false
	}
	defer hk.Unregister()

	d.printf("Press %s...\n", combo)
	select {
	case <-hk.Keydown():
		d.printf("  PASS: hotkey detected\n")
		// wait for keyup so the release doesn't leak into the next prompt
		select {
		case <-hk.Keyup():
		case <-time.After(5 * time.Second):
		}
		return true
	case <-time.After(10 * time.Second):
		d.printf("  FAIL: timeout waiting for hotkey\n")
		return false
	}
}

func (d *doctor) checkClipboard() bool {
	if !clipboard.Available() {
		d.printf("  SKIP: %v\n", clipboard.ErrUnsupported)
		return false
	}
	testStr := fmt.Sprintf("parley-doctor-%d", time.Now().UnixNano())

	type result struct {
		readback string
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		if err := clipboard.Copy(testStr); err != nil {
			ch <- result{err: fmt.Errorf("write: %w", err)}
			return
		}
		got, err := clipboard.Read()
		if err != nil {
			err = fmt.Errorf("read: %w", err)
		}
		ch <- result{readback: got, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			d.printf("  FAIL: clipboard %v\n", res.err)
			return false
		}
		if res.readback != testStr {
			d.printf("  FAIL: clipboard mismatch: wrote %q, got %q\n", testStr, res.readback)
			return false
		}
		d.printf("  PASS: clipboard write/read verified\n")
		return true
	case <-time.After(3 * time.Second):
		d.printf("  FAIL: clipboard timed out (clipboard tool hung?)\n")
		return false
	}
}

func (d *doctor) checkLiveKit(ctx context.Context) bool {
	if err := d.cfg.ValidateLiveKit(); err != nil {
		d.printf("  FAIL: %v\n", err)
		return false
	}
	lk := transport.NewLiveKit(transport.LiveKitConfig{
		URL:       d.cfg.LiveKit.URL,
		APIKey:    d.cfg.LiveKit.APIKey,
		APISecret: d.cfg.LiveKit.APISecret,
		Token:     d.cfg.LiveKit.Token,
		Room:      transport.RandomName("parley_doctor"),
	})

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	start := time.Now()
	if err := lk.Connect(connectCtx); err != nil {
		d.printf("  FAIL: %v\n", err)
		return false
	}
	defer lk.Disconnect()
	d.printf("  Connected to %s (room %s) in %v\n", d.cfg.LiveKit.URL, lk.RoomName(), time.Since(start).Round(time.Millisecond))

	// a few polls so the delta-based loss figure has a baseline
	mon := nethealth.NewMonitor(lk, d.cfg.Thresholds(), nil)
	var report nethealth.Report
	for i := 0; i < 4; i++ {
		time.Sleep(d.cfg.Health.PollInterval)
		report = mon.Poll(connectCtx)
	}
	if report.Health == nethealth.Unknown {
		d.printf("  PASS: connected (network statistics unavailable)\n")
		return true
	}
	d.printf("  PASS: network %s (%s)\n", report.Health, report)
	return true
}
