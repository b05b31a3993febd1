package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	lksdk "github.com/livekit/server-sdk-go/v2"
	"golang.org/x/term"

	"parley/audio"
	"parley/beep"
	"parley/config"
	"parley/cue"
	"parley/doctor"
	"parley/engine"
	"parley/hotkey"
	"parley/log"
	"parley/shutdown"
	"parley/transport"
	"parley/uplink"
)

var version = "dev"

type flags struct {
	config   string
	logPath  string
	room     string
	identity string
	mode     string
	device   string
	setup    bool
	langGate bool
	ptt      bool
	noCues   bool
	doctor   bool
	test     bool
	tui      bool
	version  bool
}

func parseFlags() (*flags, map[string]bool) {
	f := &flags{}
	flag.StringVar(&f.config, "config", "", "TOML config file (default $PARLEY_CONFIG)")
	flag.StringVar(&f.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	flag.StringVar(&f.room, "room", "", "LiveKit room to join (default: random voice_assistant_room_NNNN)")
	flag.StringVar(&f.identity, "identity", "", "participant identity (default: random)")
	flag.StringVar(&f.mode, "mode", "", "transcript mode: stable, final or instant")
	flag.StringVar(&f.device, "device", "", "use named microphone device")
	flag.BoolVar(&f.setup, "setup", false, "select microphone device interactively")
	flag.BoolVar(&f.langGate, "langgate", false, "replace user speech in unexpected scripts with a placeholder")
	flag.BoolVar(&f.ptt, "ptt", false, "push-to-talk: microphone open only while the hotkey is held (tap to latch)")
	flag.BoolVar(&f.noCues, "no-cues", false, "disable audible ready/stop cues")
	flag.BoolVar(&f.doctor, "doctor", false, "run system diagnostics and exit")
	flag.BoolVar(&f.test, "test", false, "test mode (headless, stdin-driven, no network)")
	flag.BoolVar(&f.tui, "tui", true, "run with terminal UI when attached to a terminal")
	flag.BoolVar(&f.version, "version", false, "print version and exit")
	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	return f, set
}

// applyFlags overlays explicitly set flags, the last configuration layer.
func applyFlags(cfg *config.Config, f *flags, set map[string]bool) {
	if set["room"] {
		cfg.LiveKit.Room = f.room
	}
	if set["identity"] {
		cfg.LiveKit.Identity = f.identity
	}
	if set["mode"] {
		cfg.Transcript.Mode = f.mode
	}
	if set["device"] {
		cfg.Device = f.device
	}
	if set["langgate"] {
		cfg.LangGate.Enabled = f.langGate
	}
	if set["ptt"] {
		cfg.PTT.Enabled = f.ptt
	}
	if set["no-cues"] {
		cfg.Cues = !f.noCues
	}
}

func run() int {
	f, set := parseFlags()
	if f.version {
		fmt.Printf("parley %s\n", version)
		return 0
	}

	logPath, err := log.ResolveDir(f.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	cfg, err := config.Load(f.config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	applyFlags(&cfg, f, set)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration:\n%v\n", err)
		return 1
	}

	ctx, cancel := shutdown.Context(context.Background())
	defer cancel()

	if f.doctor {
		return doctor.Run(ctx, cfg)
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	if f.test {
		return runTestMode(ctx, cfg, os.Stdin, os.Stdout)
	}

	if err := cfg.ValidateLiveKit(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return runLive(ctx, cancel, cfg, f)
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

func runLive(ctx context.Context, cancel context.CancelFunc, cfg config.Config, f *flags) int {
	mic, err := openMicrophone(cfg, f.setup)
	if err != nil {
		log.Errorf("microphone: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer mic.close()

	lk := transport.NewLiveKit(transport.LiveKitConfig{
		URL:       cfg.LiveKit.URL,
		APIKey:    cfg.LiveKit.APIKey,
		APISecret: cfg.LiveKit.APISecret,
		Token:     cfg.LiveKit.Token,
		Room:      cfg.LiveKit.Room,
		Identity:  cfg.LiveKit.Identity,
	}, transport.WithMicrophoneTrack(mic.track))

	opts, err := engine.OptionsFromConfig(cfg, cuePlayer(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	eng := engine.New(lk, opts)
	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	if cfg.PTT.Enabled {
		stop, err := startPushToTalk(cfg, eng)
		if err != nil {
			log.Warnf("push-to-talk unavailable: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: push-to-talk unavailable: %v\n", err)
		} else {
			defer stop()
		}
	}

	if f.tui && term.IsTerminal(int(os.Stdout.Fd())) {
		if err := runTUI(ctx, eng, lk, mic.up, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
	return runHeadless(ctx, eng, os.Stdout)
}

func cuePlayer(cfg config.Config) cue.Player {
	if !cfg.Cues {
		return nil
	}
	if err := beep.Init(); err != nil {
		log.Warnf("cues disabled: %v", err)
		return nil
	}
	return beep.Player{}
}

type microphone struct {
	ctx   audio.Context
	dev   audio.CaptureDevice
	up    *uplink.Uplink
	track *lksdk.LocalTrack
}

func (m *microphone) close() {
	m.up.Stop()
	m.dev.Close()
	m.ctx.Close()
}

func openMicrophone(cfg config.Config, setup bool) (*microphone, error) {
	actx, err := audio.NewContext()
	if err != nil {
		return nil, err
	}
	var device *audio.DeviceInfo
	switch {
	case cfg.Device != "":
		device, err = audio.FindDevice(actx, cfg.Device)
	case setup:
		device, err = audio.SelectDevice(actx)
	}
	if err != nil {
		actx.Close()
		return nil, err
	}
	capture, err := actx.NewCapture(device, audio.DefaultConfig)
	if err != nil {
		actx.Close()
		return nil, err
	}
	track, err := uplink.NewTrack()
	if err != nil {
		capture.Close()
		actx.Close()
		return nil, fmt.Errorf("microphone track: %w", err)
	}
	enc, err := uplink.NewEncoder()
	if err != nil {
		capture.Close()
		actx.Close()
		return nil, err
	}
	up := uplink.New(capture, enc, track)
	if err := up.Start(); err != nil {
		capture.Close()
		actx.Close()
		return nil, err
	}
	if audio.IsBluetooth(capture.DeviceName()) {
		log.Warnf("microphone %q looks like a Bluetooth headset", capture.DeviceName())
	}
	return &microphone{ctx: actx, dev: capture, up: up, track: track}, nil
}

func startPushToTalk(cfg config.Config, eng *engine.Engine) (func(), error) {
	combo, err := cfg.Hotkey()
	if err != nil {
		return nil, err
	}
	hk := hotkey.New(combo)
	if err := hk.Register(); err != nil {
		return nil, fmt.Errorf("register %s: %w", combo, err)
	}
	hy := hotkey.NewHybrid(hk, cfg.PTT.LongPress)
	quit := make(chan struct{})
	go func() {
		for {
			select {
			case on := <-hy.Talk():
				eng.Talk(on)
			case <-quit:
				return
			}
		}
	}()
	log.Infof("push-to-talk on %s", combo)
	return func() {
		close(quit)
		hy.Close()
		hk.Unregister()
	}, nil
}
