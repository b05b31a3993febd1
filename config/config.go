// Package config loads client settings from defaults, an optional TOML
// file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"parley/cue"
	"parley/hotkey"
	"parley/langgate"
	"parley/nethealth"
	"parley/transcript"
	"parley/watchdog"
)

type LiveKit struct {
	URL       string `toml:"url"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	Token     string `toml:"token"`
	Room      string `toml:"room"`
	Identity  string `toml:"identity"`
}

type Transcript struct {
	Mode string `toml:"mode"`
}

type LangGate struct {
	Enabled bool     `toml:"enabled"`
	Allowed []string `toml:"allowed"`
}

type Health struct {
	PollInterval     time.Duration `toml:"poll_interval"`
	BadLossPct       float64       `toml:"bad_loss_pct"`
	BadJitterMs      float64       `toml:"bad_jitter_ms"`
	BadRTTMs         float64       `toml:"bad_rtt_ms"`
	DegradedLossPct  float64       `toml:"degraded_loss_pct"`
	DegradedJitterMs float64       `toml:"degraded_jitter_ms"`
	DegradedRTTMs    float64       `toml:"degraded_rtt_ms"`
}

type PTT struct {
	Enabled   bool          `toml:"enabled"`
	Hotkey    string        `toml:"hotkey"`
	LongPress time.Duration `toml:"long_press"`
}

type Config struct {
	LiveKit    LiveKit    `toml:"livekit"`
	Transcript Transcript `toml:"transcript"`
	LangGate   LangGate   `toml:"langgate"`
	Health     Health     `toml:"health"`
	PTT        PTT        `toml:"ptt"`

	IdleTimeout      time.Duration `toml:"idle_timeout"`
	ReadyDelay       time.Duration `toml:"ready_delay"`
	AgentJoinTimeout time.Duration `toml:"agent_join_timeout"`
	Cues             bool          `toml:"cues"`
	Device           string        `toml:"device"` // microphone name; empty = system default
}

func Default() Config {
	th := nethealth.DefaultThresholds()
	return Config{
		Transcript: Transcript{Mode: transcript.ModeStable.String()},
		LangGate:   LangGate{Allowed: []string{"latin", "el", "ru"}},
		Health: Health{
			PollInterval:     nethealth.DefaultInterval,
			BadLossPct:       th.BadLossPct,
			BadJitterMs:      th.BadJitterMs,
			BadRTTMs:         th.BadRTTMs,
			DegradedLossPct:  th.DegradedLossPct,
			DegradedJitterMs: th.DegradedJitterMs,
			DegradedRTTMs:    th.DegradedRTTMs,
		},
		PTT: PTT{
			Hotkey:    "ctrl+shift+space",
			LongPress: 350 * time.Millisecond,
		},
		IdleTimeout:      watchdog.DefaultIdle,
		ReadyDelay:       cue.DefaultReadyDelay,
		AgentJoinTimeout: 10 * time.Second,
		Cues:             true,
	}
}

// Load returns the defaults overlaid with the TOML file at path (or
// $PARLEY_CONFIG when path is empty) and then the environment. A missing
// file is only an error when a path was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("PARLEY_CONFIG")
		explicit = path != ""
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !explicit && errors.Is(err, os.ErrNotExist) {
				return applyEnv(cfg), nil
			}
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return applyEnv(cfg), nil
}

func applyEnv(cfg Config) Config {
	cfg.LiveKit.URL = getEnv("LIVEKIT_URL", cfg.LiveKit.URL)
	cfg.LiveKit.APIKey = getEnv("LIVEKIT_API_KEY", cfg.LiveKit.APIKey)
	cfg.LiveKit.APISecret = getEnv("LIVEKIT_API_SECRET", cfg.LiveKit.APISecret)
	cfg.LiveKit.Token = getEnv("LIVEKIT_TOKEN", cfg.LiveKit.Token)
	cfg.LiveKit.Room = getEnv("PARLEY_ROOM", cfg.LiveKit.Room)
	cfg.LiveKit.Identity = getEnv("PARLEY_IDENTITY", cfg.LiveKit.Identity)

	cfg.Transcript.Mode = getEnv("PARLEY_TRANSCRIPT_MODE", cfg.Transcript.Mode)
	cfg.LangGate.Enabled = getEnvBool("PARLEY_LANGGATE", cfg.LangGate.Enabled)
	cfg.LangGate.Allowed = getEnvList("PARLEY_LANGGATE_ALLOWED", cfg.LangGate.Allowed)

	cfg.Health.PollInterval = getEnvDuration("PARLEY_POLL_INTERVAL", cfg.Health.PollInterval)
	cfg.IdleTimeout = getEnvDuration("PARLEY_IDLE_TIMEOUT", cfg.IdleTimeout)
	cfg.ReadyDelay = getEnvDuration("PARLEY_READY_DELAY", cfg.ReadyDelay)
	cfg.AgentJoinTimeout = getEnvDuration("PARLEY_AGENT_JOIN_TIMEOUT", cfg.AgentJoinTimeout)
	cfg.Cues = getEnvBool("PARLEY_CUES", cfg.Cues)
	cfg.Device = getEnv("PARLEY_DEVICE", cfg.Device)

	cfg.PTT.Enabled = getEnvBool("PARLEY_PTT", cfg.PTT.Enabled)
	cfg.PTT.Hotkey = getEnv("PARLEY_PTT_HOTKEY", cfg.PTT.Hotkey)
	return cfg
}

func (c Config) Thresholds() nethealth.Thresholds {
	return nethealth.Thresholds{
		BadLossPct:       c.Health.BadLossPct,
		BadJitterMs:      c.Health.BadJitterMs,
		BadRTTMs:         c.Health.BadRTTMs,
		DegradedLossPct:  c.Health.DegradedLossPct,
		DegradedJitterMs: c.Health.DegradedJitterMs,
		DegradedRTTMs:    c.Health.DegradedRTTMs,
	}
}

func (c Config) TranscriptMode() (transcript.Mode, error) {
	return transcript.ParseMode(c.Transcript.Mode)
}

func (c Config) AllowedScripts() ([]langgate.Script, error) {
	out := make([]langgate.Script, 0, len(c.LangGate.Allowed))
	for _, s := range c.LangGate.Allowed {
		sc, err := langgate.ParseScript(s)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

func (c Config) Hotkey() (hotkey.Combo, error) {
	return hotkey.ParseCombo(c.PTT.Hotkey)
}

// Validate checks everything except LiveKit credentials, which only the
// live transport needs (see ValidateLiveKit).
func (c Config) Validate() error {
	var errs []error
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"health.poll_interval", c.Health.PollInterval},
		{"idle_timeout", c.IdleTimeout},
		{"ready_delay", c.ReadyDelay},
		{"agent_join_timeout", c.AgentJoinTimeout},
		{"ptt.long_press", c.PTT.LongPress},
	}
	for _, d := range durations {
		if d.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", d.name, d.d))
		}
	}
	if err := c.Thresholds().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("health: %w", err))
	}
	if _, err := c.TranscriptMode(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.AllowedScripts(); err != nil {
		errs = append(errs, fmt.Errorf("langgate.allowed: %w", err))
	}
	if _, err := c.Hotkey(); err != nil {
		errs = append(errs, fmt.Errorf("ptt.hotkey: %w", err))
	}
	return errors.Join(errs...)
}

func (c Config) ValidateLiveKit() error {
	if c.LiveKit.URL == "" {
		return errors.New("LIVEKIT_URL is not set")
	}
	if c.LiveKit.Token == "" && (c.LiveKit.APIKey == "" || c.LiveKit.APISecret == "") {
		return errors.New("set LIVEKIT_TOKEN or both LIVEKIT_API_KEY and LIVEKIT_API_SECRET")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

// getEnvDuration accepts Go durations ("15s") or bare seconds ("15").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if s, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(s * float64(time.Second))
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
