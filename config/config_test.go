package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"parley/langgate"
	"parley/transcript"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PARLEY_CONFIG", "LIVEKIT_URL", "LIVEKIT_API_KEY", "LIVEKIT_API_SECRET", "LIVEKIT_TOKEN",
		"PARLEY_ROOM", "PARLEY_IDENTITY", "PARLEY_TRANSCRIPT_MODE", "PARLEY_LANGGATE",
		"PARLEY_LANGGATE_ALLOWED", "PARLEY_POLL_INTERVAL", "PARLEY_IDLE_TIMEOUT",
		"PARLEY_READY_DELAY", "PARLEY_AGENT_JOIN_TIMEOUT", "PARLEY_CUES", "PARLEY_PTT",
		"PARLEY_PTT_HOTKEY", "PARLEY_DEVICE",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parley.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.IdleTimeout != 15*time.Second {
		t.Errorf("IdleTimeout = %v, want 15s", cfg.IdleTimeout)
	}
	if cfg.Health.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v, want 500ms", cfg.Health.PollInterval)
	}
	if cfg.ReadyDelay != 500*time.Millisecond {
		t.Errorf("ReadyDelay = %v, want 500ms", cfg.ReadyDelay)
	}
	if cfg.LangGate.Enabled {
		t.Error("language gate should be off by default")
	}
	if mode, _ := cfg.TranscriptMode(); mode != transcript.ModeStable {
		t.Errorf("mode = %v, want stable", mode)
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
idle_timeout = "30s"
agent_join_timeout = "5s"

[livekit]
url = "wss://demo.livekit.cloud"
api_key = "key"
api_secret = "secret"

[transcript]
mode = "final"

[langgate]
enabled = true
allowed = ["latin", "el"]

[health]
poll_interval = "1s"
bad_rtt_ms = 900.0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.IdleTimeout != 30*time.Second || cfg.AgentJoinTimeout != 5*time.Second {
		t.Errorf("durations = %v/%v", cfg.IdleTimeout, cfg.AgentJoinTimeout)
	}
	if cfg.LiveKit.URL != "wss://demo.livekit.cloud" || cfg.LiveKit.APIKey != "key" {
		t.Errorf("livekit = %+v", cfg.LiveKit)
	}
	if cfg.Transcript.Mode != "final" {
		t.Errorf("mode = %q", cfg.Transcript.Mode)
	}
	scripts, err := cfg.AllowedScripts()
	if err != nil || len(scripts) != 2 || scripts[1] != langgate.Greek {
		t.Errorf("allowed = %v, %v", scripts, err)
	}
	if cfg.Health.PollInterval != time.Second || cfg.Health.BadRTTMs != 900 {
		t.Errorf("health = %+v", cfg.Health)
	}
	// untouched keys keep defaults
	if cfg.Health.DegradedRTTMs != 350 || cfg.ReadyDelay != 500*time.Millisecond {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if err := cfg.ValidateLiveKit(); err != nil {
		t.Errorf("ValidateLiveKit: %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
idle_timeout = "30s"
[livekit]
url = "wss://file"
`)
	t.Setenv("LIVEKIT_URL", "wss://env")
	t.Setenv("PARLEY_IDLE_TIMEOUT", "20")
	t.Setenv("PARLEY_POLL_INTERVAL", "250ms")
	t.Setenv("PARLEY_LANGGATE", "1")
	t.Setenv("PARLEY_LANGGATE_ALLOWED", "latin, ru")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LiveKit.URL != "wss://env" {
		t.Errorf("URL = %q, want env value", cfg.LiveKit.URL)
	}
	if cfg.IdleTimeout != 20*time.Second {
		t.Errorf("IdleTimeout = %v, want 20s", cfg.IdleTimeout)
	}
	if cfg.Health.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.Health.PollInterval)
	}
	if !cfg.LangGate.Enabled || strings.Join(cfg.LangGate.Allowed, ",") != "latin,ru" {
		t.Errorf("langgate = %+v", cfg.LangGate)
	}
}

func TestLoadConfigEnvPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("PARLEY_CONFIG", writeFile(t, "[transcript]\nmode = \"instant\"\n"))
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transcript.Mode != "instant" {
		t.Errorf("mode = %q, want instant", cfg.Transcript.Mode)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(writeFile(t, "idle_timeout = [")); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero idle", func(c *Config) { c.IdleTimeout = 0 }, "idle_timeout"},
		{"negative poll", func(c *Config) { c.Health.PollInterval = -time.Second }, "poll_interval"},
		{"inverted rtt", func(c *Config) { c.Health.DegradedRTTMs = 800 }, "rtt"},
		{"bad mode", func(c *Config) { c.Transcript.Mode = "fast" }, "transcript mode"},
		{"bad script", func(c *Config) { c.LangGate.Allowed = []string{"zh"} }, "langgate.allowed"},
		{"bad hotkey", func(c *Config) { c.PTT.Hotkey = "alt+x" }, "ptt.hotkey"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestValidateLiveKit(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateLiveKit(); err == nil {
		t.Error("expected error without URL")
	}
	cfg.LiveKit.URL = "wss://x"
	if err := cfg.ValidateLiveKit(); err == nil {
		t.Error("expected error without credentials")
	}
	cfg.LiveKit.Token = "tok"
	if err := cfg.ValidateLiveKit(); err != nil {
		t.Errorf("token should suffice: %v", err)
	}
}
