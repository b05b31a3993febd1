package log

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/mylog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/mylog" {
		t.Errorf("got %q, want /tmp/mylog", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(wd, "logs")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv("PARLEY_LOG_PATH", "/tmp/parley-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/parley-env-log" {
		t.Errorf("got %q, want /tmp/parley-env-log", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv("PARLEY_LOG_PATH", "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got == "" {
		t.Error("expected non-empty default directory")
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{diagName, transcriptName} {
		if _, err := os.Stat(filepath.Join(tmp, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestTranscriptLine(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	TranscriptLine("Agent", "hello world")

	line := readFile(t, filepath.Join(tmp, transcriptName))
	if !strings.Contains(line, "Agent\thello world\n") {
		t.Errorf("transcript_log.txt missing entry, got: %q", line)
	}
	// format: "2006-01-02 15:04:05\t[pid]\tspeaker\ttext\n"
	if parts := strings.Split(strings.TrimSuffix(line, "\n"), "\t"); len(parts) != 4 {
		t.Errorf("expected 4 tab-separated fields, got %d: %q", len(parts), line)
	}
}

func TestLifecycleEvents(t *testing.T) {
	tmp := setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	SessionStart("wss://example.livekit.cloud", "voice_assistant_room_0042", "voice_assistant_user_0007")
	StateChange("connecting", "listening")
	HealthChange("good", "bad", "rtt 120ms · jitter 90ms · loss 0.0%")
	IdleDisconnect(16 * time.Second)
	CueFailed("ready", errors.New("device busy"))
	SessionEnd(3, "idle")

	out := readFile(t, filepath.Join(tmp, diagName))
	for _, want := range []string{
		"session_start", "room=voice_assistant_room_0042",
		"state_change", "to=listening",
		"health_change", "to=bad",
		"idle_disconnect", "idle_s=16",
		"cue_failed", "device busy",
		"session_end", "entries=3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("diagnostics log missing %q\n%s", want, out)
		}
	}
}

func TestHelpersNoopBeforeInit(t *testing.T) {
	SetDir("")
	Close()
	// must not panic
	Info("x")
	TranscriptLine("You", "x")
	HealthChange("unknown", "good", "")
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)

	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}
