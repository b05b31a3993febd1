package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"parley/beep"
	"parley/config"
	"parley/engine"
	"parley/log"
	"parley/transcript"
	"parley/transport"
)

var errQuit = errors.New("quit")

// testEnv drives an engine over transport.Fake from line commands, so the
// whole client can be exercised without a LiveKit server.
type testEnv struct {
	fake *transport.Fake
	eng  *engine.Engine
	out  io.Writer
}

func runTestMode(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer) int {
	beep.Disable()

	opts, err := engine.OptionsFromConfig(cfg, nil)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return 1
	}
	env := &testEnv{fake: transport.NewFake(), out: out}
	env.eng = engine.New(env.fake, opts)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		env.eng.Run(runCtx)
	}()
	defer func() {
		cancel()
		<-done
		log.SessionEnd(len(env.eng.Snapshot().Entries), "test_quit")
	}()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		err := env.exec(ctx, line)
		if errors.Is(err, errQuit) {
			return 0
		}
		if err != nil {
			fmt.Fprintf(out, "ERR %s: %v\n", line, err)
			log.Warnf("test command %q: %v", line, err)
		}
		if ctx.Err() != nil {
			return 1
		}
	}
	return 0
}

func (t *testEnv) exec(ctx context.Context, line string) error {
	cmd, rest, _ := strings.Cut(line, " ")
	args := strings.Fields(rest)
	switch strings.ToUpper(cmd) {
	case "CONNECT":
		if err := t.eng.Connect(ctx); err != nil {
			return err
		}
	case "DISCONNECT":
		t.eng.Disconnect()
	case "REMOTE_DISCONNECT":
		reason := "server_shutdown"
		if len(args) > 0 {
			reason = args[0]
		}
		t.fake.SimRemoteDisconnect(reason)
	case "STATE":
		if len(args) != 1 {
			return errors.New("usage: STATE <agent-state>")
		}
		t.fake.SimAgentState(args[0])
	case "SEGMENT":
		speaker, seg, err := parseSegment(rest)
		if err != nil {
			return err
		}
		t.fake.SimSegments(speaker == transcript.You, seg)
	case "STATS":
		st, err := parseStats(args)
		if err != nil {
			return err
		}
		t.fake.SetStats(st)
	case "NOSTATS":
		t.fake.SetStatsErr(transport.ErrStatsUnavailable)
	case "TALK":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return errors.New("usage: TALK on|off")
		}
		t.eng.Talk(args[0] == "on")
	case "SLEEP":
		ms, err := strconv.Atoi(rest)
		if err != nil {
			return fmt.Errorf("SLEEP: %w", err)
		}
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-ctx.Done():
		}
	case "WAIT":
		if len(args) != 1 {
			return errors.New("usage: WAIT <state>")
		}
		return t.waitState(ctx, args[0], 5*time.Second)
	case "DUMP":
		if err := t.settle(ctx); err != nil {
			return err
		}
		t.dump()
		return nil
	case "QUIT":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return t.settle(ctx)
}

// settle waits until the engine has consumed every simulated event.
func (t *testEnv) settle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	for t.fake.Pending() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return t.eng.Sync(ctx)
}

func (t *testEnv) waitState(ctx context.Context, want string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		s := t.eng.Snapshot()
		if s.State.String() == strings.ToLower(want) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("state is %s, want %s", s.State, want)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (t *testEnv) dump() {
	s := t.eng.Snapshot()
	fmt.Fprintf(t.out, "STATE %s\n", s.State)
	if detail := s.Report.String(); detail != "" {
		fmt.Fprintf(t.out, "HEALTH %s (%s)\n", s.Report.Health, detail)
	} else {
		fmt.Fprintf(t.out, "HEALTH %s\n", s.Report.Health)
	}
	fmt.Fprintf(t.out, "MIC %v\n", s.MicEnabled)
	if s.NoAgent {
		fmt.Fprintln(t.out, "NOAGENT")
	}
	fmt.Fprintf(t.out, "ENTRIES %d\n", len(s.Entries))
	fmt.Fprint(t.out, transcript.Text(s.Entries))
	fmt.Fprintln(t.out, "END")
}

// parseSegment reads "<id|-> <local|agent> <final|partial> <text...>".
// An id of "-" delivers a segment without one.
func parseSegment(s string) (string, transport.Segment, error) {
	fields := strings.SplitN(strings.TrimSpace(s), " ", 4)
	if len(fields) < 4 {
		return "", transport.Segment{}, errors.New("usage: SEGMENT <id|-> <local|agent> <final|partial> <text>")
	}
	var seg transport.Segment
	if fields[0] != "-" {
		seg.ID = fields[0]
	}
	var speaker string
	switch fields[1] {
	case "local":
		speaker = transcript.You
	case "agent":
		speaker = transcript.Agent
	default:
		return "", seg, fmt.Errorf("speaker %q: want local or agent", fields[1])
	}
	switch fields[2] {
	case "final":
		seg.Final = true
	case "partial":
	default:
		return "", seg, fmt.Errorf("finality %q: want final or partial", fields[2])
	}
	seg.Text = fields[3]
	return speaker, seg, nil
}

// parseStats reads "<rtt_ms> <jitter_ms> [<received> <lost>]"; "-" leaves a
// value unavailable.
func parseStats(args []string) (transport.Stats, error) {
	var st transport.Stats
	if len(args) != 2 && len(args) != 4 {
		return st, errors.New("usage: STATS <rtt_ms|-> <jitter_ms|-> [<received> <lost>]")
	}
	ms := func(v string) (time.Duration, bool, error) {
		if v == "-" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false, err
		}
		return time.Duration(f * float64(time.Millisecond)), true, nil
	}
	var err error
	if st.RTT, st.HasRTT, err = ms(args[0]); err != nil {
		return st, fmt.Errorf("rtt: %w", err)
	}
	if st.Jitter, st.HasJitter, err = ms(args[1]); err != nil {
		return st, fmt.Errorf("jitter: %w", err)
	}
	if len(args) == 4 {
		if st.PacketsReceived, err = strconv.ParseUint(args[2], 10, 64); err != nil {
			return st, fmt.Errorf("received: %w", err)
		}
		if st.PacketsLost, err = strconv.ParseInt(args[3], 10, 64); err != nil {
			return st, fmt.Errorf("lost: %w", err)
		}
		st.HasPackets = true
	}
	return st, nil
}
